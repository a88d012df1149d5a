package app

import (
	"sync/atomic"

	"github.com/droid2api/droidproxy/internal/proxy"
)

// Health tracks readiness for /readyz. It becomes ready once credentials are
// resolved and the listener is up, and drops back when shutdown begins.
type Health struct {
	ready atomic.Bool
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth returns a Health that is not ready.
func NewHealth() *Health {
	return &Health{}
}

// SetReady updates the readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady implements proxy.ReadinessChecker.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
