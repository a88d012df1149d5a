// Package routing resolves client model ids to the backend that serves them.
package routing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the wire protocol spoken by a backend endpoint.
type Kind string

const (
	// KindAnthropic backends speak the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
	// KindOpenAI backends speak the OpenAI Responses API.
	KindOpenAI Kind = "openai"
	// KindCommon backends speak OpenAI chat completions and are passed through.
	KindCommon Kind = "common"
)

// Kinds lists every supported backend kind.
var Kinds = []Kind{KindAnthropic, KindOpenAI, KindCommon}

// ParseKind validates s as a backend kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown backend kind %q", s)
	}
	return k, nil
}

var (
	// ErrModelNotFound is returned for model ids missing from the table.
	ErrModelNotFound = errors.New("model not found")
	// ErrEndpointNotFound is returned when a model refers to an unconfigured endpoint kind.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// Model is a client-visible model entry.
type Model struct {
	ID   string
	Kind Kind
	// Reasoning is the default reasoning level (low, medium, high) or empty.
	Reasoning string
}

// Endpoint is the upstream address serving one backend kind.
type Endpoint struct {
	Kind    Kind
	BaseURL string
}

// Route is the resolved destination of one request.
type Route struct {
	Model    Model
	Endpoint Endpoint
}

// Table is an immutable model→endpoint lookup table. It is safe for
// concurrent use.
type Table struct {
	models    []Model
	byID      map[string]Model
	endpoints map[Kind]Endpoint
}

// NewTable builds a table. Duplicate model ids or endpoint kinds are rejected.
func NewTable(models []Model, endpoints []Endpoint) (*Table, error) {
	t := &Table{
		models:    make([]Model, 0, len(models)),
		byID:      make(map[string]Model, len(models)),
		endpoints: make(map[Kind]Endpoint, len(endpoints)),
	}

	for _, ep := range endpoints {
		if _, dup := t.endpoints[ep.Kind]; dup {
			return nil, fmt.Errorf("duplicate endpoint for kind %q", ep.Kind)
		}
		t.endpoints[ep.Kind] = ep
	}

	for _, m := range models {
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model %q", m.ID)
		}
		t.byID[m.ID] = m
		t.models = append(t.models, m)
	}

	return t, nil
}

// Lookup resolves a model id to its route.
func (t *Table) Lookup(modelID string) (Route, error) {
	m, ok := t.byID[modelID]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	ep, ok := t.endpoints[m.Kind]
	if !ok {
		return Route{}, fmt.Errorf("%w: kind %s for model %s", ErrEndpointNotFound, m.Kind, modelID)
	}
	return Route{Model: m, Endpoint: ep}, nil
}

// Models returns the configured models in configuration order.
func (t *Table) Models() []Model {
	return slices.Clone(t.models)
}
