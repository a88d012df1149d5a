package shaper

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/droid2api/droidproxy/internal/routing"
)

// Client headers reused on the upstream request when present.
const (
	HeaderSessionID          = "X-Session-Id"
	HeaderAssistantMessageID = "X-Assistant-Message-Id"
	headerStainlessTimeout   = "X-Stainless-Timeout"
)

// headerProfile is the fixed header set sent to one backend kind.
type headerProfile struct {
	fixed            map[string]string
	userAgent        string
	stainlessVersion string
}

var profiles = map[routing.Kind]headerProfile{
	routing.KindAnthropic: {
		fixed: map[string]string{
			"Accept":               "application/json",
			"Anthropic-Version":    "2023-06-01",
			"Anthropic-Beta":       "interleaved-thinking-2025-05-14",
			"X-Api-Key":            "placeholder",
			"X-Model-Provider":     "anthropic",
			headerStainlessTimeout: "600",
		},
		userAgent:        "a$/JS 0.57.0",
		stainlessVersion: "0.57.0",
	},
	routing.KindOpenAI: {
		fixed: map[string]string{
			"X-Api-Key": "placeholder",
		},
		userAgent:        "cB/JS 5.22.0",
		stainlessVersion: "5.22.0",
	},
	routing.KindCommon: {
		fixed: map[string]string{
			"Accept":         "application/json",
			"X-Api-Provider": "baseten",
		},
		userAgent:        "cB/JS 5.23.2",
		stainlessVersion: "5.23.2",
	},
}

// stainlessDefaults are sent unless the client supplied its own values.
var stainlessDefaults = map[string]string{
	"X-Stainless-Arch":            "x64",
	"X-Stainless-Lang":            "js",
	"X-Stainless-Os":              "MacOS",
	"X-Stainless-Runtime":         "node",
	"X-Stainless-Retry-Count":     "0",
	"X-Stainless-Runtime-Version": "v24.3.0",
}

// Headers builds the upstream request headers for kind. authorization is the
// full Authorization value. userAgent overrides the per-kind default when set.
func Headers(kind routing.Kind, authorization string, client http.Header, streaming bool, userAgent string) http.Header {
	profile := profiles[kind]

	h := make(http.Header, 16)
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", authorization)
	h.Set("X-Factory-Client", "cli")
	for k, v := range profile.fixed {
		h.Set(k, v)
	}

	if userAgent == "" {
		userAgent = profile.userAgent
	}
	h.Set("User-Agent", userAgent)

	h.Set(HeaderSessionID, valueOr(client, HeaderSessionID, uuid.NewString))
	h.Set(HeaderAssistantMessageID, valueOr(client, HeaderAssistantMessageID, uuid.NewString))

	for k, v := range stainlessDefaults {
		h.Set(k, valueOr(client, k, func() string { return v }))
	}
	h.Set("X-Stainless-Package-Version", valueOr(client, "X-Stainless-Package-Version", func() string { return profile.stainlessVersion }))

	if kind == routing.KindAnthropic {
		if v := client.Get(headerStainlessTimeout); v != "" {
			h.Set(headerStainlessTimeout, v)
		}
		if streaming {
			h.Set("X-Stainless-Helper-Method", "stream")
		}
	}

	return h
}

func valueOr(client http.Header, key string, fallback func() string) string {
	if v := client.Get(key); v != "" {
		return v
	}
	return fallback()
}
