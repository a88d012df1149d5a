package proxy

import (
	"net/http"

	"github.com/droid2api/droidproxy/internal/routing"
)

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// modelInfo merges the OpenAI model object with the fields older clients
// still read (permission, root, parent).
type modelInfo struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	Created    int64    `json:"created"`
	OwnedBy    string   `json:"owned_by"`
	Permission []string `json:"permission"`
	Root       string   `json:"root"`
	Parent     *string  `json:"parent"`
}

// modelsHandler lists the configured models. owned_by carries the backend kind.
func (p *Proxy) modelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := p.routes.Models()

		list := modelList{Object: "list", Data: make([]modelInfo, 0, len(models))}
		for _, m := range models {
			list.Data = append(list.Data, toModelInfo(m, p.started.Unix()))
		}

		writeJSON(r.Context(), w, list, http.StatusOK)
	}
}

func toModelInfo(m routing.Model, created int64) modelInfo {
	return modelInfo{
		ID:         m.ID,
		Object:     "model",
		Created:    created,
		OwnedBy:    string(m.Kind),
		Permission: []string{},
		Root:       m.ID,
	}
}

type serviceInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Endpoints   []string `json:"endpoints"`
}

// infoHandler describes the service at the root path.
func (p *Proxy) infoHandler() http.HandlerFunc {
	info := serviceInfo{
		Name:        "droidproxy",
		Version:     p.version,
		Description: "OpenAI compatible API proxy",
		Endpoints: []string{
			"GET /v1/models",
			"POST /v1/chat/completions",
			"POST /v1/messages",
			"POST /v1/responses",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, info, http.StatusOK)
	}
}
