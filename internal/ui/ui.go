// Package ui serves a read-only HTML status page: the outcome of the last
// reconciliation tick, the live rule configuration, and the federation
// handshake state.
package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"idflow/internal/federation"
	"idflow/internal/lifecycle"
)

// Handler renders the status page. negotiator may be nil.
type Handler struct {
	org        string
	controller *lifecycle.Controller
	negotiator *federation.Negotiator
}

// NewHandler creates the status page handler.
func NewHandler(org string, controller *lifecycle.Controller, negotiator *federation.Negotiator) *Handler {
	return &Handler{org: org, controller: controller, negotiator: negotiator}
}

// MountRoutes attaches the status page under the given router.
func MountRoutes(r chi.Router, h *Handler) {
	r.Get("/", h.Status)
}

// Status renders the overview page.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	data := statusData{
		Org:   h.org,
		Last:  h.controller.LastTick(),
		Rules: h.controller.Rules(),
	}
	if h.negotiator != nil {
		ep := h.negotiator.Endpoint()
		data.Federation = &ep
		data.AuthEnabled = h.negotiator.AuthEnabled()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = statusPage(data).Render(w)
}
