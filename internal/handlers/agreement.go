package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pickandgo/onboarding/internal/models"
)

// AgreementLoader fetches an agreement, falling back to a local template.
type AgreementLoader interface {
	Load(ctx context.Context, kind models.AgreementKind) (models.AgreementSnapshot, bool)
}

// AgreementHandler serves agreement previews.
type AgreementHandler struct {
	loader AgreementLoader
}

// NewAgreementHandler creates an agreement handler
func NewAgreementHandler(loader AgreementLoader) *AgreementHandler {
	return &AgreementHandler{loader: loader}
}

// Preview returns the agreement named by the {kind} path parameter.
func (h *AgreementHandler) Preview(w http.ResponseWriter, r *http.Request) {
	kind := models.AgreementKind(chi.URLParam(r, "kind"))
	if !models.IsValidAgreementKind(kind) {
		writeError(w, http.StatusNotFound, "unknown agreement kind")
		return
	}
	snap, fallback := h.loader.Load(r.Context(), kind)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"kind":      kind,
		"agreement": snap,
		"fallback":  fallback,
	})
}
