package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadstitch/internal/usecase"
)

type FunnelHandler struct {
	Funnel *usecase.FunnelService
}

func NewFunnelHandler(funnel *usecase.FunnelService) *FunnelHandler {
	return &FunnelHandler{Funnel: funnel}
}

func (h *FunnelHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Funnel.Read(r.Context(), chi.URLParam(r, "visitorId"))
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	if p == nil {
		writeErrorResponse(w, http.StatusNotFound, usecase.CodeNotFound, "no funnel progress for visitor")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
