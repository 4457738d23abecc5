package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadstitch/internal/usecase"
)

type LeadHandler struct {
	Resolver *usecase.IdentityResolver
	Merger   *usecase.LeadMerger
}

func NewLeadHandler(resolver *usecase.IdentityResolver, merger *usecase.LeadMerger) *LeadHandler {
	return &LeadHandler{Resolver: resolver, Merger: merger}
}

func (h *LeadHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var input usecase.ResolveInput
	if !decodeJSON(w, r, &input) {
		return
	}

	out, err := h.Resolver.Resolve(r.Context(), input)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.MatchedBy == usecase.MatchedByCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	details, err := h.Resolver.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *LeadHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var input usecase.MergeInput
	if !decodeJSON(w, r, &input) {
		return
	}

	merge, err := h.Merger.Merge(r.Context(), input)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, merge)
}
