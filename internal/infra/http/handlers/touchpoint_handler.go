package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadstitch/internal/entity"
	"github.com/xavierca1/leadstitch/internal/usecase"
)

type TouchpointHandler struct {
	Touchpoints *usecase.TouchpointService
}

func NewTouchpointHandler(touchpoints *usecase.TouchpointService) *TouchpointHandler {
	return &TouchpointHandler{Touchpoints: touchpoints}
}

type TouchpointListResponse struct {
	Touchpoints []*entity.Touchpoint `json:"touchpoints"`
	Count       int                  `json:"count"`
}

func (h *TouchpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input usecase.CreateTouchpointInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.UserAgent == "" {
		input.UserAgent = r.UserAgent()
	}
	if input.Referrer == "" {
		input.Referrer = r.Referer()
	}

	t, err := h.Touchpoints.Create(r.Context(), input)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TouchpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Touchpoints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TouchpointHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, usecase.CodeValidation, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, usecase.CodeValidation, "offset must be an integer")
		return
	}

	list, err := h.Touchpoints.List(r.Context(), entity.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeList(w, list)
}

func (h *TouchpointHandler) ListByVisitor(w http.ResponseWriter, r *http.Request) {
	list, err := h.Touchpoints.ListByVisitor(r.Context(), chi.URLParam(r, "visitorId"))
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeList(w, list)
}

func writeList(w http.ResponseWriter, list []*entity.Touchpoint) {
	if list == nil {
		list = []*entity.Touchpoint{}
	}
	writeJSON(w, http.StatusOK, TouchpointListResponse{Touchpoints: list, Count: len(list)})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
