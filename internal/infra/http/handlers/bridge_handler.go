package handlers

import (
	"net/http"

	"github.com/xavierca1/leadstitch/internal/usecase"
)

type BridgeHandler struct {
	Bridge *usecase.BridgeService
}

func NewBridgeHandler(bridge *usecase.BridgeService) *BridgeHandler {
	return &BridgeHandler{Bridge: bridge}
}

// Associate é chamado pelo script do site (ou pelo form) quando email e
// visitor_id aparecem juntos.
func (h *BridgeHandler) Associate(w http.ResponseWriter, r *http.Request) {
	var input usecase.RecordBridgeInput
	if !decodeJSON(w, r, &input) {
		return
	}

	a, err := h.Bridge.Record(r.Context(), input)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type ConsumeBridgeRequest struct {
	Email string `json:"email"`
}

type ConsumeBridgeResponse struct {
	VisitorID *string `json:"visitor_id"`
	Found     bool    `json:"found"`
}

func (h *BridgeHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeBridgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	visitorID, ok, err := h.Bridge.Consume(r.Context(), req.Email)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}

	resp := ConsumeBridgeResponse{Found: ok}
	if ok {
		resp.VisitorID = &visitorID
	}
	writeJSON(w, http.StatusOK, resp)
}
