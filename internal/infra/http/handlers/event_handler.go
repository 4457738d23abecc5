package handlers

import (
	"log/slog"
	"net/http"

	"github.com/xavierca1/leadstitch/internal/usecase"
)

// EventHandler recebe eventos já normalizados pelos adapters de webhook
// (Calendly, Stripe, iClosed...). Erro de storage devolve 500 para o
// provider reenviar; evento sem identidade devolve 400.
type EventHandler struct {
	Ingest *usecase.IngestEventUseCase
}

func NewEventHandler(ingest *usecase.IngestEventUseCase) *EventHandler {
	return &EventHandler{Ingest: ingest}
}

func (h *EventHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var input usecase.IngestEventInput
	if !decodeJSON(w, r, &input) {
		return
	}

	out, err := h.Ingest.Execute(r.Context(), input)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}

	if len(out.PartialWrites) > 0 {
		slog.Warn("EventHandler: event stored with partial writes",
			"event_type", input.EventType, "lead_id", out.LeadID, "failed", out.PartialWrites)
	}
	writeJSON(w, http.StatusOK, out)
}
