package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Touchpoint é imutável depois de gravado. Entrega duplicada gera linha
// duplicada.
type Touchpoint struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitor_id"`
	LeadID    string    `json:"lead_id,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	EventType string    `json:"event_type"`
	EventData EventData `json:"event_data,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Visitor struct {
	VisitorID   string    `json:"visitor_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type Page struct {
	Limit  int
	Offset int
}

func NewTouchpoint(visitorID, eventType string, data EventData, now time.Time) *Touchpoint {
	return &Touchpoint{
		ID:        uuid.New().String(),
		VisitorID: NormalizeVisitorID(visitorID),
		EventType: eventType,
		EventData: data,
		CreatedAt: now,
	}
}

type TouchpointRepositoryInterface interface {
	UpsertVisitor(ctx context.Context, v *Visitor) error
	Create(ctx context.Context, t *Touchpoint) error
	FindByID(ctx context.Context, id string) (*Touchpoint, error)
	// List devolve do mais recente para o mais antigo.
	List(ctx context.Context, page Page) ([]*Touchpoint, error)
	// ListByVisitor devolve o histórico do visitor na ordem de escrita.
	ListByVisitor(ctx context.Context, visitorID string) ([]*Touchpoint, error)
}
