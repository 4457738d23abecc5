package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BridgeTTL é por quanto tempo uma associação email↔visitor pode ser consumida.
const BridgeTTL = 7 * 24 * time.Hour

// BridgeAssociation liga um email a um visitor_id até que algum webhook
// consuma a associação (uso único).
type BridgeAssociation struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	VisitorID    string     `json:"visitor_id"`
	SourceAction string     `json:"source_action,omitempty"`
	EventData    EventData  `json:"event_data,omitempty"`
	OwnerID      string     `json:"owner_id,omitempty"`
	Processed    bool       `json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func NewBridgeAssociation(email, visitorID, sourceAction string, data EventData, ownerID string, now time.Time) *BridgeAssociation {
	return &BridgeAssociation{
		ID:           uuid.New().String(),
		Email:        NormalizeEmail(email),
		VisitorID:    NormalizeVisitorID(visitorID),
		SourceAction: sourceAction,
		EventData:    data,
		OwnerID:      ownerID,
		ExpiresAt:    now.Add(BridgeTTL),
		CreatedAt:    now,
	}
}

func (a *BridgeAssociation) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

type BridgeRepositoryInterface interface {
	Create(ctx context.Context, a *BridgeAssociation) error
	// ConsumeLatest marca, de forma atômica, a associação válida mais recente do
	// email como processada e a devolve; nil quando não há nenhuma.
	ConsumeLatest(ctx context.Context, email string, now time.Time) (*BridgeAssociation, error)
	// Release desfaz um consumo: a linha volta a ficar disponível como estava.
	Release(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
