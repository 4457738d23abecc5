package entity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	LeadStatusActive = "ACTIVE"
	LeadStatusMerged = "MERGED"
)

// Lead é a identidade canônica de uma pessoa (prospect ou cliente).
type Lead struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Status     string    `json:"status"` // ACTIVE, MERGED
	MergedInto string    `json:"merged_into,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type LeadEmail struct {
	LeadID       string    `json:"lead_id"`
	Email        string    `json:"email"`
	IsPrimary    bool      `json:"is_primary"`
	SourceSystem string    `json:"source_system,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

type LeadVisitorID struct {
	LeadID        string    `json:"lead_id"`
	VisitorID     string    `json:"visitor_id"`
	FirstLinkedAt time.Time `json:"first_linked_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	Source        string    `json:"source,omitempty"`
}

// LeadMerge é a linha de auditoria gravada quando dois leads são fundidos.
type LeadMerge struct {
	ID               string    `json:"id"`
	SurvivorID       string    `json:"survivor_id"`
	AbsorbedID       string    `json:"absorbed_id"`
	Reason           string    `json:"reason,omitempty"`
	MovedEmails      int64     `json:"moved_emails"`
	MovedVisitors    int64     `json:"moved_visitors"`
	MovedTouchpoints int64     `json:"moved_touchpoints"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewLead(ownerID string, now time.Time) *Lead {
	return &Lead{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Status:    LeadStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewLeadMerge(survivorID, absorbedID, reason string, now time.Time) *LeadMerge {
	return &LeadMerge{
		ID:         uuid.New().String(),
		SurvivorID: survivorID,
		AbsorbedID: absorbedID,
		Reason:     reason,
		CreatedAt:  now,
	}
}

// NormalizeEmail gera a chave de match exato usada nas buscas de identidade.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeVisitorID(visitorID string) string {
	return strings.TrimSpace(visitorID)
}

type LeadRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*Lead, error)
	FindByEmail(ctx context.Context, email string) (*Lead, error)
	FindByVisitorID(ctx context.Context, visitorID string) (*Lead, error)

	// CreateWithIdentity grava o lead e as identidades numa única transação.
	// Retorna ErrIdentityConflict se o email ou visitor já pertence a outro lead.
	CreateWithIdentity(ctx context.Context, lead *Lead, email *LeadEmail, visitor *LeadVisitorID) error

	// LinkEmail e LinkVisitor só inserem quando a chave está livre; false quer
	// dizer que outro lead já é dono dela.
	LinkEmail(ctx context.Context, email *LeadEmail) (bool, error)
	LinkVisitor(ctx context.Context, visitor *LeadVisitorID) (bool, error)
	TouchVisitor(ctx context.Context, leadID, visitorID string, seenAt time.Time) error

	ListEmails(ctx context.Context, leadID string) ([]LeadEmail, error)
	ListVisitorIDs(ctx context.Context, leadID string) ([]LeadVisitorID, error)

	Merge(ctx context.Context, merge *LeadMerge) error
}
