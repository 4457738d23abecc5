package usecase

import (
	"time"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	MatchedByEmail   = "email"
	MatchedByVisitor = "visitor_id"
	MatchedByCreated = "created"
)

type ResolveInput struct {
	Email     string `json:"email,omitempty"`
	VisitorID string `json:"visitor_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

type ResolveOutput struct {
	Lead            *entity.Lead `json:"lead"`
	MatchedBy       string       `json:"matched_by"`
	EmailLinked     bool         `json:"email_linked"`
	VisitorLinked   bool         `json:"visitor_linked"`
	EmailConflict   bool         `json:"email_conflict,omitempty"`
	VisitorConflict bool         `json:"visitor_conflict,omitempty"`
}

type LeadDetails struct {
	Lead       *entity.Lead           `json:"lead"`
	Emails     []entity.LeadEmail     `json:"emails"`
	VisitorIDs []entity.LeadVisitorID `json:"visitor_ids"`
}

type MergeInput struct {
	SurvivorID string `json:"survivor_id"`
	AbsorbedID string `json:"absorbed_id"`
	Reason     string `json:"reason,omitempty"`
}

type RecordBridgeInput struct {
	Email        string           `json:"email"`
	VisitorID    string           `json:"visitor_id"`
	SourceAction string           `json:"source_action,omitempty"`
	EventData    entity.EventData `json:"event_data,omitempty"`
	OwnerID      string           `json:"owner_id,omitempty"`
}

type CreateTouchpointInput struct {
	VisitorID string           `json:"visitor_id"`
	EventType string           `json:"event_type"`
	EventData entity.EventData `json:"event_data,omitempty"`
	LeadID    string           `json:"lead_id,omitempty"`
	OwnerID   string           `json:"owner_id,omitempty"`
	PageURL   string           `json:"page_url,omitempty"`
	Referrer  string           `json:"referrer,omitempty"`
	UserAgent string           `json:"user_agent,omitempty"`
}

type UpdateFunnelInput struct {
	VisitorID string                `json:"visitor_id"`
	Stage     entity.Stage          `json:"stage"`
	StageAt   time.Time             `json:"stage_at,omitempty"`
	OwnerID   string                `json:"owner_id,omitempty"`
	Payment   *entity.PaymentFields `json:"payment,omitempty"`
}

// IngestEventInput é a tupla normalizada que cada adapter de webhook
// (Calendly, Stripe, iClosed...) entrega para o core.
type IngestEventInput struct {
	Email     string                `json:"email,omitempty"`
	VisitorID string                `json:"visitor_id,omitempty"`
	EventType string                `json:"event_type"`
	EventData entity.EventData      `json:"event_data,omitempty"`
	OwnerID   string                `json:"owner_id,omitempty"`
	Source    string                `json:"source,omitempty"`
	PageURL   string                `json:"page_url,omitempty"`
	StageAt   time.Time             `json:"stage_at,omitempty"`
	Payment   *entity.PaymentFields `json:"payment,omitempty"`
}

const (
	VisitorFromInput    = "input"
	VisitorFromMetadata = "metadata"
	VisitorFromBridge   = "bridge"
)

type IngestEventOutput struct {
	LeadID        string                 `json:"lead_id"`
	MatchedBy     string                 `json:"matched_by"`
	VisitorID     string                 `json:"visitor_id,omitempty"`
	VisitorSource string                 `json:"visitor_source,omitempty"`
	TouchpointID  string                 `json:"touchpoint_id,omitempty"`
	Funnel        *entity.FunnelProgress `json:"funnel,omitempty"`
	Skipped       string                 `json:"skipped,omitempty"`
	PartialWrites []string               `json:"partial_writes,omitempty"`
}

const (
	RetryKindTouchpoint   = "touchpoint"
	RetryKindBridgeRecord = "bridge_record"
)

// RetryJob é a mensagem publicada quando uma escrita secundária falha.
type RetryJob struct {
	Kind       string                 `json:"kind"`
	Touchpoint *CreateTouchpointInput `json:"touchpoint,omitempty"`
	Bridge     *RecordBridgeInput     `json:"bridge,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	FailedAt   time.Time              `json:"failed_at"`
}
