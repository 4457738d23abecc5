package entity

import (
	"context"
	"time"
)

type Stage string

const (
	StageInitial          Stage = "initial"
	StageRdvScheduled     Stage = "rdv_scheduled"
	StageRdvCompleted     Stage = "rdv_completed"
	StageRdvCanceled      Stage = "rdv_canceled"
	StageRdvRescheduled   Stage = "rdv_rescheduled"
	StagePaymentSucceeded Stage = "payment_succeeded"
)

var stages = map[Stage]struct{}{
	StageInitial:          {},
	StageRdvScheduled:     {},
	StageRdvCompleted:     {},
	StageRdvCanceled:      {},
	StageRdvRescheduled:   {},
	StagePaymentSucceeded: {},
}

// ParseStage aceita só os estágios conhecidos do funil.
func ParseStage(s string) (Stage, bool) {
	st := Stage(s)
	_, ok := stages[st]
	return st, ok
}

// IsTransient indica estágios que são registrados mas nunca viram current_stage.
func (s Stage) IsTransient() bool {
	return s == StageRdvRescheduled
}

type PaymentFields struct {
	Amount    int64  `json:"amount"` // centavos
	Currency  string `json:"currency,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// FunnelProgress guarda o estágio atual de um visitor e o último horário de
// cada estágio, independente do estágio atual.
type FunnelProgress struct {
	VisitorID        string     `json:"visitor_id"`
	CurrentStage     Stage      `json:"current_stage"`
	RdvScheduledAt   *time.Time `json:"rdv_scheduled_at,omitempty"`
	RdvCompletedAt   *time.Time `json:"rdv_completed_at,omitempty"`
	RdvCanceledAt    *time.Time `json:"rdv_canceled_at,omitempty"`
	RdvRescheduledAt *time.Time `json:"rdv_rescheduled_at,omitempty"`
	PaymentAt        *time.Time `json:"payment_at,omitempty"`
	Amount           *int64     `json:"amount,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	ProductID        string     `json:"product_id,omitempty"`
	PaymentID        string     `json:"payment_id,omitempty"`
	UserID           string     `json:"user_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ApplyStage preenche a coluna do estágio com at. Estágios transitórios não
// mexem em CurrentStage.
func (p *FunnelProgress) ApplyStage(stage Stage, at time.Time, payment *PaymentFields) {
	ts := at
	switch stage {
	case StageRdvScheduled:
		p.RdvScheduledAt = &ts
	case StageRdvCompleted:
		p.RdvCompletedAt = &ts
	case StageRdvCanceled:
		p.RdvCanceledAt = &ts
	case StageRdvRescheduled:
		p.RdvRescheduledAt = &ts
	case StagePaymentSucceeded:
		p.PaymentAt = &ts
		if payment != nil {
			amount := payment.Amount
			p.Amount = &amount
			p.Currency = payment.Currency
			p.ProductID = payment.ProductID
			p.PaymentID = payment.PaymentID
		}
	}
	if !stage.IsTransient() {
		p.CurrentStage = stage
	}
	p.UpdatedAt = at
}

type FunnelRepositoryInterface interface {
	// Upsert grava por visitor_id. Com keepStage o current_stage existente é
	// preservado; as colunas de timestamp nulas no input não sobrescrevem.
	Upsert(ctx context.Context, p *FunnelProgress, keepStage bool) error
	FindByVisitorID(ctx context.Context, visitorID string) (*FunnelProgress, error)
}
