package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	selectFunnelColumns = `visitor_id, current_stage, rdv_scheduled_at, rdv_completed_at, rdv_canceled_at, rdv_rescheduled_at,
		payment_at, amount, currency, product_id, payment_id, user_id, created_at, updated_at`

	// Upsert atômico por visitor_id. current_stage é last-write-wins (sem
	// checagem de transição); colunas de estágio só são sobrescritas quando
	// o input traz valor.
	upsertFunnelQuery = `
		INSERT INTO funnel_progress (
			visitor_id, current_stage, rdv_scheduled_at, rdv_completed_at, rdv_canceled_at, rdv_rescheduled_at,
			payment_at, amount, currency, product_id, payment_id, user_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (visitor_id)
		DO UPDATE SET
			current_stage = CASE WHEN $15 THEN funnel_progress.current_stage ELSE EXCLUDED.current_stage END,
			rdv_scheduled_at = COALESCE(EXCLUDED.rdv_scheduled_at, funnel_progress.rdv_scheduled_at),
			rdv_completed_at = COALESCE(EXCLUDED.rdv_completed_at, funnel_progress.rdv_completed_at),
			rdv_canceled_at = COALESCE(EXCLUDED.rdv_canceled_at, funnel_progress.rdv_canceled_at),
			rdv_rescheduled_at = COALESCE(EXCLUDED.rdv_rescheduled_at, funnel_progress.rdv_rescheduled_at),
			payment_at = COALESCE(EXCLUDED.payment_at, funnel_progress.payment_at),
			amount = COALESCE(EXCLUDED.amount, funnel_progress.amount),
			currency = COALESCE(EXCLUDED.currency, funnel_progress.currency),
			product_id = COALESCE(EXCLUDED.product_id, funnel_progress.product_id),
			payment_id = COALESCE(EXCLUDED.payment_id, funnel_progress.payment_id),
			user_id = COALESCE(EXCLUDED.user_id, funnel_progress.user_id),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + selectFunnelColumns

	findFunnelQuery = `SELECT ` + selectFunnelColumns + ` FROM funnel_progress WHERE visitor_id = $1`
)

type FunnelRepository struct {
	DB *sql.DB
}

func NewFunnelRepository(db *sql.DB) *FunnelRepository {
	return &FunnelRepository{DB: db}
}

func (r *FunnelRepository) Upsert(ctx context.Context, p *entity.FunnelProgress, keepStage bool) error {
	row := r.DB.QueryRowContext(ctx, upsertFunnelQuery,
		p.VisitorID,
		string(p.CurrentStage),
		nullTime(p.RdvScheduledAt),
		nullTime(p.RdvCompletedAt),
		nullTime(p.RdvCanceledAt),
		nullTime(p.RdvRescheduledAt),
		nullTime(p.PaymentAt),
		nullInt64(p.Amount),
		nullString(p.Currency),
		nullString(p.ProductID),
		nullString(p.PaymentID),
		nullString(p.UserID),
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
		keepStage,
	)
	saved, err := scanFunnel(row)
	if err != nil {
		return fmt.Errorf("upsert funnel progress: %w", err)
	}
	*p = *saved
	return nil
}

func (r *FunnelRepository) FindByVisitorID(ctx context.Context, visitorID string) (*entity.FunnelProgress, error) {
	p, err := scanFunnel(r.DB.QueryRowContext(ctx, findFunnelQuery, visitorID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func scanFunnel(row rowScanner) (*entity.FunnelProgress, error) {
	var (
		p      entity.FunnelProgress
		stage  string
		amount sql.NullInt64
	)
	err := row.Scan(
		&p.VisitorID,
		&stage,
		nullTimeCol{&p.RdvScheduledAt},
		nullTimeCol{&p.RdvCompletedAt},
		nullTimeCol{&p.RdvCanceledAt},
		nullTimeCol{&p.RdvRescheduledAt},
		nullTimeCol{&p.PaymentAt},
		&amount,
		stringCol{&p.Currency},
		stringCol{&p.ProductID},
		stringCol{&p.PaymentID},
		stringCol{&p.UserID},
		timeCol{&p.CreatedAt},
		timeCol{&p.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	p.CurrentStage = entity.Stage(stage)
	if amount.Valid {
		v := amount.Int64
		p.Amount = &v
	}
	return &p, nil
}
