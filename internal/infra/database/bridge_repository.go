package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	insertBridgeQuery = `
		INSERT INTO bridge_associations (id, email, visitor_id, source_action, event_data, owner_id, processed, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`

	// Um único UPDATE condicional: dois consumidores concorrentes nunca
	// recebem a mesma associação (o segundo vê processed = TRUE e não afeta linha).
	consumeBridgeQuery = `
		UPDATE bridge_associations
		SET processed = TRUE, processed_at = $2
		WHERE id = (
			SELECT id FROM bridge_associations
			WHERE email = $1 AND processed = FALSE AND expires_at > $2
			ORDER BY created_at DESC
			LIMIT 1
		)
		AND processed = FALSE
		RETURNING id, email, visitor_id, source_action, event_data, owner_id, processed, processed_at, expires_at, created_at`

	releaseBridgeQuery = `
		UPDATE bridge_associations
		SET processed = FALSE, processed_at = NULL
		WHERE id = $1`

	deleteExpiredBridgeQuery = `DELETE FROM bridge_associations WHERE expires_at <= $1`
)

type BridgeRepository struct {
	DB *sql.DB
}

func NewBridgeRepository(db *sql.DB) *BridgeRepository {
	return &BridgeRepository{DB: db}
}

func (r *BridgeRepository) Create(ctx context.Context, a *entity.BridgeAssociation) error {
	_, err := r.DB.ExecContext(ctx, insertBridgeQuery,
		a.ID,
		a.Email,
		a.VisitorID,
		nullString(a.SourceAction),
		a.EventData,
		nullString(a.OwnerID),
		a.ExpiresAt.UTC(),
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert bridge association: %w", err)
	}
	return nil
}

func (r *BridgeRepository) ConsumeLatest(ctx context.Context, email string, now time.Time) (*entity.BridgeAssociation, error) {
	var a entity.BridgeAssociation
	err := r.DB.QueryRowContext(ctx, consumeBridgeQuery, email, now.UTC()).Scan(
		&a.ID,
		&a.Email,
		&a.VisitorID,
		stringCol{&a.SourceAction},
		&a.EventData,
		stringCol{&a.OwnerID},
		&a.Processed,
		nullTimeCol{&a.ProcessedAt},
		timeCol{&a.ExpiresAt},
		timeCol{&a.CreatedAt},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume bridge association: %w", err)
	}
	return &a, nil
}

func (r *BridgeRepository) Release(ctx context.Context, id string) error {
	n, err := execCount(ctx, r.DB, releaseBridgeQuery, id)
	if err != nil {
		return fmt.Errorf("release bridge association: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *BridgeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := execCount(ctx, r.DB, deleteExpiredBridgeQuery, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired bridge associations: %w", err)
	}
	return n, nil
}
