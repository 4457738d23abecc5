package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	upsertVisitorQuery = `
		INSERT INTO visitors (visitor_id, owner_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (visitor_id)
		DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			owner_id = COALESCE(visitors.owner_id, EXCLUDED.owner_id)`

	insertTouchpointQuery = `
		INSERT INTO touchpoints (id, visitor_id, lead_id, owner_id, event_type, event_data, page_url, referrer, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectTouchpointColumns = `id, visitor_id, lead_id, owner_id, event_type, event_data, page_url, referrer, user_agent, created_at`

	findTouchpointQuery = `SELECT ` + selectTouchpointColumns + ` FROM touchpoints WHERE id = $1`

	listTouchpointsQuery = `
		SELECT ` + selectTouchpointColumns + `
		FROM touchpoints
		ORDER BY created_at DESC, seq DESC
		LIMIT $1 OFFSET $2`

	// Ordem de escrita, não de evento: seq desempata registros no mesmo instante.
	listTouchpointsByVisitorQuery = `
		SELECT ` + selectTouchpointColumns + `
		FROM touchpoints
		WHERE visitor_id = $1
		ORDER BY created_at ASC, seq ASC`
)

type TouchpointRepository struct {
	DB *sql.DB
}

func NewTouchpointRepository(db *sql.DB) *TouchpointRepository {
	return &TouchpointRepository{DB: db}
}

func (r *TouchpointRepository) UpsertVisitor(ctx context.Context, v *entity.Visitor) error {
	_, err := r.DB.ExecContext(ctx, upsertVisitorQuery, v.VisitorID, nullString(v.OwnerID), v.LastSeenAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert visitor: %w", err)
	}
	return nil
}

func (r *TouchpointRepository) Create(ctx context.Context, t *entity.Touchpoint) error {
	_, err := r.DB.ExecContext(ctx, insertTouchpointQuery,
		t.ID,
		t.VisitorID,
		nullString(t.LeadID),
		nullString(t.OwnerID),
		t.EventType,
		t.EventData,
		nullString(t.PageURL),
		nullString(t.Referrer),
		nullString(t.UserAgent),
		t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert touchpoint: %w", foreignKey(err))
	}
	return nil
}

func scanTouchpoint(row rowScanner) (*entity.Touchpoint, error) {
	var t entity.Touchpoint
	err := row.Scan(
		&t.ID,
		&t.VisitorID,
		stringCol{&t.LeadID},
		stringCol{&t.OwnerID},
		&t.EventType,
		&t.EventData,
		stringCol{&t.PageURL},
		stringCol{&t.Referrer},
		stringCol{&t.UserAgent},
		timeCol{&t.CreatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TouchpointRepository) FindByID(ctx context.Context, id string) (*entity.Touchpoint, error) {
	t, err := scanTouchpoint(r.DB.QueryRowContext(ctx, findTouchpointQuery, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *TouchpointRepository) List(ctx context.Context, page entity.Page) ([]*entity.Touchpoint, error) {
	return r.query(ctx, listTouchpointsQuery, page.Limit, page.Offset)
}

func (r *TouchpointRepository) ListByVisitor(ctx context.Context, visitorID string) ([]*entity.Touchpoint, error) {
	return r.query(ctx, listTouchpointsByVisitorQuery, visitorID)
}

func (r *TouchpointRepository) query(ctx context.Context, query string, args ...any) ([]*entity.Touchpoint, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list touchpoints: %w", err)
	}
	defer rows.Close()

	out := []*entity.Touchpoint{}
	for rows.Next() {
		t, err := scanTouchpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
