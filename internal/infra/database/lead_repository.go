package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	selectLeadColumns = `l.id, l.owner_id, l.status, l.merged_into, l.created_at, l.updated_at`

	findLeadByIDQuery = `SELECT ` + selectLeadColumns + ` FROM leads l WHERE l.id = $1`

	findLeadByEmailQuery = `
		SELECT ` + selectLeadColumns + `
		FROM lead_emails e
		JOIN leads l ON l.id = e.lead_id
		WHERE e.email = $1`

	findLeadByVisitorQuery = `
		SELECT ` + selectLeadColumns + `
		FROM lead_visitor_ids v
		JOIN leads l ON l.id = v.lead_id
		WHERE v.visitor_id = $1`

	insertLeadQuery = `
		INSERT INTO leads (id, owner_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	insertLeadEmailQuery = `
		INSERT INTO lead_emails (lead_id, email, is_primary, source_system, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING`

	insertLeadVisitorQuery = `
		INSERT INTO lead_visitor_ids (lead_id, visitor_id, first_linked_at, last_seen_at, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (visitor_id) DO NOTHING`

	touchLeadVisitorQuery = `
		UPDATE lead_visitor_ids SET last_seen_at = $3
		WHERE lead_id = $1 AND visitor_id = $2`

	listLeadEmailsQuery = `
		SELECT lead_id, email, is_primary, source_system, verified, created_at
		FROM lead_emails WHERE lead_id = $1
		ORDER BY is_primary DESC, created_at ASC`

	listLeadVisitorsQuery = `
		SELECT lead_id, visitor_id, first_linked_at, last_seen_at, source
		FROM lead_visitor_ids WHERE lead_id = $1
		ORDER BY first_linked_at ASC`

	// O email primário do absorvido só continua primário se o sobrevivente
	// ainda não tiver um.
	mergeEmailsQuery = `
		UPDATE lead_emails
		SET lead_id = $1,
			is_primary = (is_primary AND NOT EXISTS (
				SELECT 1 FROM lead_emails p WHERE p.lead_id = $1 AND p.is_primary
			))
		WHERE lead_id = $2`

	mergeVisitorsQuery    = `UPDATE lead_visitor_ids SET lead_id = $1 WHERE lead_id = $2`
	mergeTouchpointsQuery = `UPDATE touchpoints SET lead_id = $1 WHERE lead_id = $2`

	// Trava a linha do lead (UPDATE pega row lock no Postgres) e confirma que
	// ele ainda está ativo dentro da transação do merge.
	lockActiveLeadQuery = `
		UPDATE leads SET updated_at = $2
		WHERE id = $1 AND status <> $3`

	markLeadMergedQuery = `
		UPDATE leads SET status = $3, merged_into = $1, updated_at = $4
		WHERE id = $2 AND status <> $3`

	insertLeadMergeQuery = `
		INSERT INTO lead_merges (id, survivor_id, absorbed_id, reason, moved_emails, moved_visitors, moved_touchpoints, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*entity.Lead, error) {
	var lead entity.Lead
	err := row.Scan(
		&lead.ID,
		stringCol{&lead.OwnerID},
		&lead.Status,
		stringCol{&lead.MergedInto},
		timeCol{&lead.CreatedAt},
		timeCol{&lead.UpdatedAt},
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &lead, nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	return scanLead(r.DB.QueryRowContext(ctx, findLeadByIDQuery, id))
}

func (r *LeadRepository) FindByEmail(ctx context.Context, email string) (*entity.Lead, error) {
	return scanLead(r.DB.QueryRowContext(ctx, findLeadByEmailQuery, email))
}

func (r *LeadRepository) FindByVisitorID(ctx context.Context, visitorID string) (*entity.Lead, error) {
	return scanLead(r.DB.QueryRowContext(ctx, findLeadByVisitorQuery, visitorID))
}

func (r *LeadRepository) CreateWithIdentity(ctx context.Context, lead *entity.Lead, email *entity.LeadEmail, visitor *entity.LeadVisitorID) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create lead: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertLeadQuery,
		lead.ID,
		nullString(lead.OwnerID),
		lead.Status,
		lead.CreatedAt.UTC(),
		lead.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}

	if email != nil {
		email.LeadID = lead.ID
		inserted, err := execInserted(ctx, tx, insertLeadEmailQuery,
			email.LeadID, email.Email, email.IsPrimary, nullString(email.SourceSystem), email.Verified, email.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert lead email: %w", err)
		}
		if !inserted {
			return entity.ErrIdentityConflict
		}
	}

	if visitor != nil {
		visitor.LeadID = lead.ID
		inserted, err := execInserted(ctx, tx, insertLeadVisitorQuery,
			visitor.LeadID, visitor.VisitorID, visitor.FirstLinkedAt.UTC(), visitor.LastSeenAt.UTC(), nullString(visitor.Source))
		if err != nil {
			return fmt.Errorf("insert lead visitor: %w", err)
		}
		if !inserted {
			return entity.ErrIdentityConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create lead: %w", err)
	}
	return nil
}

func (r *LeadRepository) LinkEmail(ctx context.Context, email *entity.LeadEmail) (bool, error) {
	inserted, err := execInserted(ctx, r.DB, insertLeadEmailQuery,
		email.LeadID, email.Email, email.IsPrimary, nullString(email.SourceSystem), email.Verified, email.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("link email: %w", err)
	}
	return inserted, nil
}

func (r *LeadRepository) LinkVisitor(ctx context.Context, visitor *entity.LeadVisitorID) (bool, error) {
	inserted, err := execInserted(ctx, r.DB, insertLeadVisitorQuery,
		visitor.LeadID, visitor.VisitorID, visitor.FirstLinkedAt.UTC(), visitor.LastSeenAt.UTC(), nullString(visitor.Source))
	if err != nil {
		return false, fmt.Errorf("link visitor: %w", err)
	}
	return inserted, nil
}

func (r *LeadRepository) TouchVisitor(ctx context.Context, leadID, visitorID string, seenAt time.Time) error {
	if _, err := r.DB.ExecContext(ctx, touchLeadVisitorQuery, leadID, visitorID, seenAt.UTC()); err != nil {
		return fmt.Errorf("touch visitor: %w", err)
	}
	return nil
}

func (r *LeadRepository) ListEmails(ctx context.Context, leadID string) ([]entity.LeadEmail, error) {
	rows, err := r.DB.QueryContext(ctx, listLeadEmailsQuery, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead emails: %w", err)
	}
	defer rows.Close()

	var out []entity.LeadEmail
	for rows.Next() {
		var e entity.LeadEmail
		if err := rows.Scan(&e.LeadID, &e.Email, &e.IsPrimary, stringCol{&e.SourceSystem}, &e.Verified, timeCol{&e.CreatedAt}); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *LeadRepository) ListVisitorIDs(ctx context.Context, leadID string) ([]entity.LeadVisitorID, error) {
	rows, err := r.DB.QueryContext(ctx, listLeadVisitorsQuery, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead visitors: %w", err)
	}
	defer rows.Close()

	var out []entity.LeadVisitorID
	for rows.Next() {
		var v entity.LeadVisitorID
		if err := rows.Scan(&v.LeadID, &v.VisitorID, timeCol{&v.FirstLinkedAt}, timeCol{&v.LastSeenAt}, stringCol{&v.Source}); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Merge move emails, visitors e touchpoints do absorvido para o sobrevivente
// e grava a auditoria, tudo numa transação.
func (r *LeadRepository) Merge(ctx context.Context, m *entity.LeadMerge) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	// Sempre na mesma ordem de id: dois merges cruzados não entram em deadlock.
	first, second := m.SurvivorID, m.AbsorbedID
	if second < first {
		first, second = second, first
	}
	for _, id := range []string{first, second} {
		n, err := execCount(ctx, tx, lockActiveLeadQuery, id, m.CreatedAt.UTC(), entity.LeadStatusMerged)
		if err != nil {
			return fmt.Errorf("lock lead %s: %w", id, err)
		}
		if n == 0 {
			return entity.ErrAlreadyMerged
		}
	}

	n, err := execCount(ctx, tx, markLeadMergedQuery, m.SurvivorID, m.AbsorbedID, entity.LeadStatusMerged, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("mark lead merged: %w", err)
	}
	if n == 0 {
		return entity.ErrAlreadyMerged
	}

	if m.MovedEmails, err = execCount(ctx, tx, mergeEmailsQuery, m.SurvivorID, m.AbsorbedID); err != nil {
		return fmt.Errorf("move emails: %w", err)
	}
	if m.MovedVisitors, err = execCount(ctx, tx, mergeVisitorsQuery, m.SurvivorID, m.AbsorbedID); err != nil {
		return fmt.Errorf("move visitors: %w", err)
	}
	if m.MovedTouchpoints, err = execCount(ctx, tx, mergeTouchpointsQuery, m.SurvivorID, m.AbsorbedID); err != nil {
		return fmt.Errorf("move touchpoints: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertLeadMergeQuery,
		m.ID, m.SurvivorID, m.AbsorbedID, nullString(m.Reason),
		m.MovedEmails, m.MovedVisitors, m.MovedTouchpoints, m.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert merge audit: %w", err)
	}

	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execCount(ctx context.Context, db execer, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execInserted diz se um INSERT ... ON CONFLICT DO NOTHING gravou a linha.
func execInserted(ctx context.Context, db execer, query string, args ...any) (bool, error) {
	n, err := execCount(ctx, db, query, args...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
