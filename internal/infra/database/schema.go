package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Idempotente: CREATE TABLE/INDEX IF NOT EXISTS.
// Os índices únicos em lead_emails.email e lead_visitor_ids.visitor_id são
// a garantia de "um dono por identidade" sob concorrência.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id          UUID PRIMARY KEY,
	owner_id    TEXT,
	status      TEXT NOT NULL DEFAULT 'ACTIVE',
	merged_into UUID REFERENCES leads(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_emails (
	lead_id       UUID NOT NULL REFERENCES leads(id),
	email         TEXT NOT NULL,
	is_primary    BOOLEAN NOT NULL DEFAULT FALSE,
	source_system TEXT,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_emails_email ON lead_emails(email);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_emails_primary ON lead_emails(lead_id) WHERE is_primary;

CREATE TABLE IF NOT EXISTS lead_visitor_ids (
	lead_id         UUID NOT NULL REFERENCES leads(id),
	visitor_id      TEXT NOT NULL,
	first_linked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	source          TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_visitor_ids_visitor ON lead_visitor_ids(visitor_id);
CREATE INDEX IF NOT EXISTS idx_lead_visitor_ids_lead ON lead_visitor_ids(lead_id);

CREATE TABLE IF NOT EXISTS lead_merges (
	id                UUID PRIMARY KEY,
	survivor_id       UUID NOT NULL REFERENCES leads(id),
	absorbed_id       UUID NOT NULL REFERENCES leads(id),
	reason            TEXT,
	moved_emails      BIGINT NOT NULL DEFAULT 0,
	moved_visitors    BIGINT NOT NULL DEFAULT 0,
	moved_touchpoints BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bridge_associations (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	visitor_id    TEXT NOT NULL,
	source_action TEXT,
	event_data    JSONB NOT NULL DEFAULT '{}',
	owner_id      TEXT,
	processed     BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at  TIMESTAMPTZ,
	expires_at    TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bridge_email_live ON bridge_associations(email, created_at DESC) WHERE NOT processed;
CREATE INDEX IF NOT EXISTS idx_bridge_expires_at ON bridge_associations(expires_at);

CREATE TABLE IF NOT EXISTS visitors (
	visitor_id    TEXT PRIMARY KEY,
	owner_id      TEXT,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS touchpoints (
	id         UUID PRIMARY KEY,
	seq        BIGSERIAL NOT NULL,
	visitor_id TEXT NOT NULL,
	lead_id    UUID REFERENCES leads(id),
	owner_id   TEXT,
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL DEFAULT '{}',
	page_url   TEXT,
	referrer   TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_touchpoints_visitor ON touchpoints(visitor_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_touchpoints_created ON touchpoints(created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_touchpoints_lead ON touchpoints(lead_id);

CREATE TABLE IF NOT EXISTS funnel_progress (
	visitor_id         TEXT PRIMARY KEY,
	current_stage      TEXT NOT NULL,
	rdv_scheduled_at   TIMESTAMPTZ,
	rdv_completed_at   TIMESTAMPTZ,
	rdv_canceled_at    TIMESTAMPTZ,
	rdv_rescheduled_at TIMESTAMPTZ,
	payment_at         TIMESTAMPTZ,
	amount             BIGINT,
	currency           TEXT,
	product_id         TEXT,
	payment_id         TEXT,
	user_id            TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SQLite: mesmo modelo, tipos TIMESTAMP para o driver devolver time.Time.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT,
	status      TEXT NOT NULL DEFAULT 'ACTIVE',
	merged_into TEXT REFERENCES leads(id),
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_emails (
	lead_id       TEXT NOT NULL REFERENCES leads(id),
	email         TEXT NOT NULL,
	is_primary    BOOLEAN NOT NULL DEFAULT FALSE,
	source_system TEXT,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_emails_email ON lead_emails(email);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_emails_primary ON lead_emails(lead_id) WHERE is_primary;

CREATE TABLE IF NOT EXISTS lead_visitor_ids (
	lead_id         TEXT NOT NULL REFERENCES leads(id),
	visitor_id      TEXT NOT NULL,
	first_linked_at TIMESTAMP NOT NULL,
	last_seen_at    TIMESTAMP NOT NULL,
	source          TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_lead_visitor_ids_visitor ON lead_visitor_ids(visitor_id);
CREATE INDEX IF NOT EXISTS idx_lead_visitor_ids_lead ON lead_visitor_ids(lead_id);

CREATE TABLE IF NOT EXISTS lead_merges (
	id                TEXT PRIMARY KEY,
	survivor_id       TEXT NOT NULL REFERENCES leads(id),
	absorbed_id       TEXT NOT NULL REFERENCES leads(id),
	reason            TEXT,
	moved_emails      INTEGER NOT NULL DEFAULT 0,
	moved_visitors    INTEGER NOT NULL DEFAULT 0,
	moved_touchpoints INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS bridge_associations (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	visitor_id    TEXT NOT NULL,
	source_action TEXT,
	event_data    TEXT NOT NULL DEFAULT '{}',
	owner_id      TEXT,
	processed     BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at  TIMESTAMP,
	expires_at    TIMESTAMP NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bridge_email ON bridge_associations(email, processed, created_at);
CREATE INDEX IF NOT EXISTS idx_bridge_expires_at ON bridge_associations(expires_at);

CREATE TABLE IF NOT EXISTS visitors (
	visitor_id    TEXT PRIMARY KEY,
	owner_id      TEXT,
	first_seen_at TIMESTAMP NOT NULL,
	last_seen_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS touchpoints (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	visitor_id TEXT NOT NULL,
	lead_id    TEXT REFERENCES leads(id),
	owner_id   TEXT,
	event_type TEXT NOT NULL,
	event_data TEXT NOT NULL DEFAULT '{}',
	page_url   TEXT,
	referrer   TEXT,
	user_agent TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_touchpoints_visitor ON touchpoints(visitor_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_touchpoints_lead ON touchpoints(lead_id);

CREATE TABLE IF NOT EXISTS funnel_progress (
	visitor_id         TEXT PRIMARY KEY,
	current_stage      TEXT NOT NULL,
	rdv_scheduled_at   TIMESTAMP,
	rdv_completed_at   TIMESTAMP,
	rdv_canceled_at    TIMESTAMP,
	rdv_rescheduled_at TIMESTAMP,
	payment_at         TIMESTAMP,
	amount             INTEGER,
	currency           TEXT,
	product_id         TEXT,
	payment_id         TEXT,
	user_id            TEXT,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);
`

// Migrate cria as tabelas do driver informado.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var ddl string
	switch driver {
	case DriverPostgres:
		ddl = postgresSchema
	case DriverSQLite:
		ddl = sqliteSchema
	default:
		return fmt.Errorf("unsupported store driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s schema: %w", driver, err)
	}
	return nil
}
