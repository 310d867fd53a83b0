package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS trends (
    id                TEXT PRIMARY KEY,
    topic             TEXT NOT NULL,
    source            TEXT NOT NULL,
    relevance_score   DOUBLE PRECISION,
    summary           TEXT,
    raw_data          JSONB,
    identified_at     TIMESTAMPTZ NOT NULL,
    last_processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS post_drafts (
    id                      TEXT PRIMARY KEY,
    trend_id                TEXT,
    headline_suggestion     TEXT,
    generated_text          TEXT NOT NULL,
    image_prompt            TEXT,
    generated_image_url     TEXT,
    image_job_id            TEXT,
    status                  TEXT NOT NULL,
    voice_profile           TEXT,
    created_at              TIMESTAMPTZ NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL,
    scheduled_publish_time  TIMESTAMPTZ,
    external_post_id        TEXT,
    error_message           TEXT,
    approval_message_id     TEXT,
    engagement_stats        JSONB,
    engagement_last_checked TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS credentials (
    operator_id        TEXT PRIMARY KEY,
    access_token       TEXT NOT NULL,
    refresh_token      TEXT,
    expires_at         TIMESTAMPTZ NOT NULL,
    refresh_expires_at TIMESTAMPTZ,
    account_urn        TEXT,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// nullStr maps the empty string to SQL NULL so that IS NULL predicates on
// idempotency flags stay meaningful.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func timeOrNil(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}
