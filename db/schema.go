// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB, dialect string) error {
	ddl, err := schemaFor(dialect)
	if err != nil {
		return err
	}

	_, err = db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func schemaFor(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return fmt.Sprintf(schema, "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER PRIMARY KEY AUTOINCREMENT"), nil
	case DialectPostgres:
		return fmt.Sprintf(schema, "BIGSERIAL PRIMARY KEY", "BIGSERIAL PRIMARY KEY"), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dialect)
	}
}

// Timestamps are stored as Unix milliseconds so both dialects compare them
// exactly; modified_at is the experiment's version stamp.
const schema = `
-- Experiments
CREATE TABLE IF NOT EXISTS experiment (
    id %s,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    creator TEXT NOT NULL,
    consent_form TEXT NOT NULL DEFAULT '',
    published BOOLEAN NOT NULL DEFAULT FALSE,
    feedback TEXT NOT NULL DEFAULT '',
    inputs TEXT NOT NULL DEFAULT '[]',
    viewers TEXT NOT NULL DEFAULT '[]',
    signal_schedule TEXT NOT NULL,
    modified_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiment_creator ON experiment(creator);
CREATE INDEX IF NOT EXISTS idx_experiment_published ON experiment(published);

-- Join relations
CREATE TABLE IF NOT EXISTS experiment_join (
    subject TEXT NOT NULL,
    experiment_id BIGINT NOT NULL REFERENCES experiment(id) ON DELETE CASCADE,
    override TEXT,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    joined_at BIGINT NOT NULL,
    PRIMARY KEY (subject, experiment_id)
);

CREATE INDEX IF NOT EXISTS idx_experiment_join_experiment ON experiment_join(experiment_id);

-- Materialized signals, tagged with the experiment version that produced them
CREATE TABLE IF NOT EXISTS materialized_signal (
    subject TEXT NOT NULL,
    experiment_id BIGINT NOT NULL,
    schedule_version BIGINT NOT NULL,
    scheduled_at BIGINT NOT NULL,
    FOREIGN KEY (subject, experiment_id) REFERENCES experiment_join(subject, experiment_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_materialized_signal_join ON materialized_signal(subject, experiment_id);
CREATE INDEX IF NOT EXISTS idx_materialized_signal_experiment ON materialized_signal(experiment_id);

-- Events outlive their experiment, so no foreign key
CREATE TABLE IF NOT EXISTS event (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    subject TEXT NOT NULL,
    experiment_id BIGINT NOT NULL,
    experiment_modified_at BIGINT NOT NULL,
    signal_time BIGINT,
    response_time BIGINT NOT NULL,
    outputs TEXT NOT NULL DEFAULT '{}',
    received_at BIGINT NOT NULL,
    stale BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_event_subject_experiment ON event(subject, experiment_id, seq);
CREATE INDEX IF NOT EXISTS idx_event_experiment ON event(experiment_id, seq);
`
