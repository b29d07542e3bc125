// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles connections, schema creation and the SQL repository.

# Connections

Open accepts a dialect and a URL:

	conn, err := db.Open(db.DialectSQLite, "paco.db")
	conn, err := db.Open(db.DialectPostgres, "postgres://paco@localhost/paco?sslmode=disable")

SQLite databases are opened through modernc.org/sqlite with foreign keys on,
a busy timeout and IMMEDIATE transactions, and are limited to one open
connection. PostgreSQL goes through github.com/lib/pq.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn, db.DialectSQLite); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - experiment: Experiment definition, JSON-encoded inputs, viewers and schedule
  - experiment_join: One row per (subject, experiment), with optional schedule override
  - materialized_signal: Concrete prompt instants, tagged with the producing version
  - event: Append-only subject responses

# Relationships

	experiment 1──* experiment_join
	experiment_join 1──* materialized_signal
	experiment 1··* event (by id only, no foreign key)

Events carry no foreign key so that deleting an experiment keeps them.

# Versions

All timestamps are stored as Unix milliseconds. experiment.modified_at is
the version: every write that changes an experiment or its signals runs as
a conditional UPDATE on it inside one transaction, so a reader never sees a
new schedule with an old version or the reverse.
*/
package db
