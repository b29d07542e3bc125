// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Paco API server.

Paco is an experience-sampling service. Observers author experiments with a
signal schedule; subjects join them, receive randomly drawn prompt times in
their own timezone, and submit events answering each prompt.

# Starting the Server

With no configuration the server uses a local SQLite file:

	go run .

Or with flags:

	go run . -p 8080 -t postgres -d "postgres://..." --fixtures fixtures/testdata/experiments.yaml

# Configuration

Every flag has an environment variable, and a .env file is loaded if present:

  - PORT (-p): Server port (default: 8080)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - DATABASE_URL (-d): file path or connection string (default: paco.db)
  - LOG_LEVEL (--log-level), LOG_FILE (--log-file)
  - DEFAULT_TIMEZONE (--default-timezone): for joins without X-Time-Zone
  - SIGNAL_SEED (--signal-seed): fixes signal draws when non-zero
  - STALE_POLICY (--stale-policy): retain, annotate or reject
  - EVENT_RATE, EVENT_BURST: per-subject event submission limits
  - FIXTURES_PATH (--fixtures): YAML experiments seeded at startup

# Architecture

  - handlers: HTTP request handlers (observer, subject, events)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, rate limiting, JSON helpers
  - schedule: Experiment store, joins and versioned materialization
  - signals: Random prompt generation
  - calendar: Clocks, versions and civil date arithmetic
  - events: Event collection and stale-version policy
  - conditional: ETag and conditional request evaluation
  - db: Connections, schema and SQL repository
  - models: Domain, request and response types
  - auth: Caller identity and timezone headers
  - metrics: Prometheus collectors
  - logging: slog handler setup
  - fixtures: YAML seeding
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
