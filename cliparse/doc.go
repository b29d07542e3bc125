// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 8080)
  - DatabaseURL: SQLite file path or PostgreSQL connection string (default: paco.db)
  - DatabaseType: sqlite or postgres (default: sqlite)
  - LogLevel: debug, info, warn or error (default: info)
  - LogFile: Optional JSON log file, written alongside stderr
  - DefaultTimezone: Timezone for subjects that send no X-Time-Zone (default: UTC)
  - SignalSeed: Seed for signal draws, 0 for a random seed
  - StalePolicy: retain, annotate or reject (default: retain)
  - EventRate, EventBurst: Per-subject event submission limit (default: 1/s, burst 10)
  - FixturesPath: YAML experiments to seed at startup

# CLI Flags

	-p, --port              Server port
	-d, --database-url      Database URL
	-t, --database-type     Database type
	--log-level             Log level
	--log-file              JSON log file
	--default-timezone      Default subject timezone
	--signal-seed           Signal seed
	--stale-policy          Stale event policy
	--event-rate            Event submissions per second
	--event-burst           Event submission burst
	--fixtures              Fixture file
	--env-file              Environment file (default: .env)

# Environment Variables

Flags fall back to environment variables:

	PORT              → -p
	DATABASE_URL      → -d
	DATABASE_TYPE     → -t
	LOG_LEVEL         → --log-level
	LOG_FILE          → --log-file
	DEFAULT_TIMEZONE  → --default-timezone
	SIGNAL_SEED       → --signal-seed
	STALE_POLICY      → --stale-policy
	EVENT_RATE        → --event-rate
	EVENT_BURST       → --event-burst
	FIXTURES_PATH     → --fixtures

CLI flags take precedence over environment variables. Variables from the
env file (loaded with godotenv) never override ones already set.

# Validation

ParseFlags returns an error if:

  - DATABASE_URL is missing for postgres
  - the database type, log level, timezone or stale policy is unknown
  - the event rate or burst is not positive

# Example

	// In main.go
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	// ...
	mux := router.NewRouter(conn, cfg)
*/
package cliparse
