// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Paco API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

NewRouterWithClock does the same with an injected calendar.Clock, which
tests use to pin versions and receive times.

# Endpoints

Health and metrics:

	GET /health
	GET /metrics - Prometheus exposition

Experiment authoring (creator only):

	POST   /observer/experiments                  - Create experiment
	GET    /observer/experiments                  - List own experiments
	GET    /observer/experiments/{id}             - Get experiment
	PUT    /observer/experiments/{id}             - Replace experiment
	DELETE /observer/experiments/{id}             - Delete experiment
	POST   /observer/experiments/{id}/materialize - Re-roll all signals
	GET    /observer/experiments/{id}/events      - Export events

Discovery and joining:

	GET  /experiments      - Visible experiments
	GET  /experiments/{id} - One visible experiment
	POST /experiments/{id} - Join, with optional schedule override

Joined experiments and events:

	GET    /subject/experiments                       - Joined experiments
	GET    /subject/experiments/{id}                  - Joined view with signals
	DELETE /subject/experiments/{id}                  - Leave
	POST   /subject/experiments/{id}/events           - Submit event (rate limited)
	GET    /subject/experiments/{id}/events           - Own events
	GET    /subject/experiments/{id}/events/{eventId} - One event

# Handler Initialization

The router builds the domain services once and shares them:

	repo := db.NewRepository(conn)
	store := schedule.NewStore(repo, signals.NewGenerator(src), clock)
	collector := events.NewCollector(repo, clock, policy)

Event submission is rate limited per validated X-User-Email using
cfg.EventRate and cfg.EventBurst. A missing or malformed identity is limited
by client IP instead.
*/
package router
