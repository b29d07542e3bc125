// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/cliparse"
	"github.com/danielhkuo/paco-server/db"
	"github.com/danielhkuo/paco-server/events"
	"github.com/danielhkuo/paco-server/handlers"
	"github.com/danielhkuo/paco-server/metrics"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/schedule"
	"github.com/danielhkuo/paco-server/signals"
)

func NewRouter(conn *sql.DB, cfg cliparse.Config) *http.ServeMux {
	return NewRouterWithClock(conn, cfg, calendar.Real())
}

// NewRouterWithClock is NewRouter with an injectable clock for versions and
// receive times.
func NewRouterWithClock(conn *sql.DB, cfg cliparse.Config, clock calendar.Clock) *http.ServeMux {
	mux := http.NewServeMux()

	policy, err := events.ParseStalePolicy(cfg.StalePolicy)
	if err != nil {
		slog.Warn("falling back to retain", "error", err)
		policy = events.PolicyRetain
	}

	// Domain services
	repo := db.NewRepository(conn)
	store := schedule.NewStore(repo, signals.NewGenerator(signals.NewLockedSource(cfg.SignalSeed)), clock)
	collector := events.NewCollector(repo, clock, policy)

	// Initialize handlers
	observerHandler := handlers.NewObserverHandler(store, collector)
	subjectHandler := handlers.NewSubjectHandler(store, cfg)
	eventHandler := handlers.NewEventHandler(collector)

	limiter := middleware.NewRateLimiter(cfg.EventRate, cfg.EventBurst, middleware.DefaultMaxKeys)
	// Malformed identities share their client's IP bucket
	bySubject := func(r *http.Request) string {
		user, err := auth.UserFromRequest(r)
		if err != nil {
			return ""
		}
		return user
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Experiment authoring (creator only)
	mux.HandleFunc("POST /observer/experiments", middleware.WithLogging(observerHandler.CreateExperiment))
	mux.HandleFunc("GET /observer/experiments", middleware.WithLogging(observerHandler.ListExperiments))
	mux.HandleFunc("GET /observer/experiments/{id}", middleware.WithLogging(observerHandler.GetExperiment))
	mux.HandleFunc("PUT /observer/experiments/{id}", middleware.WithLogging(observerHandler.UpdateExperiment))
	mux.HandleFunc("DELETE /observer/experiments/{id}", middleware.WithLogging(observerHandler.DeleteExperiment))
	mux.HandleFunc("POST /observer/experiments/{id}/materialize", middleware.WithLogging(observerHandler.Materialize))
	mux.HandleFunc("GET /observer/experiments/{id}/events", middleware.WithLogging(observerHandler.ListEvents))

	// Discovery and joining
	mux.HandleFunc("GET /experiments", middleware.WithLogging(subjectHandler.ListAvailable))
	mux.HandleFunc("GET /experiments/{id}", middleware.WithLogging(subjectHandler.GetAvailable))
	mux.HandleFunc("POST /experiments/{id}", middleware.WithLogging(subjectHandler.Join))

	// Joined experiments
	mux.HandleFunc("GET /subject/experiments", middleware.WithLogging(subjectHandler.ListJoined))
	mux.HandleFunc("GET /subject/experiments/{id}", middleware.WithLogging(subjectHandler.GetJoined))
	mux.HandleFunc("DELETE /subject/experiments/{id}", middleware.WithLogging(subjectHandler.Leave))

	// Event collection
	mux.HandleFunc("POST /subject/experiments/{id}/events",
		middleware.WithLogging(middleware.WithRateLimit(limiter, bySubject, eventHandler.SubmitEvent)))
	mux.HandleFunc("GET /subject/experiments/{id}/events", middleware.WithLogging(eventHandler.ListEvents))
	mux.HandleFunc("GET /subject/experiments/{id}/events/{eventId}", middleware.WithLogging(eventHandler.GetEvent))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("paco API v1"))
	})

	return mux
}
