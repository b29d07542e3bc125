// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Paco API.

# Handler Types

Each handler is a struct wrapping the domain services it needs:

  - ObserverHandler: Experiment authoring, re-materialization and event export
  - SubjectHandler: Discovery, joining and leaving, joined views
  - EventHandler: Event submission and a subject's own event history

Handlers are created via constructor functions:

	observer := handlers.NewObserverHandler(store, collector)
	subject := handlers.NewSubjectHandler(store, cfg)
	events := handlers.NewEventHandler(collector)

# Identity

Every endpoint requires the X-User-Email header. A missing header is a 401,
a malformed one a 400. Join also reads X-Time-Zone, falling back to the
configured default timezone.

# Observer Endpoints

	POST   /observer/experiments                  → CreateExperiment
	GET    /observer/experiments                  → ListExperiments
	GET    /observer/experiments/{id}             → GetExperiment
	PUT    /observer/experiments/{id}             → UpdateExperiment
	DELETE /observer/experiments/{id}             → DeleteExperiment
	POST   /observer/experiments/{id}/materialize → Materialize
	GET    /observer/experiments/{id}/events      → ListEvents

Only the creator may use an experiment's observer endpoints; anyone else
gets a 403. UpdateExperiment treats the body's modification_date as the
version being replaced and answers 409 if it is no longer current.

# Subject Endpoints

	GET    /experiments                                  → ListAvailable
	GET    /experiments/{id}                             → GetAvailable
	POST   /experiments/{id}                             → Join
	GET    /subject/experiments                          → ListJoined
	GET    /subject/experiments/{id}                     → GetJoined
	DELETE /subject/experiments/{id}                     → Leave
	POST   /subject/experiments/{id}/events              → SubmitEvent
	GET    /subject/experiments/{id}/events              → ListEvents
	GET    /subject/experiments/{id}/events/{eventId}    → GetEvent

An experiment that exists but is not visible to the caller is a 403; one
that does not exist is a 404.

# Conditional Reads

Single-resource and list reads go through conditional.Serve, so they carry
ETag and Last-Modified and honor If-Match, If-None-Match and
If-Modified-Since.

# Errors

writeError maps domain errors to status codes:

	ErrInvalid, ErrInvalidUser, ErrInvalidTimezone → 400
	ErrMissingUser                                 → 401
	ErrForbidden, ErrNotEditable                   → 403
	ErrNotFound, ErrNotJoined                      → 404
	ErrVersionConflict, ErrStaleVersion            → 409
	ErrPreconditionFailed                          → 412
*/
package handlers
