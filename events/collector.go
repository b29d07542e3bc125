// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/metrics"
	"github.com/danielhkuo/paco-server/models"
)

// Repository is the persistence the collector needs. *db.Repository
// implements it.
type Repository interface {
	LoadExperiment(ctx context.Context, id int64) (models.Experiment, error)
	LoadJoin(ctx context.Context, subject string, experimentID int64) (models.JoinRelation, error)
	AppendEvent(ctx context.Context, ev models.Event) error
	ListEvents(ctx context.Context, subject string, experimentID int64) ([]models.Event, error)
	ListExperimentEvents(ctx context.Context, experimentID int64) ([]models.Event, error)
}

// StalePolicy decides what happens to an event whose experiment
// modification date is not the experiment's current version.
type StalePolicy string

const (
	// PolicyRetain stores the event as is
	PolicyRetain StalePolicy = "retain"
	// PolicyAnnotate stores the event marked stale
	PolicyAnnotate StalePolicy = "annotate"
	// PolicyReject refuses the event with ErrStaleVersion
	PolicyReject StalePolicy = "reject"
)

func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(s); p {
	case PolicyRetain, PolicyAnnotate, PolicyReject:
		return p, nil
	case "":
		return PolicyRetain, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q", s)
	}
}

// Collector accepts and returns subject responses. Events are append-only:
// nothing here modifies an experiment or a stored event.
type Collector struct {
	repo   Repository
	clock  calendar.Clock
	policy StalePolicy
}

func NewCollector(repo Repository, clock calendar.Clock, policy StalePolicy) *Collector {
	return &Collector{repo: repo, clock: clock, policy: policy}
}

// Submit stores a response from a joined subject. The experiment
// modification date the subject drafted against is kept as the same
// instant, never replaced by the current version.
func (c *Collector) Submit(ctx context.Context, subject string, id int64, req models.SubmitEventRequest) (models.Event, error) {
	if req.ExperimentModificationDate.IsZero() {
		return models.Event{}, fmt.Errorf("%w: experiment_modification_date is required", models.ErrInvalid)
	}
	if req.ResponseTime.IsZero() {
		return models.Event{}, fmt.Errorf("%w: response_time is required", models.ErrInvalid)
	}

	if _, err := c.repo.LoadJoin(ctx, subject, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.EventsSubmitted.WithLabelValues("not_joined").Inc()
			return models.Event{}, fmt.Errorf("%s in experiment %d: %w", subject, id, models.ErrNotJoined)
		}
		return models.Event{}, err
	}

	// Compared as sent; stored at millisecond precision in UTC, which every
	// version the server issues survives unchanged
	drafted := calendar.Stamp(req.ExperimentModificationDate)
	stale := false
	if c.policy != PolicyRetain {
		e, err := c.repo.LoadExperiment(ctx, id)
		if err != nil {
			return models.Event{}, err
		}
		stale = !req.ExperimentModificationDate.Equal(e.ModificationDate)
	}
	if stale && c.policy == PolicyReject {
		metrics.EventsSubmitted.WithLabelValues("rejected_stale").Inc()
		return models.Event{}, fmt.Errorf("event drafted at %s: %w", drafted.Format(time.RFC3339Nano), models.ErrStaleVersion)
	}

	ev := models.Event{
		ID:                         auth.GenerateID(),
		Subject:                    subject,
		ExperimentID:               id,
		ExperimentModificationDate: drafted,
		ResponseTime:               calendar.Stamp(req.ResponseTime),
		Outputs:                    req.Outputs,
		ReceivedAt:                 calendar.Stamp(c.clock.Now()),
		Stale:                      stale,
	}
	if req.SignalTime != nil {
		st := calendar.Stamp(*req.SignalTime)
		ev.SignalTime = &st
	}
	if ev.Outputs == nil {
		ev.Outputs = map[string]string{}
	}

	if err := c.repo.AppendEvent(ctx, ev); err != nil {
		return models.Event{}, err
	}

	result := "accepted"
	if stale {
		result = "annotated_stale"
	}
	metrics.EventsSubmitted.WithLabelValues(result).Inc()
	slog.Info("event received",
		"id", ev.ID,
		"experiment", id,
		"subject", subject,
		"stale", stale,
	)

	return ev, nil
}

// List returns a joined subject's events for the experiment in the order
// they were received.
func (c *Collector) List(ctx context.Context, subject string, id int64) ([]models.Event, error) {
	if _, err := c.repo.LoadJoin(ctx, subject, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%s in experiment %d: %w", subject, id, models.ErrNotJoined)
		}
		return nil, err
	}
	return c.repo.ListEvents(ctx, subject, id)
}

// Get returns one of the subject's events.
func (c *Collector) Get(ctx context.Context, subject string, id int64, eventID string) (models.Event, error) {
	evs, err := c.List(ctx, subject, id)
	if err != nil {
		return models.Event{}, err
	}
	for _, ev := range evs {
		if ev.ID == eventID {
			return ev, nil
		}
	}
	return models.Event{}, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
}

// ListForExperiment returns every subject's events for the experiment in
// the order they were received. Access control is the caller's job.
func (c *Collector) ListForExperiment(ctx context.Context, id int64) ([]models.Event, error) {
	return c.repo.ListExperimentEvents(ctx, id)
}

// LastModified is the newest receive time in evs, or zero.
func LastModified(evs []models.Event) time.Time {
	var last time.Time
	for _, ev := range evs {
		if ev.ReceivedAt.After(last) {
			last = ev.ReceivedAt
		}
	}
	return last
}
