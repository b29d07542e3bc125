// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/metrics"
	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/signals"
)

// Repository is the persistence the store needs. *db.Repository implements it.
type Repository interface {
	CreateExperiment(ctx context.Context, e models.Experiment) (int64, error)
	LoadExperiment(ctx context.Context, id int64) (models.Experiment, error)
	ListExperimentsByCreator(ctx context.Context, creator string) ([]models.Experiment, error)
	ListPublishedExperiments(ctx context.Context) ([]models.Experiment, error)
	SwapExperiment(ctx context.Context, e models.Experiment, prior time.Time, version func(floor time.Time) time.Time, materialize func(models.JoinRelation, time.Time) []models.MaterializedSignal) (time.Time, error)
	DeleteExperiment(ctx context.Context, id int64) error

	LoadJoin(ctx context.Context, subject string, experimentID int64) (models.JoinRelation, error)
	ListJoinsBySubject(ctx context.Context, subject string) ([]models.JoinRelation, error)
	SaveJoin(ctx context.Context, j models.JoinRelation, version time.Time, signals []models.MaterializedSignal) error
	DeleteJoin(ctx context.Context, subject string, experimentID int64) error

	ListSignals(ctx context.Context, subject string, experimentID int64) ([]models.MaterializedSignal, error)
}

// Attempts made when a write races another writer and the caller did not
// pin a version, and when a read straddles a swap.
const (
	maxSwapAttempts = 3
	maxReadAttempts = 3
)

// Materialization triggers, as reported in metrics
const (
	triggerUpdate        = "update"
	triggerRematerialize = "rematerialize"
	triggerJoin          = "join"
)

// Enrollment is a subject's consistent view of one joined experiment.
type Enrollment struct {
	Experiment models.Experiment
	Join       models.JoinRelation
	Signals    []models.MaterializedSignal
}

// Version is the enrollment's resource version: it moves when the
// experiment changes and when the subject rejoins.
func (en Enrollment) Version() time.Time {
	if en.Join.JoinedAt.After(en.Experiment.ModificationDate) {
		return en.Join.JoinedAt
	}
	return en.Experiment.ModificationDate
}

// Store owns experiments, their versions and every subject's materialized
// signals. It is safe for concurrent use.
type Store struct {
	repo  Repository
	gen   *signals.Generator
	clock calendar.Clock
}

func NewStore(repo Repository, gen *signals.Generator, clock calendar.Clock) *Store {
	return &Store{repo: repo, gen: gen, clock: clock}
}

// Create stores a new experiment owned by creator and returns it with its
// id and first version.
func (s *Store) Create(ctx context.Context, creator string, e models.Experiment) (models.Experiment, error) {
	e.ID = 0
	e.Creator = creator
	e.Normalize()
	if err := models.Validate(e); err != nil {
		return models.Experiment{}, err
	}
	e.ModificationDate = calendar.NextVersion(s.clock, time.Time{})

	id, err := s.repo.CreateExperiment(ctx, e)
	if err != nil {
		return models.Experiment{}, fmt.Errorf("create experiment: %w", err)
	}
	e.ID = id

	slog.Info("experiment created", "id", id, "creator", creator, "state", e.State())
	return e, nil
}

// Update applies mutate to the experiment at version prior and swaps it in
// under a new version, re-materializing every joined subject's signals in
// the same write. A zero prior means "whatever is current", retried a few
// times if another writer gets there first; a non-zero prior that is no
// longer current fails with ErrVersionConflict.
func (s *Store) Update(ctx context.Context, id int64, prior time.Time, mutate func(*models.Experiment) error) (models.Experiment, error) {
	return s.update(ctx, id, prior, mutate, triggerUpdate)
}

// Materialize re-rolls every joined subject's signals and returns the new
// version.
func (s *Store) Materialize(ctx context.Context, id int64) (time.Time, error) {
	e, err := s.update(ctx, id, time.Time{}, nil, triggerRematerialize)
	if err != nil {
		return time.Time{}, err
	}
	return e.ModificationDate, nil
}

func (s *Store) update(ctx context.Context, id int64, prior time.Time, mutate func(*models.Experiment) error, trigger string) (models.Experiment, error) {
	pinned := !prior.IsZero()

	for attempt := 1; ; attempt++ {
		current, err := s.repo.LoadExperiment(ctx, id)
		if err != nil {
			return models.Experiment{}, err
		}

		expected := current.ModificationDate
		if pinned && !calendar.Stamp(prior).Equal(expected) {
			metrics.VersionConflicts.Inc()
			return models.Experiment{}, fmt.Errorf("experiment %d at %s, not %s: %w",
				id, expected.Format(time.RFC3339Nano), prior.Format(time.RFC3339Nano), models.ErrVersionConflict)
		}

		next := current
		if mutate != nil {
			if err := mutate(&next); err != nil {
				return models.Experiment{}, err
			}
		}
		next.ID = current.ID
		next.Creator = current.Creator
		next.Normalize()
		if err := models.Validate(next); err != nil {
			return models.Experiment{}, err
		}
		version, err := s.repo.SwapExperiment(ctx, next, expected,
			func(floor time.Time) time.Time { return calendar.NextVersion(s.clock, floor) },
			func(j models.JoinRelation, v time.Time) []models.MaterializedSignal {
				return s.gen.Materialize(j, j.Schedule(next), v)
			})
		if err == nil {
			next.ModificationDate = version
			metrics.Materializations.WithLabelValues(trigger).Inc()
			slog.Info("experiment swapped",
				"id", id,
				"trigger", trigger,
				"version", next.ModificationDate,
				"state", next.State(),
			)
			return next, nil
		}

		if !errors.Is(err, models.ErrVersionConflict) {
			return models.Experiment{}, err
		}
		metrics.VersionConflicts.Inc()
		if pinned || attempt >= maxSwapAttempts {
			return models.Experiment{}, err
		}
		slog.Debug("experiment swap lost a race, retrying", "id", id, "attempt", attempt)
	}
}

// CurrentVersion returns the experiment's modification date.
func (s *Store) CurrentVersion(ctx context.Context, id int64) (time.Time, error) {
	e, err := s.repo.LoadExperiment(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return e.ModificationDate, nil
}

func (s *Store) Get(ctx context.Context, id int64) (models.Experiment, error) {
	return s.repo.LoadExperiment(ctx, id)
}

// Owned lists the experiments created by creator.
func (s *Store) Owned(ctx context.Context, creator string) ([]models.Experiment, error) {
	return s.repo.ListExperimentsByCreator(ctx, creator)
}

// Visible lists the published experiments subject may see and join.
func (s *Store) Visible(ctx context.Context, subject string) ([]models.Experiment, error) {
	published, err := s.repo.ListPublishedExperiments(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]models.Experiment, 0, len(published))
	for _, e := range published {
		if e.VisibleTo(subject) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// Delete removes the experiment, its join relations and signals. Events
// submitted against it are kept.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteExperiment(ctx, id); err != nil {
		return err
	}
	slog.Info("experiment deleted", "id", id)
	return nil
}

// Join enrolls subject in the experiment, replacing any earlier relation,
// and materializes the subject's signals in tz. A non-nil override replaces
// the experiment's schedule for this subject and requires an editable
// schedule.
func (s *Store) Join(ctx context.Context, subject string, id int64, override *models.SignalSchedule, tz string) (models.JoinRelation, []models.MaterializedSignal, error) {
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return models.JoinRelation{}, nil, fmt.Errorf("%w: unknown timezone %q", models.ErrInvalid, tz)
	}
	if override != nil {
		if err := models.Validate(override); err != nil {
			return models.JoinRelation{}, nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		join, signals, err := s.join(ctx, subject, id, override, tz)
		if err == nil {
			metrics.Joins.WithLabelValues("joined").Inc()
			metrics.Materializations.WithLabelValues(triggerJoin).Inc()
			slog.Info("subject joined",
				"id", id,
				"subject", subject,
				"timezone", tz,
				"override", override != nil,
				"signals", len(signals),
			)
			return join, signals, nil
		}

		if errors.Is(err, models.ErrVersionConflict) && attempt < maxSwapAttempts {
			metrics.VersionConflicts.Inc()
			continue
		}
		metrics.Joins.WithLabelValues(joinResult(err)).Inc()
		return models.JoinRelation{}, nil, err
	}
}

func (s *Store) join(ctx context.Context, subject string, id int64, override *models.SignalSchedule, tz string) (models.JoinRelation, []models.MaterializedSignal, error) {
	e, err := s.repo.LoadExperiment(ctx, id)
	if err != nil {
		return models.JoinRelation{}, nil, err
	}
	if !e.VisibleTo(subject) {
		return models.JoinRelation{}, nil, fmt.Errorf("experiment %d not open to %s: %w", id, subject, models.ErrForbidden)
	}
	if override != nil && !e.SignalSchedule.Editable {
		return models.JoinRelation{}, nil, fmt.Errorf("experiment %d: %w", id, models.ErrNotEditable)
	}

	// A rejoin must move the subject's resource version forward
	floor := e.ModificationDate
	prev, err := s.repo.LoadJoin(ctx, subject, id)
	switch {
	case err == nil:
		if prev.JoinedAt.After(floor) {
			floor = prev.JoinedAt
		}
	case !errors.Is(err, models.ErrNotFound):
		return models.JoinRelation{}, nil, err
	}

	join := models.JoinRelation{
		Subject:      subject,
		ExperimentID: id,
		Override:     override,
		Timezone:     tz,
		JoinedAt:     calendar.NextVersion(s.clock, floor),
	}
	signals := s.gen.Materialize(join, join.Schedule(e), e.ModificationDate)

	if err := s.repo.SaveJoin(ctx, join, e.ModificationDate, signals); err != nil {
		return models.JoinRelation{}, nil, err
	}
	return join, signals, nil
}

func joinResult(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrNotEditable):
		return "not_editable"
	case errors.Is(err, models.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Leave removes the subject's relation and signals. Leaving twice reports
// ErrNotFound.
func (s *Store) Leave(ctx context.Context, subject string, id int64) error {
	if err := s.repo.DeleteJoin(ctx, subject, id); err != nil {
		return err
	}
	slog.Info("subject left", "id", id, "subject", subject)
	return nil
}

// Enrollment returns the experiment, join relation and signals of one
// joined experiment, read so that the signals belong to the returned
// experiment version. A subject that has not joined gets ErrNotJoined.
func (s *Store) Enrollment(ctx context.Context, subject string, id int64) (Enrollment, error) {
	for attempt := 1; ; attempt++ {
		en, err := s.readEnrollment(ctx, subject, id)
		if err != nil {
			return Enrollment{}, err
		}

		current, err := s.CurrentVersion(ctx, id)
		if err != nil {
			return Enrollment{}, err
		}
		if current.Equal(en.Experiment.ModificationDate) && signalsAt(en.Signals, current) {
			return en, nil
		}
		if attempt >= maxReadAttempts {
			return Enrollment{}, fmt.Errorf("experiment %d kept changing during read: %w", id, models.ErrVersionConflict)
		}
	}
}

func (s *Store) readEnrollment(ctx context.Context, subject string, id int64) (Enrollment, error) {
	e, err := s.repo.LoadExperiment(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	join, err := s.repo.LoadJoin(ctx, subject, id)
	if errors.Is(err, models.ErrNotFound) {
		return Enrollment{}, fmt.Errorf("%s in experiment %d: %w", subject, id, models.ErrNotJoined)
	}
	if err != nil {
		return Enrollment{}, err
	}
	signals, err := s.repo.ListSignals(ctx, subject, id)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Experiment: e, Join: join, Signals: signals}, nil
}

func signalsAt(signals []models.MaterializedSignal, version time.Time) bool {
	for _, sig := range signals {
		if !sig.ScheduleVersion.Equal(version) {
			return false
		}
	}
	return true
}

// Signals returns the subject's current prompt instants in order.
func (s *Store) Signals(ctx context.Context, subject string, id int64) ([]models.MaterializedSignal, error) {
	en, err := s.Enrollment(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	return en.Signals, nil
}

// Joined returns every experiment subject has joined, ordered by
// experiment id.
func (s *Store) Joined(ctx context.Context, subject string) ([]Enrollment, error) {
	joins, err := s.repo.ListJoinsBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}

	out := make([]Enrollment, len(joins))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, j := range joins {
		g.Go(func() error {
			en, err := s.Enrollment(ctx, subject, j.ExperimentID)
			if errors.Is(err, models.ErrNotJoined) || errors.Is(err, models.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			out[i] = en
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Leaves racing the listing are dropped
	enrolled := out[:0]
	for _, en := range out {
		if en.Experiment.ID != 0 {
			enrolled = append(enrolled, en)
		}
	}
	return enrolled, nil
}
