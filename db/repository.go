// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/paco-server/models"
)

// Repository persists experiments, join relations, materialized signals and
// events. It is safe for concurrent use.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Experiments

const experimentColumns = `id, title, description, creator, consent_form, published, feedback, inputs, viewers, signal_schedule, modified_at`

type encodedExperiment struct {
	inputs   string
	viewers  string
	schedule string
}

func encodeExperiment(e models.Experiment) (encodedExperiment, error) {
	inputs := e.Inputs
	if inputs == nil {
		inputs = []models.InputSpec{}
	}
	viewers := e.Viewers
	if viewers == nil {
		viewers = []string{}
	}

	in, err := json.Marshal(inputs)
	if err != nil {
		return encodedExperiment{}, fmt.Errorf("encode inputs: %w", err)
	}
	vw, err := json.Marshal(viewers)
	if err != nil {
		return encodedExperiment{}, fmt.Errorf("encode viewers: %w", err)
	}
	sc, err := json.Marshal(e.SignalSchedule)
	if err != nil {
		return encodedExperiment{}, fmt.Errorf("encode signal schedule: %w", err)
	}
	return encodedExperiment{inputs: string(in), viewers: string(vw), schedule: string(sc)}, nil
}

func scanExperiment(row scanner) (models.Experiment, error) {
	var e models.Experiment
	var inputs, viewers, schedule string
	var modifiedAt int64

	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Creator, &e.ConsentForm,
		&e.Published, &e.Feedback, &inputs, &viewers, &schedule, &modifiedAt,
	)
	if err != nil {
		return models.Experiment{}, err
	}

	if err := json.Unmarshal([]byte(inputs), &e.Inputs); err != nil {
		return models.Experiment{}, fmt.Errorf("decode inputs of experiment %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(viewers), &e.Viewers); err != nil {
		return models.Experiment{}, fmt.Errorf("decode viewers of experiment %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(schedule), &e.SignalSchedule); err != nil {
		return models.Experiment{}, fmt.Errorf("decode signal schedule of experiment %d: %w", e.ID, err)
	}
	e.ModificationDate = fromMillis(modifiedAt)

	return e, nil
}

// CreateExperiment inserts e and returns its new id. e.ModificationDate is
// stored as the first version.
func (r *Repository) CreateExperiment(ctx context.Context, e models.Experiment) (int64, error) {
	enc, err := encodeExperiment(e)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO experiment (title, description, creator, consent_form, published, feedback, inputs, viewers, signal_schedule, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, e.Title, e.Description, e.Creator, e.ConsentForm, e.Published, e.Feedback,
		enc.inputs, enc.viewers, enc.schedule, millis(e.ModificationDate)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}

	return id, nil
}

func (r *Repository) LoadExperiment(ctx context.Context, id int64) (models.Experiment, error) {
	return loadExperiment(ctx, r.db, id)
}

func loadExperiment(ctx context.Context, q queryer, id int64) (models.Experiment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiment WHERE id = $1`, id)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Experiment{}, fmt.Errorf("experiment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Experiment{}, fmt.Errorf("query experiment %d: %w", id, err)
	}
	return e, nil
}

func (r *Repository) ListExperimentsByCreator(ctx context.Context, creator string) ([]models.Experiment, error) {
	return r.listExperiments(ctx, `WHERE creator = $1`, creator)
}

func (r *Repository) ListPublishedExperiments(ctx context.Context) ([]models.Experiment, error) {
	return r.listExperiments(ctx, `WHERE published = $1`, true)
}

func (r *Repository) listExperiments(ctx context.Context, where string, args ...any) ([]models.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+experimentColumns+` FROM experiment `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer rows.Close()

	experiments := []models.Experiment{}
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

// SwapExperiment replaces the stored experiment iff its version still equals
// prior, and in the same transaction replaces the materialized signals of
// every joined subject with the output of materialize. The new version is
// version(floor), where floor is the later of prior and the newest join, so
// it passes every subject's resource version. Readers see either the old
// contents, version and signals or the new ones.
func (r *Repository) SwapExperiment(ctx context.Context, e models.Experiment, prior time.Time, version func(floor time.Time) time.Time, materialize func(models.JoinRelation, time.Time) []models.MaterializedSignal) (time.Time, error) {
	enc, err := encodeExperiment(e)
	if err != nil {
		return time.Time{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// No-op write: locks the experiment row so no join lands until commit
	res, err := tx.ExecContext(ctx, `
		UPDATE experiment SET modified_at = modified_at
		WHERE id = $1 AND modified_at = $2
	`, e.ID, millis(prior))
	if err != nil {
		return time.Time{}, fmt.Errorf("lock experiment %d: %w", e.ID, err)
	}
	if err := checkSwapped(ctx, tx, res, e.ID); err != nil {
		return time.Time{}, err
	}

	joins, err := listJoins(ctx, tx, `WHERE experiment_id = $1`, e.ID)
	if err != nil {
		return time.Time{}, err
	}
	floor := prior
	for _, j := range joins {
		if j.JoinedAt.After(floor) {
			floor = j.JoinedAt
		}
	}
	next := version(floor)

	_, err = tx.ExecContext(ctx, `
		UPDATE experiment
		SET title = $1, description = $2, consent_form = $3, published = $4, feedback = $5,
		    inputs = $6, viewers = $7, signal_schedule = $8, modified_at = $9
		WHERE id = $10
	`, e.Title, e.Description, e.ConsentForm, e.Published, e.Feedback,
		enc.inputs, enc.viewers, enc.schedule, millis(next), e.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("update experiment %d: %w", e.ID, err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM materialized_signal WHERE experiment_id = $1`, e.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("clear signals of experiment %d: %w", e.ID, err)
	}

	for _, j := range joins {
		if err := insertSignals(ctx, tx, materialize(j, next)); err != nil {
			return time.Time{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("commit experiment %d: %w", e.ID, err)
	}
	return next, nil
}

// checkSwapped turns a zero-row conditional update into ErrNotFound or
// ErrVersionConflict.
func checkSwapped(ctx context.Context, q queryer, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM experiment WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("query experiment %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("experiment %d: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("experiment %d: %w", id, models.ErrVersionConflict)
}

// DeleteExperiment removes the experiment with its join relations and
// signals. Events are kept.
func (r *Repository) DeleteExperiment(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM materialized_signal WHERE experiment_id = $1`, id); err != nil {
		return fmt.Errorf("delete signals of experiment %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM experiment_join WHERE experiment_id = $1`, id); err != nil {
		return fmt.Errorf("delete joins of experiment %d: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM experiment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete experiment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("experiment %d: %w", id, models.ErrNotFound)
	}

	return tx.Commit()
}

// Join relations

const joinColumns = `subject, experiment_id, override, timezone, joined_at`

func scanJoin(row scanner) (models.JoinRelation, error) {
	var j models.JoinRelation
	var override sql.NullString
	var joinedAt int64

	if err := row.Scan(&j.Subject, &j.ExperimentID, &override, &j.Timezone, &joinedAt); err != nil {
		return models.JoinRelation{}, err
	}
	if override.Valid {
		var s models.SignalSchedule
		if err := json.Unmarshal([]byte(override.String), &s); err != nil {
			return models.JoinRelation{}, fmt.Errorf("decode override: %w", err)
		}
		j.Override = &s
	}
	j.JoinedAt = fromMillis(joinedAt)
	return j, nil
}

func listJoins(ctx context.Context, q queryer, where string, args ...any) ([]models.JoinRelation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+joinColumns+` FROM experiment_join `+where+` ORDER BY experiment_id, subject`, args...)
	if err != nil {
		return nil, fmt.Errorf("query joins: %w", err)
	}
	defer rows.Close()

	joins := []models.JoinRelation{}
	for rows.Next() {
		j, err := scanJoin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan join: %w", err)
		}
		joins = append(joins, j)
	}
	return joins, rows.Err()
}

func (r *Repository) LoadJoin(ctx context.Context, subject string, experimentID int64) (models.JoinRelation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+joinColumns+` FROM experiment_join
		WHERE subject = $1 AND experiment_id = $2
	`, subject, experimentID)

	j, err := scanJoin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JoinRelation{}, fmt.Errorf("join %s/%d: %w", subject, experimentID, models.ErrNotFound)
	}
	if err != nil {
		return models.JoinRelation{}, fmt.Errorf("query join %s/%d: %w", subject, experimentID, err)
	}
	return j, nil
}

func (r *Repository) ListJoinsBySubject(ctx context.Context, subject string) ([]models.JoinRelation, error) {
	return listJoins(ctx, r.db, `WHERE subject = $1`, subject)
}

// SaveJoin creates or replaces a join relation together with its signals.
// It fails with ErrVersionConflict if the experiment moved past version,
// since the signals would then belong to a superseded schedule.
func (r *Repository) SaveJoin(ctx context.Context, j models.JoinRelation, version time.Time, signals []models.MaterializedSignal) error {
	var override sql.NullString
	if j.Override != nil {
		b, err := json.Marshal(j.Override)
		if err != nil {
			return fmt.Errorf("encode override: %w", err)
		}
		override = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// No-op write: locks the experiment row and checks the version in one step
	res, err := tx.ExecContext(ctx, `
		UPDATE experiment SET modified_at = modified_at
		WHERE id = $1 AND modified_at = $2
	`, j.ExperimentID, millis(version))
	if err != nil {
		return fmt.Errorf("lock experiment %d: %w", j.ExperimentID, err)
	}
	if err := checkSwapped(ctx, tx, res, j.ExperimentID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiment_join (subject, experiment_id, override, timezone, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject, experiment_id) DO UPDATE SET
			override = EXCLUDED.override,
			timezone = EXCLUDED.timezone,
			joined_at = EXCLUDED.joined_at
	`, j.Subject, j.ExperimentID, override, j.Timezone, millis(j.JoinedAt))
	if err != nil {
		return fmt.Errorf("save join %s/%d: %w", j.Subject, j.ExperimentID, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM materialized_signal WHERE subject = $1 AND experiment_id = $2
	`, j.Subject, j.ExperimentID)
	if err != nil {
		return fmt.Errorf("clear signals %s/%d: %w", j.Subject, j.ExperimentID, err)
	}

	if err := insertSignals(ctx, tx, signals); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteJoin removes the relation and its signals. A missing relation
// reports ErrNotFound.
func (r *Repository) DeleteJoin(ctx context.Context, subject string, experimentID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM materialized_signal WHERE subject = $1 AND experiment_id = $2
	`, subject, experimentID)
	if err != nil {
		return fmt.Errorf("delete signals %s/%d: %w", subject, experimentID, err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM experiment_join WHERE subject = $1 AND experiment_id = $2
	`, subject, experimentID)
	if err != nil {
		return fmt.Errorf("delete join %s/%d: %w", subject, experimentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("join %s/%d: %w", subject, experimentID, models.ErrNotFound)
	}

	return tx.Commit()
}

// Materialized signals

func insertSignals(ctx context.Context, q queryer, signals []models.MaterializedSignal) error {
	for _, s := range signals {
		_, err := q.ExecContext(ctx, `
			INSERT INTO materialized_signal (subject, experiment_id, schedule_version, scheduled_at)
			VALUES ($1, $2, $3, $4)
		`, s.Subject, s.ExperimentID, millis(s.ScheduleVersion), millis(s.ScheduledAt))
		if err != nil {
			return fmt.Errorf("insert signal %s/%d: %w", s.Subject, s.ExperimentID, err)
		}
	}
	return nil
}

func (r *Repository) ListSignals(ctx context.Context, subject string, experimentID int64) ([]models.MaterializedSignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject, experiment_id, schedule_version, scheduled_at
		FROM materialized_signal
		WHERE subject = $1 AND experiment_id = $2
		ORDER BY scheduled_at
	`, subject, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	signals := []models.MaterializedSignal{}
	for rows.Next() {
		var s models.MaterializedSignal
		var version, at int64
		if err := rows.Scan(&s.Subject, &s.ExperimentID, &version, &at); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.ScheduleVersion = fromMillis(version)
		s.ScheduledAt = fromMillis(at)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// Events

const eventColumns = `id, subject, experiment_id, experiment_modified_at, signal_time, response_time, outputs, received_at, stale`

// AppendEvent stores ev after every event already stored.
func (r *Repository) AppendEvent(ctx context.Context, ev models.Event) error {
	outputs := ev.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	b, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	var signalTime sql.NullInt64
	if ev.SignalTime != nil {
		signalTime = sql.NullInt64{Int64: millis(*ev.SignalTime), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO event (id, subject, experiment_id, experiment_modified_at, signal_time, response_time, outputs, received_at, stale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Subject, ev.ExperimentID, millis(ev.ExperimentModificationDate), signalTime,
		millis(ev.ResponseTime), string(b), millis(ev.ReceivedAt), ev.Stale)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns one subject's events for an experiment in insertion order.
func (r *Repository) ListEvents(ctx context.Context, subject string, experimentID int64) ([]models.Event, error) {
	return r.listEvents(ctx, `WHERE subject = $1 AND experiment_id = $2`, subject, experimentID)
}

// ListExperimentEvents returns every subject's events for an experiment in
// insertion order, including events of experiments since deleted.
func (r *Repository) ListExperimentEvents(ctx context.Context, experimentID int64) ([]models.Event, error) {
	return r.listEvents(ctx, `WHERE experiment_id = $1`, experimentID)
}

func (r *Repository) listEvents(ctx context.Context, where string, args ...any) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM event `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var modifiedAt, responseTime, receivedAt int64
		var signalTime sql.NullInt64
		var outputs string

		if err := rows.Scan(
			&ev.ID, &ev.Subject, &ev.ExperimentID, &modifiedAt, &signalTime,
			&responseTime, &outputs, &receivedAt, &ev.Stale,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if err := json.Unmarshal([]byte(outputs), &ev.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs of event %s: %w", ev.ID, err)
		}
		ev.ExperimentModificationDate = fromMillis(modifiedAt)
		ev.ResponseTime = fromMillis(responseTime)
		ev.ReceivedAt = fromMillis(receivedAt)
		if signalTime.Valid {
			st := fromMillis(signalTime.Int64)
			ev.SignalTime = &st
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
