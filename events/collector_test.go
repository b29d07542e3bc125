// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/db"
	"github.com/danielhkuo/paco-server/events"
	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/schedule"
	"github.com/danielhkuo/paco-server/signals"
	"github.com/danielhkuo/paco-server/testutil"
)

type fixture struct {
	store *schedule.Store
	repo  *db.Repository
	clock *calendar.FakeClock
	exp   models.Experiment
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	repo := db.NewRepository(testutil.SetupTestDB(t))
	clock := calendar.Fake(testutil.Epoch)
	store := schedule.NewStore(repo, signals.NewGenerator(signals.NewSource(1)), clock)

	e := testutil.ConstructExperiment(true)
	e.Published = true
	e, err := store.Create(ctx, testutil.Observer, e)
	require.NoError(t, err)

	_, _, err = store.Join(ctx, testutil.Subject, e.ID, nil, "UTC")
	require.NoError(t, err)

	return fixture{store: store, repo: repo, clock: clock, exp: e}
}

func (f fixture) collector(policy events.StalePolicy) *events.Collector {
	return events.NewCollector(f.repo, f.clock, policy)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.collector(events.PolicyRetain)

	f.clock.Advance(time.Minute)
	ev, err := c.Submit(ctx, testutil.Subject, f.exp.ID, testutil.ConstructEvent(f.exp.ModificationDate))
	require.NoError(t, err)

	_, err = uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, f.exp.ModificationDate, ev.ExperimentModificationDate)
	assert.Equal(t, calendar.Stamp(testutil.Epoch.Add(time.Minute)), ev.ReceivedAt)
	assert.Equal(t, map[string]string{"test": "value"}, ev.Outputs)
	require.NotNil(t, ev.SignalTime)
	assert.Equal(t, time.UnixMilli(3).UTC(), *ev.SignalTime)
	assert.False(t, ev.Stale)

	got, err := c.Get(ctx, testutil.Subject, f.exp.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	// Submitting never touches the experiment
	version, err := f.store.CurrentVersion(ctx, f.exp.ID)
	require.NoError(t, err)
	assert.Equal(t, f.exp.ModificationDate, version)
}

func TestSubmit_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.collector(events.PolicyRetain)

	noVersion := testutil.ConstructEvent(time.Time{})
	_, err := c.Submit(ctx, testutil.Subject, f.exp.ID, noVersion)
	assert.ErrorIs(t, err, models.ErrInvalid)

	noResponse := testutil.ConstructEvent(f.exp.ModificationDate)
	noResponse.ResponseTime = time.Time{}
	_, err = c.Submit(ctx, testutil.Subject, f.exp.ID, noResponse)
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = c.Submit(ctx, testutil.Outsider, f.exp.ID, testutil.ConstructEvent(f.exp.ModificationDate))
	assert.ErrorIs(t, err, models.ErrNotJoined)

	_, err = c.List(ctx, testutil.Outsider, f.exp.ID)
	assert.ErrorIs(t, err, models.ErrNotJoined)

	_, err = c.Get(ctx, testutil.Subject, f.exp.ID, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmit_StalePolicies(t *testing.T) {
	tests := []struct {
		policy    events.StalePolicy
		wantErr   error
		wantStale bool
	}{
		{events.PolicyRetain, nil, false},
		{events.PolicyAnnotate, nil, true},
		{events.PolicyReject, models.ErrStaleVersion, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			c := f.collector(tt.policy)

			// The observer moves on after the subject drafted the event
			_, err := f.store.Materialize(ctx, f.exp.ID)
			require.NoError(t, err)

			ev, err := c.Submit(ctx, testutil.Subject, f.exp.ID, testutil.ConstructEvent(f.exp.ModificationDate))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				evs, err := c.List(ctx, testutil.Subject, f.exp.ID)
				require.NoError(t, err)
				assert.Empty(t, evs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStale, ev.Stale)
			assert.Equal(t, f.exp.ModificationDate, ev.ExperimentModificationDate, "drafted version kept verbatim")
		})
	}
}

func TestSubmit_CurrentVersionNeverStale(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for _, policy := range []events.StalePolicy{events.PolicyAnnotate, events.PolicyReject} {
		ev, err := f.collector(policy).Submit(ctx, testutil.Subject, f.exp.ID, testutil.ConstructEvent(f.exp.ModificationDate))
		require.NoError(t, err)
		assert.False(t, ev.Stale)
	}
}

func TestSubmit_DraftedVersionKeptAsSent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.collector(events.PolicyAnnotate)

	// The same instant written in the subject's zone
	inZone := f.exp.ModificationDate.In(time.FixedZone("CEST", 2*60*60))
	ev, err := c.Submit(ctx, testutil.Subject, f.exp.ID, testutil.ConstructEvent(inZone))
	require.NoError(t, err)
	assert.False(t, ev.Stale)
	assert.True(t, inZone.Equal(ev.ExperimentModificationDate))

	got, err := c.Get(ctx, testutil.Subject, f.exp.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, f.exp.ModificationDate, got.ExperimentModificationDate)

	// Half a millisecond off is not the version, though it is stored at
	// millisecond precision
	off := f.exp.ModificationDate.Add(500 * time.Microsecond)
	ev, err = c.Submit(ctx, testutil.Subject, f.exp.ID, testutil.ConstructEvent(off))
	require.NoError(t, err)
	assert.True(t, ev.Stale)

	got, err = c.Get(ctx, testutil.Subject, f.exp.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.Stamp(off), got.ExperimentModificationDate)
	assert.True(t, got.Stale)
}

func TestList_OrderAndScope(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := f.collector(events.PolicyRetain)

	_, _, err := f.store.Join(ctx, testutil.Outsider, f.exp.ID, nil, "UTC")
	require.NoError(t, err)

	var ids []string
	for i := range 3 {
		f.clock.Advance(time.Second)
		req := testutil.ConstructEvent(f.exp.ModificationDate)
		req.Outputs = map[string]string{"n": string(rune('a' + i))}
		ev, err := c.Submit(ctx, testutil.Subject, f.exp.ID, req)
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}
	_, err = c.Submit(ctx, testutil.Outsider, f.exp.ID, testutil.ConstructEvent(f.exp.ModificationDate))
	require.NoError(t, err)

	evs, err := c.List(ctx, testutil.Subject, f.exp.ID)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, ids[i], ev.ID)
	}
	assert.Equal(t, evs[2].ReceivedAt, events.LastModified(evs))

	all, err := c.ListForExperiment(ctx, f.exp.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLastModified_Empty(t *testing.T) {
	assert.True(t, events.LastModified(nil).IsZero())
}

func TestParseStalePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    events.StalePolicy
		wantErr bool
	}{
		{"", events.PolicyRetain, false},
		{"retain", events.PolicyRetain, false},
		{"annotate", events.PolicyAnnotate, false},
		{"reject", events.PolicyReject, false},
		{"drop", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := events.ParseStalePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
