// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedule() SignalSchedule {
	return SignalSchedule{
		Recurrence: RecurrenceRule{
			StartDate: civil.Date{Year: 2012, Month: time.September, Day: 11},
			EndDate:   civil.Date{Year: 2012, Month: time.September, Day: 15},
			Every:     1,
		},
		Window: DailyWindow{StartTime: civil.Time{Hour: 9}, EndTime: civil.Time{Hour: 17}},
	}
}

func TestExperiment_StateAndVisibility(t *testing.T) {
	tests := []struct {
		name      string
		published bool
		viewers   []string
		state     string
		visible   bool
	}{
		{"draft", false, nil, StateDraft, false},
		{"draft with viewers", false, []string{"a@b.com"}, StateDraft, false},
		{"public", true, nil, StatePublishedPublic, true},
		{"private listed", true, []string{"a@b.com"}, StatePublishedPrivate, true},
		{"private unlisted", true, []string{"c@d.com"}, StatePublishedPrivate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Experiment{Published: tt.published, Viewers: tt.viewers}
			assert.Equal(t, tt.state, e.State())
			assert.Equal(t, tt.visible, e.VisibleTo("a@b.com"))
		})
	}
}

func TestExperiment_Normalize(t *testing.T) {
	e := Experiment{Viewers: []string{" A@B.com", "a@b.com", "c@d.com", "C@D.COM "}}
	e.Normalize()
	assert.Equal(t, []string{"a@b.com", "c@d.com"}, e.Viewers)

	empty := Experiment{}
	empty.Normalize()
	assert.Nil(t, empty.Viewers)
}

func TestValidate(t *testing.T) {
	valid := Experiment{Title: "t", SignalSchedule: schedule()}
	require.NoError(t, Validate(valid))

	// end < start is an empty recurrence, not an error
	backwards := valid
	backwards.SignalSchedule.Recurrence.EndDate = civil.Date{Year: 2012, Month: time.September, Day: 1}
	assert.NoError(t, Validate(backwards))

	tests := []struct {
		name   string
		mutate func(*Experiment)
	}{
		{"missing title", func(e *Experiment) { e.Title = "" }},
		{"zero period", func(e *Experiment) { e.SignalSchedule.Recurrence.Every = 0 }},
		{"window ends before start", func(e *Experiment) {
			e.SignalSchedule.Window.EndTime = civil.Time{Hour: 8}
		}},
		{"invalid date", func(e *Experiment) { e.SignalSchedule.Recurrence.StartDate = civil.Date{} }},
		{"bad viewer", func(e *Experiment) { e.Viewers = []string{"not-an-email"} }},
		{"bad input type", func(e *Experiment) { e.Inputs = []InputSpec{{Name: "x", Type: "photo"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			assert.ErrorIs(t, Validate(e), ErrInvalid)
		})
	}
}

func TestSubjectView(t *testing.T) {
	e := Experiment{
		ID:             4,
		Title:          "t",
		Published:      true,
		Viewers:        []string{"a@b.com"},
		SignalSchedule: schedule(),
	}

	catalog := SubjectView(e, nil, nil)
	assert.False(t, catalog.Joined)
	assert.Nil(t, catalog.Signals)
	assert.Equal(t, e.SignalSchedule, catalog.SignalSchedule)

	override := schedule()
	override.Recurrence.Every = 2
	at := time.Date(2012, time.September, 11, 14, 0, 0, 0, time.UTC)
	join := JoinRelation{Subject: "a@b.com", ExperimentID: 4, Override: &override, Timezone: "Europe/Paris"}

	joined := SubjectView(e, &join, []MaterializedSignal{{ScheduledAt: at}})
	assert.True(t, joined.Joined)
	assert.Equal(t, "Europe/Paris", joined.Timezone)
	assert.Equal(t, override, joined.SignalSchedule)
	assert.Equal(t, []time.Time{at}, joined.Signals)
}

func TestJoinRelation_Location(t *testing.T) {
	assert.Equal(t, time.UTC, JoinRelation{}.Location())
	assert.Equal(t, time.UTC, JoinRelation{Timezone: "Nowhere/Else"}.Location())
	assert.Equal(t, "Asia/Tokyo", JoinRelation{Timezone: "Asia/Tokyo"}.Location().String())
}
