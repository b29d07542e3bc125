// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// ObserverExperiment is the creator's projection: everything, plus derived state.
type ObserverExperiment struct {
	Experiment
	State string `json:"state"`
}

// SubjectExperiment is the participant's projection. Viewer lists and
// publication flags stay hidden; signals are only filled for joined subjects.
type SubjectExperiment struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Creator          string         `json:"creator"`
	ConsentForm      string         `json:"consent_form"`
	Feedback         string         `json:"feedback"`
	Inputs           []InputSpec    `json:"inputs"`
	SignalSchedule   SignalSchedule `json:"signal_schedule"`
	ModificationDate time.Time      `json:"modification_date"`
	Joined           bool           `json:"joined"`
	Timezone         string         `json:"timezone,omitempty"`
	Signals          []time.Time    `json:"signals,omitempty"`
}

func ObserverView(e Experiment) ObserverExperiment {
	return ObserverExperiment{Experiment: e, State: e.State()}
}

// SubjectView projects e for a subject. A nil join yields the catalog view.
func SubjectView(e Experiment, join *JoinRelation, signals []MaterializedSignal) SubjectExperiment {
	view := SubjectExperiment{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Creator:          e.Creator,
		ConsentForm:      e.ConsentForm,
		Feedback:         e.Feedback,
		Inputs:           e.Inputs,
		SignalSchedule:   e.SignalSchedule,
		ModificationDate: e.ModificationDate,
	}
	if join == nil {
		return view
	}

	view.Joined = true
	view.Timezone = join.Timezone
	view.SignalSchedule = join.Schedule(e)
	view.Signals = make([]time.Time, 0, len(signals))
	for _, s := range signals {
		view.Signals = append(view.Signals, s.ScheduledAt)
	}
	return view
}
