package models

import (
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Input types
const (
	InputText   = "text"
	InputList   = "list"
	InputLikert = "likert"
)

// Experiment states, derived from published + viewers
const (
	StateDraft            = "draft"
	StatePublishedPrivate = "published_private"
	StatePublishedPublic  = "published_public"
)

// Domain types

// RecurrenceRule fires on StartDate + k*Every for every k with a result <= EndDate.
type RecurrenceRule struct {
	StartDate civil.Date `json:"start_date"`
	EndDate   civil.Date `json:"end_date"`
	Every     int        `json:"every" validate:"gte=1"`
}

// DailyWindow is a local time-of-day interval [StartTime, EndTime).
type DailyWindow struct {
	StartTime civil.Time `json:"start_time"`
	EndTime   civil.Time `json:"end_time"`
}

type SignalSchedule struct {
	Recurrence RecurrenceRule `json:"recurrence"`
	Window     DailyWindow    `json:"window"`
	Editable   bool           `json:"editable"`
}

// InputSpec is survey payload; the server stores it but never interprets it.
type InputSpec struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Text        string   `json:"text,omitempty"`
	Type        string   `json:"type" validate:"oneof=text list likert"`
	Mandatory   bool     `json:"mandatory"`
	ListChoices []string `json:"list_choices,omitempty"`
	LikertSteps int      `json:"likert_steps,omitempty" validate:"gte=0,lte=11"`
}

type Experiment struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title" validate:"required,max=500"`
	Description      string         `json:"description"`
	Creator          string         `json:"creator"`
	ConsentForm      string         `json:"consent_form"`
	Published        bool           `json:"published"`
	Feedback         string         `json:"feedback"`
	Inputs           []InputSpec    `json:"inputs" validate:"dive"`
	Viewers          []string       `json:"viewers" validate:"dive,email"`
	SignalSchedule   SignalSchedule `json:"signal_schedule"`
	ModificationDate time.Time      `json:"modification_date"`
}

// IsPublic reports whether the experiment has no viewer restriction.
func (e Experiment) IsPublic() bool {
	return len(e.Viewers) == 0
}

// State returns the observer-visible lifecycle state.
func (e Experiment) State() string {
	switch {
	case !e.Published:
		return StateDraft
	case e.IsPublic():
		return StatePublishedPublic
	default:
		return StatePublishedPrivate
	}
}

// VisibleTo reports whether a subject may see and join the experiment.
func (e Experiment) VisibleTo(subject string) bool {
	if !e.Published {
		return false
	}
	return e.IsPublic() || slices.Contains(e.Viewers, subject)
}

// Normalize lowercases viewer addresses and drops duplicates, keeping the
// first occurrence.
func (e *Experiment) Normalize() {
	if len(e.Viewers) == 0 {
		return
	}
	seen := make(map[string]bool, len(e.Viewers))
	viewers := make([]string, 0, len(e.Viewers))
	for _, v := range e.Viewers {
		v = strings.ToLower(strings.TrimSpace(v))
		if seen[v] {
			continue
		}
		seen[v] = true
		viewers = append(viewers, v)
	}
	e.Viewers = viewers
}

// JoinRelation links a subject to an experiment by id. Override, when set,
// replaces the experiment's schedule for this subject only.
type JoinRelation struct {
	Subject      string          `json:"subject"`
	ExperimentID int64           `json:"experiment_id"`
	Override     *SignalSchedule `json:"override,omitempty"`
	Timezone     string          `json:"timezone"`
	JoinedAt     time.Time       `json:"joined_at"`
}

// Schedule returns the schedule in force for this subject.
func (j JoinRelation) Schedule(e Experiment) SignalSchedule {
	if j.Override != nil {
		return *j.Override
	}
	return e.SignalSchedule
}

// Location resolves the join's timezone, falling back to UTC.
func (j JoinRelation) Location() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MaterializedSignal struct {
	Subject         string    `json:"subject"`
	ExperimentID    int64     `json:"experiment_id"`
	ScheduleVersion time.Time `json:"schedule_version"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

type Event struct {
	ID                         string            `json:"id"`
	Subject                    string            `json:"subject,omitempty"`
	ExperimentID               int64             `json:"experiment_id"`
	ExperimentModificationDate time.Time         `json:"experiment_modification_date"`
	SignalTime                 *time.Time        `json:"signal_time,omitempty"`
	ResponseTime               time.Time         `json:"response_time"`
	Outputs                    map[string]string `json:"outputs"`
	ReceivedAt                 time.Time         `json:"received_at"`
	Stale                      bool              `json:"stale,omitempty"`
}

// Request types

type ExperimentRequest struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	ConsentForm      string         `json:"consent_form"`
	Published        bool           `json:"published"`
	Feedback         string         `json:"feedback"`
	Inputs           []InputSpec    `json:"inputs"`
	Viewers          []string       `json:"viewers"`
	SignalSchedule   SignalSchedule `json:"signal_schedule"`
	ModificationDate time.Time      `json:"modification_date"`
}

// Apply copies the request's mutable fields onto e.
func (r ExperimentRequest) Apply(e *Experiment) {
	e.Title = r.Title
	e.Description = r.Description
	e.ConsentForm = r.ConsentForm
	e.Published = r.Published
	e.Feedback = r.Feedback
	e.Inputs = r.Inputs
	e.Viewers = r.Viewers
	e.SignalSchedule = r.SignalSchedule
}

type SubmitEventRequest struct {
	ExperimentModificationDate time.Time         `json:"experiment_modification_date"`
	SignalTime                 *time.Time        `json:"signal_time,omitempty"`
	ResponseTime               time.Time         `json:"response_time"`
	Outputs                    map[string]string `json:"outputs"`
}

// Response types

type CreateExperimentResponse struct {
	ID               int64     `json:"id"`
	ModificationDate time.Time `json:"modification_date"`
}

type MaterializeResponse struct {
	ID               int64     `json:"id"`
	ModificationDate time.Time `json:"modification_date"`
}

type JoinResponse struct {
	ExperimentID int64       `json:"experiment_id"`
	Signals      []time.Time `json:"signals"`
}

type SubmitEventResponse struct {
	EventID string `json:"event_id"`
	Stale   bool   `json:"stale,omitempty"`
}

type ExperimentList struct {
	Experiments []ObserverExperiment `json:"experiments"`
}

type SubjectExperimentList struct {
	Experiments []SubjectExperiment `json:"experiments"`
}

type EventList struct {
	Events []Event `json:"events"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
