// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - ExperimentRequest: full experiment body for create and update; its
    modification_date names the version an update replaces
  - SubmitEventRequest: experiment_modification_date, signal_time,
    response_time, outputs

# Response Types

Types for JSON responses:

  - CreateExperimentResponse: id, modification_date
  - MaterializeResponse: id, modification_date
  - JoinResponse: experiment_id, signals
  - SubmitEventResponse: event_id, stale
  - ExperimentList, SubjectExperimentList, EventList
  - ErrorResponse: error, message

# Domain Types

  - Experiment: definition, inputs, viewers and default signal schedule
  - SignalSchedule: RecurrenceRule (civil dates) plus DailyWindow (civil
    times of day), and whether subjects may override it
  - JoinRelation: subject ↔ experiment, with timezone and optional override
  - MaterializedSignal: one concrete prompt instant, tagged with the
    experiment version that produced it
  - Event: an append-only subject response

# Views

ObserverView returns everything plus the derived state. SubjectView hides
viewers and publication flags, and carries signals only for joined
subjects.

# Constants

Experiment states:

	StateDraft            = "draft"
	StatePublishedPrivate = "published_private"
	StatePublishedPublic  = "published_public"

Input types:

	InputText   = "text"
	InputList   = "list"
	InputLikert = "likert"

# Validation

Validate runs go-playground/validator tags plus schedule checks and wraps
failures in ErrInvalid.
*/
package models
