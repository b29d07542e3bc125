// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/danielhkuo/paco-server/conditional"
	"github.com/danielhkuo/paco-server/events"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/models"
)

type EventHandler struct {
	collector *events.Collector
}

func NewEventHandler(collector *events.Collector) *EventHandler {
	return &EventHandler{collector: collector}
}

// SubmitEvent handles POST /subject/experiments/{id}/events
func (h *EventHandler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.SubmitEventRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ev, err := h.collector.Submit(r.Context(), user, id, req)
	if err != nil {
		writeError(w, err, "submit event")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/events/%s", subjectPath(id), ev.ID))
	middleware.JSONResponse(w, http.StatusCreated, models.SubmitEventResponse{
		EventID: ev.ID,
		Stale:   ev.Stale,
	})
}

// ListEvents handles GET /subject/experiments/{id}/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	evs, err := h.collector.List(r.Context(), user, id)
	if err != nil {
		writeError(w, err, "list events")
		return
	}

	resource := fmt.Sprintf("%s/events#%d", subjectPath(id), len(evs))
	if err := conditional.Serve(w, r, resource, events.LastModified(evs), models.EventList{Events: evs}); err != nil {
		writeError(w, err, "list events")
	}
}

// GetEvent handles GET /subject/experiments/{id}/events/{eventId}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	eventID := r.PathValue("eventId")
	ev, err := h.collector.Get(r.Context(), user, id, eventID)
	if err != nil {
		writeError(w, err, "get event")
		return
	}

	if err := conditional.Serve(w, r, fmt.Sprintf("%s/events/%s", subjectPath(id), ev.ID), ev.ReceivedAt, ev); err != nil {
		writeError(w, err, "get event")
	}
}
