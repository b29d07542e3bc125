// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/conditional"
	"github.com/danielhkuo/paco-server/events"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/schedule"
)

type ObserverHandler struct {
	store     *schedule.Store
	collector *events.Collector
}

func NewObserverHandler(store *schedule.Store, collector *events.Collector) *ObserverHandler {
	return &ObserverHandler{store: store, collector: collector}
}

// owned loads the experiment and checks that user created it
func (h *ObserverHandler) owned(ctx context.Context, user string, id int64) (models.Experiment, error) {
	e, err := h.store.Get(ctx, id)
	if err != nil {
		return models.Experiment{}, err
	}
	if e.Creator != user {
		return models.Experiment{}, fmt.Errorf("experiment %d not owned by %s: %w", id, user, models.ErrForbidden)
	}
	return e, nil
}

// CreateExperiment handles POST /observer/experiments
func (h *ObserverHandler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeError(w, err, "identify user")
		return
	}

	var req models.ExperimentRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var e models.Experiment
	req.Apply(&e)

	created, err := h.store.Create(r.Context(), user, e)
	if err != nil {
		writeError(w, err, "create experiment")
		return
	}

	w.Header().Set("Location", "/observer/experiments/"+strconv.FormatInt(created.ID, 10))
	middleware.JSONResponse(w, http.StatusCreated, models.CreateExperimentResponse{
		ID:               created.ID,
		ModificationDate: created.ModificationDate,
	})
}

// ListExperiments handles GET /observer/experiments
func (h *ObserverHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeError(w, err, "identify user")
		return
	}

	owned, err := h.store.Owned(r.Context(), user)
	if err != nil {
		writeError(w, err, "list experiments")
		return
	}

	resp := models.ExperimentList{Experiments: make([]models.ObserverExperiment, 0, len(owned))}
	for _, e := range owned {
		resp.Experiments = append(resp.Experiments, models.ObserverView(e))
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetExperiment handles GET /observer/experiments/{id}
func (h *ObserverHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	e, err := h.owned(r.Context(), user, id)
	if err != nil {
		writeError(w, err, "get experiment")
		return
	}

	if err := conditional.Serve(w, r, "/observer/experiments/"+strconv.FormatInt(id, 10), e.ModificationDate, models.ObserverView(e)); err != nil {
		writeError(w, err, "get experiment")
	}
}

// UpdateExperiment handles PUT /observer/experiments/{id}
// The body's modification_date is the version being replaced; omitting it
// overwrites whatever is current.
func (h *ObserverHandler) UpdateExperiment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.ExperimentRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	updated, err := h.store.Update(r.Context(), id, req.ModificationDate, func(e *models.Experiment) error {
		if e.Creator != user {
			return fmt.Errorf("experiment %d not owned by %s: %w", id, user, models.ErrForbidden)
		}
		req.Apply(e)
		return nil
	})
	if err != nil {
		writeError(w, err, "update experiment")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ObserverView(updated))
}

// Materialize handles POST /observer/experiments/{id}/materialize
func (h *ObserverHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	if _, err := h.owned(r.Context(), user, id); err != nil {
		writeError(w, err, "materialize experiment")
		return
	}

	version, err := h.store.Materialize(r.Context(), id)
	if err != nil {
		writeError(w, err, "materialize experiment")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.MaterializeResponse{
		ID:               id,
		ModificationDate: version,
	})
}

// DeleteExperiment handles DELETE /observer/experiments/{id}
func (h *ObserverHandler) DeleteExperiment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	if _, err := h.owned(r.Context(), user, id); err != nil {
		writeError(w, err, "delete experiment")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err, "delete experiment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /observer/experiments/{id}/events
func (h *ObserverHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	if _, err := h.owned(r.Context(), user, id); err != nil {
		writeError(w, err, "list events")
		return
	}

	evs, err := h.collector.ListForExperiment(r.Context(), id)
	if err != nil {
		writeError(w, err, "list events")
		return
	}

	resource := fmt.Sprintf("/observer/experiments/%d/events#%d", id, len(evs))
	if err := conditional.Serve(w, r, resource, events.LastModified(evs), models.EventList{Events: evs}); err != nil {
		writeError(w, err, "list events")
	}
}
