// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/cliparse"
	"github.com/danielhkuo/paco-server/conditional"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/schedule"
)

type SubjectHandler struct {
	store *schedule.Store
	cfg   cliparse.Config
}

func NewSubjectHandler(store *schedule.Store, cfg cliparse.Config) *SubjectHandler {
	return &SubjectHandler{store: store, cfg: cfg}
}

func subjectPath(id int64) string {
	return "/subject/experiments/" + strconv.FormatInt(id, 10)
}

// ListAvailable handles GET /experiments
func (h *SubjectHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeError(w, err, "identify user")
		return
	}

	visible, err := h.store.Visible(r.Context(), user)
	if err != nil {
		writeError(w, err, "list experiments")
		return
	}

	resp := models.SubjectExperimentList{Experiments: make([]models.SubjectExperiment, 0, len(visible))}
	for _, e := range visible {
		resp.Experiments = append(resp.Experiments, models.SubjectView(e, nil, nil))
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetAvailable handles GET /experiments/{id}
func (h *SubjectHandler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "get experiment")
		return
	}
	if !e.VisibleTo(user) {
		writeError(w, fmt.Errorf("experiment %d: %w", id, models.ErrForbidden), "get experiment")
		return
	}

	if err := conditional.Serve(w, r, "/experiments/"+strconv.FormatInt(id, 10), e.ModificationDate, models.SubjectView(e, nil, nil)); err != nil {
		writeError(w, err, "get experiment")
	}
}

// Join handles POST /experiments/{id}
// An optional body carries a signal schedule overriding the experiment's.
func (h *SubjectHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	tz, err := auth.TimezoneFromRequest(r, h.cfg.DefaultTimezone)
	if err != nil {
		writeError(w, err, "join experiment")
		return
	}

	var override *models.SignalSchedule
	if err := middleware.ParseJSONBody(r, &override); err != nil && !errors.Is(err, io.EOF) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	_, signals, err := h.store.Join(r.Context(), user, id, override, tz)
	if err != nil {
		writeError(w, err, "join experiment")
		return
	}

	resp := models.JoinResponse{ExperimentID: id, Signals: make([]time.Time, 0, len(signals))}
	for _, s := range signals {
		resp.Signals = append(resp.Signals, s.ScheduledAt)
	}

	w.Header().Set("Location", subjectPath(id))
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// ListJoined handles GET /subject/experiments
func (h *SubjectHandler) ListJoined(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeError(w, err, "identify user")
		return
	}

	joined, err := h.store.Joined(r.Context(), user)
	if err != nil {
		writeError(w, err, "list joined experiments")
		return
	}

	resp := models.SubjectExperimentList{Experiments: make([]models.SubjectExperiment, 0, len(joined))}
	for _, en := range joined {
		resp.Experiments = append(resp.Experiments, models.SubjectView(en.Experiment, &en.Join, en.Signals))
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetJoined handles GET /subject/experiments/{id}
func (h *SubjectHandler) GetJoined(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	en, err := h.store.Enrollment(r.Context(), user, id)
	if err != nil {
		writeError(w, err, "get joined experiment")
		return
	}

	if err := conditional.Serve(w, r, subjectPath(id), en.Version(), models.SubjectView(en.Experiment, &en.Join, en.Signals)); err != nil {
		writeError(w, err, "get joined experiment")
	}
}

// Leave handles DELETE /subject/experiments/{id}
func (h *SubjectHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, id, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.store.Leave(r.Context(), user, id); err != nil {
		writeError(w, err, "leave experiment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
