// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/models"
)

// writeError maps domain errors to status codes. Anything unrecognized is
// logged and reported as a 500 mentioning action.
func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, models.ErrInvalid), errors.Is(err, auth.ErrInvalidUser), errors.Is(err, auth.ErrInvalidTimezone):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrMissingUser):
		middleware.ErrorResponse(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNotJoined):
		middleware.ErrorResponse(w, http.StatusNotFound, "not joined to experiment")
	case errors.Is(err, models.ErrForbidden):
		middleware.ErrorResponse(w, http.StatusForbidden, "experiment not available")
	case errors.Is(err, models.ErrNotEditable):
		middleware.ErrorResponse(w, http.StatusForbidden, "signal schedule is not editable")
	case errors.Is(err, models.ErrVersionConflict):
		middleware.ErrorResponse(w, http.StatusConflict, "experiment has been modified")
	case errors.Is(err, models.ErrStaleVersion):
		middleware.ErrorResponse(w, http.StatusConflict, "experiment has been modified since the event was drafted")
	case errors.Is(err, models.ErrPreconditionFailed):
		middleware.ErrorResponse(w, http.StatusPreconditionFailed, "precondition failed")
	default:
		slog.Error("failed to "+action, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// experimentID reads the {id} path segment
func experimentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, models.ErrNotFound
	}
	return id, nil
}

// caller resolves identity and experiment id, writing the error response
// itself when either is missing.
func caller(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeError(w, err, "identify user")
		return "", 0, false
	}
	id, err := experimentID(r)
	if err != nil {
		writeError(w, err, "parse experiment id")
		return "", 0, false
	}
	return user, id, true
}
