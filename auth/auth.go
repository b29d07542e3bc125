// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/paco-server/models"
)

// Request headers carrying the caller's identity and timezone. An upstream
// proxy is expected to authenticate the user and set them.
const (
	UserHeader     = "X-User-Email"
	TimezoneHeader = "X-Time-Zone"
)

var (
	ErrMissingUser     = errors.New("missing user identity")
	ErrInvalidUser     = errors.New("invalid user identity")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// UserFromRequest returns the caller's email address, lowercased.
func UserFromRequest(r *http.Request) (string, error) {
	user := strings.ToLower(strings.TrimSpace(r.Header.Get(UserHeader)))
	if user == "" {
		return "", ErrMissingUser
	}
	if err := models.ValidateEmail(user); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	return user, nil
}

// TimezoneFromRequest returns the caller's IANA timezone, or fallback when
// the header is absent.
func TimezoneFromRequest(r *http.Request, fallback string) (string, error) {
	tz := strings.TrimSpace(r.Header.Get(TimezoneHeader))
	if tz == "" {
		return fallback, nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return tz, nil
}

// GenerateID creates a random UUID for events
func GenerateID() string {
	return uuid.NewString()
}
