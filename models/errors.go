// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNotEditable        = errors.New("signal schedule is not editable")
	ErrNotJoined          = errors.New("subject has not joined experiment")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrForbidden          = errors.New("forbidden")
	ErrVersionConflict    = errors.New("modification date does not match current version")
	ErrStaleVersion       = errors.New("event drafted against an outdated experiment version")
	ErrInvalid            = errors.New("invalid")
)
