// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateRecurrence, RecurrenceRule{})
	validate.RegisterStructValidation(validateWindow, DailyWindow{})
}

// validateRecurrence only checks the dates themselves. end < start is an
// empty recurrence, not an error.
func validateRecurrence(sl validator.StructLevel) {
	rule := sl.Current().Interface().(RecurrenceRule)
	if !rule.StartDate.IsValid() {
		sl.ReportError(rule.StartDate, "start_date", "StartDate", "civildate", "")
	}
	if !rule.EndDate.IsValid() {
		sl.ReportError(rule.EndDate, "end_date", "EndDate", "civildate", "")
	}
}

func validateWindow(sl validator.StructLevel) {
	window := sl.Current().Interface().(DailyWindow)
	if !window.StartTime.IsValid() {
		sl.ReportError(window.StartTime, "start_time", "StartTime", "civiltime", "")
		return
	}
	if !window.EndTime.IsValid() {
		sl.ReportError(window.EndTime, "end_time", "EndTime", "civiltime", "")
		return
	}
	if window.EndTime.Before(window.StartTime) {
		sl.ReportError(window.EndTime, "end_time", "EndTime", "gtefield", "start_time")
	}
}

// Validate checks v against its struct tags. Failures wrap ErrInvalid.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Namespace() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// ValidateEmail checks a single identity string.
func ValidateEmail(s string) error {
	if err := validate.Var(s, "required,email"); err != nil {
		return fmt.Errorf("%w: %q is not an email address", ErrInvalid, s)
	}
	return nil
}
