// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package conditional

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/danielhkuo/paco-server/metrics"
	"github.com/danielhkuo/paco-server/middleware"
	"github.com/danielhkuo/paco-server/models"
)

// Outcome of evaluating a request's preconditions
type Outcome int

const (
	Proceed Outcome = iota
	NotModified
	PreconditionFailed
)

func (o Outcome) String() string {
	switch o {
	case NotModified:
		return "not_modified"
	case PreconditionFailed:
		return "precondition_failed"
	default:
		return "proceed"
	}
}

// ETag derives a weak entity tag from a resource name and its version.
// The same pair always yields the same tag.
func ETag(resource string, version time.Time) string {
	sum := blake3.Sum256([]byte(resource + "@" + strconv.FormatInt(version.UnixMilli(), 10)))
	return `W/"` + hex.EncodeToString(sum[:8]) + `"`
}

// Evaluate checks If-Match, If-None-Match and If-Modified-Since against the
// resource's current version, in that order. Tags are compared weakly.
// If-Modified-Since is ignored when If-None-Match is present.
func Evaluate(r *http.Request, resource string, version time.Time) Outcome {
	current := ETag(resource, version)

	if im := r.Header.Get("If-Match"); im != "" {
		if !matches(im, current) {
			return PreconditionFailed
		}
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if matches(inm, current) {
			return NotModified
		}
		return Proceed
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		since, err := http.ParseTime(ims)
		if err == nil && !version.After(since) {
			return NotModified
		}
	}

	return Proceed
}

func matches(header, current string) bool {
	want := opaque(current)
	for tag := range strings.SplitSeq(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || opaque(tag) == want {
			return true
		}
	}
	return false
}

func opaque(tag string) string {
	return strings.TrimPrefix(tag, "W/")
}

// Serve answers a read of resource at version with body, honoring the
// request's preconditions. A failed If-Match writes nothing but the
// validators and returns ErrPreconditionFailed for the caller to report.
// Last-Modified is sent at second precision, as HTTP dates allow; a version
// with a fractional second is therefore always newer than its own
// Last-Modified.
func Serve(w http.ResponseWriter, r *http.Request, resource string, version time.Time, body any) error {
	w.Header().Set("ETag", ETag(resource, version))
	if !version.IsZero() {
		w.Header().Set("Last-Modified", version.UTC().Format(http.TimeFormat))
	}

	outcome := Evaluate(r, resource, version)
	metrics.ConditionalReads.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case NotModified:
		w.WriteHeader(http.StatusNotModified)
	case PreconditionFailed:
		return fmt.Errorf("%s: %w", resource, models.ErrPreconditionFailed)
	default:
		middleware.JSONResponse(w, http.StatusOK, body)
	}
	return nil
}
