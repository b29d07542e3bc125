// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package conditional

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/paco-server/models"
)

var version = time.Date(2012, time.September, 10, 8, 30, 15, 0, time.UTC)

func TestETag(t *testing.T) {
	tag := ETag("/subject/experiments/1", version)
	assert.True(t, strings.HasPrefix(tag, `W/"`))
	assert.Len(t, tag, len(`W/""`)+16)

	assert.Equal(t, tag, ETag("/subject/experiments/1", version), "deterministic")
	assert.NotEqual(t, tag, ETag("/subject/experiments/2", version))
	assert.NotEqual(t, tag, ETag("/subject/experiments/1", version.Add(time.Millisecond)))
}

func TestEvaluate(t *testing.T) {
	const resource = "/observer/experiments/1"
	current := ETag(resource, version)
	other := ETag(resource, version.Add(-time.Hour))

	tests := []struct {
		name    string
		headers map[string]string
		want    Outcome
	}{
		{"no preconditions", nil, Proceed},
		{"if-match current", map[string]string{"If-Match": current}, Proceed},
		{"if-match strong form", map[string]string{"If-Match": strings.TrimPrefix(current, "W/")}, Proceed},
		{"if-match in list", map[string]string{"If-Match": other + ", " + current}, Proceed},
		{"if-match star", map[string]string{"If-Match": "*"}, Proceed},
		{"if-match stale", map[string]string{"If-Match": other}, PreconditionFailed},
		{"if-none-match current", map[string]string{"If-None-Match": current}, NotModified},
		{"if-none-match star", map[string]string{"If-None-Match": "*"}, NotModified},
		{"if-none-match stale", map[string]string{"If-None-Match": other}, Proceed},
		{"modified since before version", map[string]string{
			"If-Modified-Since": version.Add(-time.Minute).Format(http.TimeFormat),
		}, Proceed},
		{"modified since same second", map[string]string{
			"If-Modified-Since": version.Format(http.TimeFormat),
		}, NotModified},
		{"modified since later", map[string]string{
			"If-Modified-Since": version.Add(time.Hour).Format(http.TimeFormat),
		}, NotModified},
		{"unparseable date ignored", map[string]string{"If-Modified-Since": "yesterday"}, Proceed},
		{"if-match checked first", map[string]string{
			"If-Match":      other,
			"If-None-Match": current,
		}, PreconditionFailed},
		{"if-none-match overrides modified since", map[string]string{
			"If-None-Match":     other,
			"If-Modified-Since": version.Add(time.Hour).Format(http.TimeFormat),
		}, Proceed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", resource, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, Evaluate(r, resource, version))
		})
	}
}

func TestServe(t *testing.T) {
	const resource = "/subject/experiments/1"
	body := map[string]string{"title": "title"}

	t.Run("fresh read", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Serve(w, httptest.NewRequest("GET", resource, nil), resource, version, body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, ETag(resource, version), w.Header().Get("ETag"))
		assert.Equal(t, "Mon, 10 Sep 2012 08:30:15 GMT", w.Header().Get("Last-Modified"))
		assert.JSONEq(t, `{"title":"title"}`, w.Body.String())
	})

	t.Run("not modified", func(t *testing.T) {
		r := httptest.NewRequest("GET", resource, nil)
		r.Header.Set("If-Modified-Since", "Mon, 10 Sep 2012 08:30:15 GMT")
		w := httptest.NewRecorder()
		require.NoError(t, Serve(w, r, resource, version, body))

		assert.Equal(t, http.StatusNotModified, w.Code)
		assert.Empty(t, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("ETag"))
	})

	t.Run("precondition failed", func(t *testing.T) {
		r := httptest.NewRequest("GET", resource, nil)
		r.Header.Set("If-Match", ETag(resource, version.Add(-time.Second)))
		w := httptest.NewRecorder()
		err := Serve(w, r, resource, version, body)

		assert.ErrorIs(t, err, models.ErrPreconditionFailed)
		assert.Empty(t, w.Body.String(), "the caller writes the error")
		assert.NotEmpty(t, w.Header().Get("ETag"))
	})

	t.Run("sub-second version newer than its own last-modified", func(t *testing.T) {
		later := version.Add(110 * time.Millisecond)
		r := httptest.NewRequest("GET", resource, nil)
		r.Header.Set("If-Modified-Since", version.Format(http.TimeFormat))
		w := httptest.NewRecorder()
		require.NoError(t, Serve(w, r, resource, later, body))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("zero version omits last-modified", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Serve(w, httptest.NewRequest("GET", resource, nil), resource, time.Time{}, body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Last-Modified"))
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "proceed", Proceed.String())
	assert.Equal(t, "not_modified", NotModified.String())
	assert.Equal(t, "precondition_failed", PreconditionFailed.String())
}
