// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/danielhkuo/paco-server/models"
)

func TestWithLogging_CapturesStatus(t *testing.T) {
	var sw *statusWriter
	handler := WithLogging(func(w http.ResponseWriter, r *http.Request) {
		sw = w.(*statusWriter)
		w.WriteHeader(http.StatusNotModified)
		w.WriteHeader(http.StatusOK) // superfluous, ignored
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/subject/experiments/1", nil))

	if sw.status != http.StatusNotModified {
		t.Errorf("Expected recorded status 304, got %d", sw.status)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected no body on 304, got %q", w.Body.String())
	}

	handler = WithLogging(func(w http.ResponseWriter, r *http.Request) {
		sw = w.(*statusWriter)
		w.Write([]byte("12345"))
	})
	handler(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if sw.status != http.StatusOK || sw.size != 5 {
		t.Errorf("Expected implicit 200 with 5 bytes, got %d with %d", sw.status, sw.size)
	}
}

func TestWithLogging_PassesHeadersThrough(t *testing.T) {
	handler := WithLogging(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `W/"0123456789abcdef"`)
		w.Header().Set("Location", "/observer/experiments/7")
		w.WriteHeader(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/observer/experiments", nil))

	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `W/"0123456789abcdef"` {
		t.Errorf("Expected ETag to survive logging, got %q", got)
	}
	if got := w.Header().Get("Location"); got != "/observer/experiments/7" {
		t.Errorf("Expected Location to survive logging, got %q", got)
	}
}

func TestJSONResponse_CivilFields(t *testing.T) {
	schedule := models.SignalSchedule{
		Recurrence: models.RecurrenceRule{
			StartDate: civil.Date{Year: 2012, Month: time.September, Day: 11},
			EndDate:   civil.Date{Year: 2012, Month: time.September, Day: 15},
			Every:     1,
		},
		Window: models.DailyWindow{
			StartTime: civil.Time{Hour: 9},
			EndTime:   civil.Time{Hour: 17, Minute: 30},
		},
	}

	w := httptest.NewRecorder()
	JSONResponse(w, http.StatusOK, schedule)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{`"start_date":"2012-09-11"`, `"end_date":"2012-09-15"`, `"start_time":"09:00:00"`, `"end_time":"17:30:00"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in %s", want, body)
		}
	}
}

func TestErrorResponse(t *testing.T) {
	testCases := []struct {
		status  int
		message string
		error   string
	}{
		{http.StatusNotFound, "not joined to experiment", "Not Found"},
		{http.StatusForbidden, "signal schedule is not editable", "Forbidden"},
		{http.StatusConflict, "experiment has been modified", "Conflict"},
		{http.StatusPreconditionFailed, "precondition failed", "Precondition Failed"},
		{http.StatusTooManyRequests, "too many requests", "Too Many Requests"},
		{http.StatusInternalServerError, "Failed to list events", "Internal Server Error"},
	}

	for _, tc := range testCases {
		t.Run(tc.message, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorResponse(w, tc.status, tc.message)

			if w.Code != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %q", ct)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error != tc.error || resp.Message != tc.message {
				t.Errorf("Expected %q / %q, got %q / %q", tc.error, tc.message, resp.Error, resp.Message)
			}
		})
	}
}

func TestParseJSONBody_SignalSchedule(t *testing.T) {
	body := `{
		"recurrence": {"start_date": "2012-09-11", "end_date": "2012-09-15", "every": 2},
		"window": {"start_time": "09:00:00", "end_time": "17:00:00"},
		"editable": true
	}`
	req := httptest.NewRequest("PUT", "/observer/experiments/1", strings.NewReader(body))

	var got models.SignalSchedule
	if err := ParseJSONBody(req, &got); err != nil {
		t.Fatalf("Expected schedule to parse, got %v", err)
	}

	want := models.SignalSchedule{
		Recurrence: models.RecurrenceRule{
			StartDate: civil.Date{Year: 2012, Month: time.September, Day: 11},
			EndDate:   civil.Date{Year: 2012, Month: time.September, Day: 15},
			Every:     2,
		},
		Window:   models.DailyWindow{StartTime: civil.Time{Hour: 9}, EndTime: civil.Time{Hour: 17}},
		Editable: true,
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestParseJSONBody_RejectsMalformedSchedules(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"impossible date", `{"recurrence": {"start_date": "2012-02-30"}}`},
		{"month out of range", `{"recurrence": {"end_date": "2012-13-01"}}`},
		{"hour out of range", `{"window": {"start_time": "25:00:00"}}`},
		{"date where a time belongs", `{"window": {"end_time": "2012-09-11"}}`},
		{"truncated", `{"recurrence": {"start_date": "2012-09-11"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/observer/experiments/1", strings.NewReader(tc.body))
			var got models.SignalSchedule
			if err := ParseJSONBody(req, &got); err == nil {
				t.Errorf("Expected an error for %s, parsed %+v", tc.body, got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/subject/experiments/1", nil)
	req.Header.Set("Origin", "https://paco.example.org")
	req.Header.Set("Access-Control-Request-Headers", "x-user-email, if-none-match")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", w.Code)
	}
	if called {
		t.Error("Expected preflight to stop before the handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://paco.example.org" {
		t.Errorf("Expected the origin to be echoed, got %q", got)
	}

	allowed := w.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"X-User-Email", "X-Time-Zone", "If-Match", "If-None-Match", "If-Modified-Since"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("Expected %s in Access-Control-Allow-Headers %q", h, allowed)
		}
	}

	methods := w.Header().Get("Access-Control-Allow-Methods")
	for _, m := range []string{"GET", "POST", "PUT", "DELETE"} {
		if !strings.Contains(methods, m) {
			t.Errorf("Expected %s in Access-Control-Allow-Methods %q", m, methods)
		}
	}
}

func TestCORS_ExposesVersionHeaders(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `W/"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/subject/experiments/1", nil))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected * without an Origin, got %q", got)
	}
	exposed := w.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"ETag", "Last-Modified", "Location", "Retry-After"} {
		if !strings.Contains(exposed, h) {
			t.Errorf("Expected %s in Access-Control-Expose-Headers %q", h, exposed)
		}
	}
	if w.Header().Get("ETag") == "" {
		t.Error("Expected the handler's ETag on a non-preflight request")
	}
}

func TestGetClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{"first hop of X-Forwarded-For", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "127.0.0.1:1", "203.0.113.195"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.50"}, "10.0.0.1:1", "203.0.113.50"},
		{"RemoteAddr without its port", nil, "192.168.1.50:54321", "192.168.1.50"},
		{"IPv6 RemoteAddr", nil, "[::1]:12345", "[::1]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			if got := GetClientIP(req); got != tc.expectedIP {
				t.Errorf("Expected IP %q, got %q", tc.expectedIP, got)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(0.001, 2, DefaultMaxKeys)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if l.Allow("a") {
		t.Error("Expected third request to be limited")
	}
	if !l.Allow("b") {
		t.Error("Expected separate bucket per key")
	}
}

func TestRateLimiter_BoundedKeys(t *testing.T) {
	const maxKeys = 100
	l := NewRateLimiter(0.001, 1, maxKeys)

	for i := 0; i < 10000; i++ {
		l.Allow(fmt.Sprintf("subject%d@google.com", i))
		if n := l.Len(); n > maxKeys {
			t.Fatalf("Expected at most %d buckets, got %d after %d keys", maxKeys, n, i+1)
		}
	}

	// The most recent keys keep their spent buckets
	if l.Allow("subject9999@google.com") {
		t.Error("Expected a recently used key to stay limited")
	}
	// The oldest were evicted and start over
	if !l.Allow("subject0@google.com") {
		t.Error("Expected an evicted key to get a fresh bucket")
	}
}

func TestRateLimiter_DropsRefilledBuckets(t *testing.T) {
	now := time.Date(2012, time.September, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2, DefaultMaxKeys)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("a")
	if l.Allow("a") {
		t.Fatal("Expected burst of 2 to be spent")
	}
	l.Allow("b")

	now = now.Add(time.Second)
	l.Allow("c")
	if n := l.Len(); n != 3 {
		t.Errorf("Expected 3 buckets before any has refilled, got %d", n)
	}

	// Two seconds refill a burst of two at one per second
	now = now.Add(2 * time.Second)
	l.Allow("c")
	if n := l.Len(); n != 1 {
		t.Errorf("Expected refilled buckets to be dropped, got %d", n)
	}
	if !l.Allow("a") || !l.Allow("a") {
		t.Error("Expected a dropped key to get its full burst back")
	}
}

func TestWithRateLimit(t *testing.T) {
	l := NewRateLimiter(0.001, 1, DefaultMaxKeys)
	calls := 0
	handler := WithRateLimit(l, func(r *http.Request) string {
		return r.Header.Get("X-User-Email")
	}, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	send := func(user, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/subject/experiments/1/events", nil)
		req.RemoteAddr = remote
		if user != "" {
			req.Header.Set("X-User-Email", user)
		}
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	if w := send("subject@google.com", "10.0.0.1:1"); w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}

	w := send("subject@google.com", "10.0.0.2:1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Message != "too many requests" {
		t.Errorf("Expected a too many requests error body, got %+v (%v)", resp, err)
	}

	// Anonymous requests are keyed by client IP
	if w := send("", "10.0.0.3:1"); w.Code != http.StatusCreated {
		t.Errorf("Expected 201 for new IP, got %d", w.Code)
	}
	if w := send("", "10.0.0.3:2"); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for repeated IP, got %d", w.Code)
	}

	if calls != 2 {
		t.Errorf("Expected 2 handler calls, got %d", calls)
	}
}
