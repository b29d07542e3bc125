// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/danielhkuo/paco-server/auth"
	"github.com/danielhkuo/paco-server/cliparse"
	"github.com/danielhkuo/paco-server/db"
	"github.com/danielhkuo/paco-server/models"
)

// Identities used across tests
const (
	Observer = "observer@google.com"
	Subject  = "subject@google.com"
	Outsider = "outsider@google.com"
)

// Epoch is the fake clock's starting point in tests.
var Epoch = time.Date(2012, time.September, 1, 12, 0, 0, 0, time.UTC)

// SetupTestDB creates a fresh SQLite database file with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "paco_test.db")
	conn, err := db.Open(db.DialectSQLite, path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn, db.DialectSQLite); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:            3318,
		DatabaseURL:     "paco_test.db",
		DatabaseType:    db.DialectSQLite,
		LogLevel:        "error",
		DefaultTimezone: "UTC",
		SignalSeed:      7,
		StalePolicy:     "retain",
		EventRate:       1000,
		EventBurst:      1000,
	}
}

// ConstructSignalSchedule returns the reference schedule: daily from
// 2012-09-11 through 2012-09-15, one prompt between 09:00 and 17:00.
func ConstructSignalSchedule(editable bool) models.SignalSchedule {
	return models.SignalSchedule{
		Recurrence: models.RecurrenceRule{
			StartDate: civil.Date{Year: 2012, Month: time.September, Day: 11},
			EndDate:   civil.Date{Year: 2012, Month: time.September, Day: 15},
			Every:     1,
		},
		Window: models.DailyWindow{
			StartTime: civil.Time{Hour: 9},
			EndTime:   civil.Time{Hour: 17},
		},
		Editable: editable,
	}
}

// ConstructExperiment returns an unpublished public experiment carrying one
// input of each type.
func ConstructExperiment(editable bool) models.Experiment {
	return models.Experiment{
		Title:       "title",
		Description: "description",
		Creator:     Observer,
		ConsentForm: "consent form",
		Published:   false,
		Feedback:    "feedback",
		Inputs: []models.InputSpec{
			{Name: "mood", Text: "How do you feel?", Type: models.InputText},
			{Name: "place", Text: "Where are you?", Type: models.InputList, ListChoices: []string{"home", "work"}},
			{Name: "energy", Text: "Energy level", Type: models.InputLikert, LikertSteps: 5},
		},
		SignalSchedule: ConstructSignalSchedule(editable),
	}
}

// ConstructExperimentRequest is ConstructExperiment in request form.
func ConstructExperimentRequest(editable, published bool, viewers ...string) models.ExperimentRequest {
	e := ConstructExperiment(editable)
	return models.ExperimentRequest{
		Title:          e.Title,
		Description:    e.Description,
		ConsentForm:    e.ConsentForm,
		Published:      published,
		Feedback:       e.Feedback,
		Inputs:         e.Inputs,
		Viewers:        viewers,
		SignalSchedule: e.SignalSchedule,
	}
}

// ConstructEvent returns an event drafted against modDate
func ConstructEvent(modDate time.Time) models.SubmitEventRequest {
	signalTime := time.UnixMilli(3).UTC()
	return models.SubmitEventRequest{
		ExperimentModificationDate: modDate,
		SignalTime:                 &signalTime,
		ResponseTime:               time.UnixMilli(13).UTC(),
		Outputs:                    map[string]string{"test": "value"},
	}
}

// As returns request headers identifying user
func As(user string) map[string]string {
	return map[string]string{auth.UserHeader: user}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
