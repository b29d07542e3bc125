// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/db"
	"github.com/danielhkuo/paco-server/events"
	"github.com/danielhkuo/paco-server/models"
	"github.com/danielhkuo/paco-server/schedule"
	"github.com/danielhkuo/paco-server/signals"
	"github.com/danielhkuo/paco-server/testutil"
)

type testServer struct {
	clock    *calendar.FakeClock
	store    *schedule.Store
	observer *ObserverHandler
	subject  *SubjectHandler
	events   *EventHandler
}

func newTestServer(t *testing.T, policy events.StalePolicy) *testServer {
	t.Helper()

	cfg := testutil.GetTestConfig()
	repo := db.NewRepository(testutil.SetupTestDB(t))
	clock := calendar.Fake(testutil.Epoch)
	store := schedule.NewStore(repo, signals.NewGenerator(signals.NewLockedSource(cfg.SignalSeed)), clock)
	collector := events.NewCollector(repo, clock, policy)

	return &testServer{
		clock:    clock,
		store:    store,
		observer: NewObserverHandler(store, collector),
		subject:  NewSubjectHandler(store, cfg),
		events:   NewEventHandler(collector),
	}
}

// do runs one handler. pathValues are name/value pairs for r.PathValue.
func do(h http.HandlerFunc, method, path string, body interface{}, headers map[string]string, pathValues ...string) *httptest.ResponseRecorder {
	req := testutil.MakeRequest(method, path, body, headers)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// createExperiment posts the reference experiment as the observer and
// returns its id as a path value.
func (s *testServer) createExperiment(t *testing.T, editable, published bool, viewers ...string) (string, models.CreateExperimentResponse) {
	t.Helper()

	w := do(s.observer.CreateExperiment, "POST", "/observer/experiments",
		testutil.ConstructExperimentRequest(editable, published, viewers...), testutil.As(testutil.Observer))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create experiment failed: %d - %s", w.Code, w.Body.String())
	}

	var resp models.CreateExperimentResponse
	testutil.AssertJSON(t, w, &resp)
	return w.Header().Get("Location")[len("/observer/experiments/"):], resp
}

func (s *testServer) join(t *testing.T, id, subject string) {
	t.Helper()
	w := do(s.subject.Join, "POST", "/experiments/"+id, nil, testutil.As(subject), "id", id)
	testutil.AssertStatus(t, w, http.StatusCreated)
}
