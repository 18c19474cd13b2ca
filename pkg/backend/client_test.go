package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchParsesRecords(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"id": 12, "timestamp": "2024-06-15T08:30:00Z", "action": "Responded to noise complaint", "location": "Purok 3", "status": "Under Review", "assigned": "tanod-delacruz"},
			{"id": 11, "timestamp": "2024-06-14 21:05:00", "action": "Stray animal report", "location": "Purok 1", "status": "Resolved", "resolved_by": "tanod-delacruz"}
		]`)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	records, err := c.Fetch(context.Background(), StreamIncidentsAssigned, "tanod delacruz")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if want := "/api/incidents/assigned/tanod%20delacruz"; gotPath != want {
		t.Errorf("request path = %q, want %q", gotPath, want)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != 12 || records[0].Status != "Under Review" {
		t.Errorf("records[0] = %+v", records[0])
	}
	wantTime := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	if !records[0].Time.Equal(wantTime) {
		t.Errorf("records[0].Time = %v, want %v", records[0].Time, wantTime)
	}
	if !records[1].Resolved() || records[1].ResolvedBy != "tanod-delacruz" {
		t.Errorf("records[1] = %+v, want resolved", records[1])
	}
}

func TestFetchStreamPaths(t *testing.T) {
	paths := map[StreamKind]string{
		StreamPersonalActivity:  "/api/logs/activity/juan",
		StreamPatrolActivity:    "/api/logs/patrol/juan",
		StreamResidentBroadcast: "/api/logs/resident/juan",
		StreamIncidentsAssigned: "/api/incidents/assigned/juan",
		StreamIncidentsReported: "/api/incidents/reported/juan",
	}

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for kind, want := range paths {
		if _, err := c.Fetch(context.Background(), kind, "juan"); err != nil {
			t.Fatalf("fetch %s: %v", kind, err)
		}
		if gotPath != want {
			t.Errorf("%s path = %q, want %q", kind, gotPath, want)
		}
	}
}

func TestFetchSkipsMalformedTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"id": 2, "timestamp": "not a time", "action": "Garbled entry"},
			{"id": 1, "timestamp": "2024-06-15T08:30:00Z", "action": "Logged in"}
		]`)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	records, err := c.Fetch(context.Background(), StreamPersonalActivity, "juan")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 || records[0].ID != 1 {
		t.Errorf("records = %+v, want only id 1", records)
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Fetch(context.Background(), StreamPatrolActivity, "juan"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("fetch on 429 = %v, want ErrRateLimited", err)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Fetch(context.Background(), StreamPatrolActivity, "juan"); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestResolveIncident(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody resolveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode resolve body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.ResolveIncident(context.Background(), 42, "tanod-delacruz"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if want := "/api/incidents/42/resolve"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotBody.ResolvedBy != "tanod-delacruz" {
		t.Errorf("resolved_by = %q", gotBody.ResolvedBy)
	}
}

func TestResolveIncidentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(testLogger(), srv.URL, 100)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.ResolveIncident(context.Background(), 42, "tanod-delacruz"); err == nil {
		t.Error("expected error on 502 response")
	}
}

func TestNewClientRejectsBadHost(t *testing.T) {
	if _, err := NewClient(testLogger(), "localhost:8080", 100); err == nil {
		t.Error("expected error for host without scheme")
	}
}
