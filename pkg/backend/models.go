package backend

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// StreamKind names one independently polled feed of records.
type StreamKind string

const (
	StreamPersonalActivity  StreamKind = "personal-activity"
	StreamPatrolActivity    StreamKind = "patrol-activity"
	StreamResidentBroadcast StreamKind = "resident-broadcast"
	StreamIncidentsAssigned StreamKind = "incidents-assigned"
	StreamIncidentsReported StreamKind = "incidents-reported"
)

// AllStreams lists every stream kind the backend serves.
var AllStreams = []StreamKind{
	StreamPersonalActivity,
	StreamPatrolActivity,
	StreamResidentBroadcast,
	StreamIncidentsAssigned,
	StreamIncidentsReported,
}

// StatusResolved is the terminal status literal for incident-shaped records.
const StatusResolved = "Resolved"

// ResolutionBearing reports whether records on this stream carry a
// resolution state (incident-shaped streams do, plain logs don't).
func (k StreamKind) ResolutionBearing() bool {
	return k == StreamIncidentsAssigned || k == StreamIncidentsReported
}

// Record is one entry of a stream as served by the backend. Records are
// immutable from our side; only the viewing metadata we keep about them
// changes.
type Record struct {
	ID       int64
	Time     time.Time
	Action   string
	Location string

	// Incident-shaped fields, empty on plain log streams.
	Status     string
	Assigned   string
	ResolvedBy string
}

// Resolved reports whether the record has reached its terminal state.
func (r *Record) Resolved() bool {
	return r.Status == StatusResolved
}

type wireRecord struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	Location   string `json:"location,omitempty"`
	Status     string `json:"status,omitempty"`
	Assigned   string `json:"assigned,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

func (w *wireRecord) toRecord() (Record, error) {
	r := Record{
		ID:         w.ID,
		Action:     w.Action,
		Location:   w.Location,
		Status:     w.Status,
		Assigned:   w.Assigned,
		ResolvedBy: w.ResolvedBy,
	}

	if w.Timestamp != "" {
		t, err := dateparse.ParseAny(w.Timestamp)
		if err != nil {
			return r, fmt.Errorf("failed to parse timestamp %q: %w", w.Timestamp, err)
		}
		r.Time = t
	}

	return r, nil
}
