package recon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/barangay-tools/bantay/pkg/alert"
	"github.com/barangay-tools/bantay/pkg/audit"
	"github.com/barangay-tools/bantay/pkg/backend"
)

var tracer = otel.Tracer("recon")

// Fetcher reads the current records of one stream for one user.
type Fetcher interface {
	Fetch(ctx context.Context, kind backend.StreamKind, user string) ([]backend.Record, error)
}

// Resolver marks an incident resolved on the backend.
type Resolver interface {
	ResolveIncident(ctx context.Context, id int64, resolvedBy string) error
}

// SeenStore is the durable home of per-stream viewing state.
// *seenstore.Store implements it; tests swap in an in-memory fake.
type SeenStore interface {
	GetCursor(user string, stream backend.StreamKind) (int64, bool, error)
	SetCursor(user string, stream backend.StreamKind, id int64) error
	ViewedSet(user string, stream backend.StreamKind) (map[int64]struct{}, error)
	AddViewed(user string, stream backend.StreamKind, id int64) error
	DismissedSet(user string, stream backend.StreamKind) (map[int64]struct{}, error)
	AddDismissed(user string, stream backend.StreamKind, id int64) error
	ResetAll(user string) error
	SaveSnapshot(user string, stream backend.StreamKind, records []backend.Record) error
	GetSnapshot(user string, stream backend.StreamKind) ([]backend.Record, bool, error)
}

// streamState is the in-memory reconciliation state of one stream. The
// boundary is the cursor as of the start of the latest pass; plain-stream
// classification compares against it so freshly fetched records render as
// New for exactly one pass.
type streamState struct {
	initialized bool
	cursor      int64
	boundary    int64
	viewed      map[int64]struct{}
	dismissed   map[int64]struct{}
	records     []backend.Record
}

// Engine reconciles fetched stream records against the durable seen state,
// classifies them for the feed and badge, and emits alerts for genuinely
// new items. One Engine serves one user session.
type Engine struct {
	logger   *slog.Logger
	fetcher  Fetcher
	resolver Resolver
	store    SeenStore
	alerter  alert.Alerter
	audit    audit.Recorder
	user     string
	caps     Capabilities

	mu       sync.Mutex
	streams  map[backend.StreamKind]*streamState
	degraded bool
}

func NewEngine(
	logger *slog.Logger,
	fetcher Fetcher,
	resolver Resolver,
	store SeenStore,
	alerter alert.Alerter,
	auditRec audit.Recorder,
	user string,
	caps Capabilities,
) *Engine {
	return &Engine{
		logger:   logger.With("module", "recon", "user", user),
		fetcher:  fetcher,
		resolver: resolver,
		store:    store,
		alerter:  alerter,
		audit:    auditRec,
		user:     user,
		caps:     caps,
		streams:  map[backend.StreamKind]*streamState{},
	}
}

// User returns the username this engine reconciles for.
func (e *Engine) User() string {
	return e.user
}

// Capabilities returns the capability configuration of this session.
func (e *Engine) Capabilities() Capabilities {
	return e.caps
}

// Degraded reports whether the durable store has failed this session and
// the engine is running on in-memory state only.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// degradeLocked switches the engine into memory-only mode after a store
// failure. Unread counts may reset on restart; that beats crashing the
// polling loop.
func (e *Engine) degradeLocked(op string, err error) {
	if !e.degraded {
		e.logger.Error("durable store unavailable, continuing with in-memory state", "op", op, "err", err)
		e.degraded = true
		return
	}
	e.logger.Debug("durable store still unavailable", "op", op, "err", err)
}

// stateLocked returns the state of a stream, hydrating it from the durable
// store on first access.
func (e *Engine) stateLocked(kind backend.StreamKind) *streamState {
	if st, ok := e.streams[kind]; ok {
		return st
	}

	st := &streamState{
		viewed:    map[int64]struct{}{},
		dismissed: map[int64]struct{}{},
	}

	cursor, found, err := e.store.GetCursor(e.user, kind)
	if err != nil {
		e.degradeLocked("get cursor", err)
	} else if found {
		st.cursor = cursor
		st.boundary = cursor
		st.initialized = true
	}

	if viewed, err := e.store.ViewedSet(e.user, kind); err != nil {
		e.degradeLocked("load viewed set", err)
	} else if viewed != nil {
		st.viewed = viewed
	}

	if dismissed, err := e.store.DismissedSet(e.user, kind); err != nil {
		e.degradeLocked("load dismissed set", err)
	} else if dismissed != nil {
		st.dismissed = dismissed
	}

	// A cached snapshot lets us serve a feed before the first poll lands
	if records, ok, err := e.store.GetSnapshot(e.user, kind); err != nil {
		e.degradeLocked("load snapshot", err)
	} else if ok {
		st.records = records
	}

	e.streams[kind] = st
	return st
}

// Reconcile runs one fetch-classify-persist pass for a stream. Fetch
// failures leave all state untouched; the next tick retries from the last
// persisted state.
func (e *Engine) Reconcile(ctx context.Context, kind backend.StreamKind) error {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	span.SetAttributes(
		attribute.String("stream", string(kind)),
		attribute.String("user", e.user),
	)

	if !e.caps.Enabled(kind) {
		return fmt.Errorf("stream %q is not enabled for this session", kind)
	}

	records, err := e.fetcher.Fetch(ctx, kind, e.user)
	if err != nil {
		fetchFailures.WithLabelValues(string(kind)).Inc()
		return fmt.Errorf("failed to fetch %s: %w", kind, err)
	}

	reconcilePasses.WithLabelValues(string(kind)).Inc()

	e.mu.Lock()
	st := e.stateLocked(kind)

	maxID := st.cursor
	for i := range records {
		if records[i].ID > maxID {
			maxID = records[i].ID
		}
	}

	var a *alert.Alert

	if !st.initialized {
		// First run: fold everything fetched into the seen boundary and
		// stay silent. Incidents already closed are seeded into the viewed
		// set so only open ones surface as needing attention.
		st.cursor = maxID
		st.boundary = maxID
		if kind.ResolutionBearing() {
			for i := range records {
				r := &records[i]
				if !r.Resolved() && r.ResolvedBy != e.user {
					continue
				}
				if _, ok := st.viewed[r.ID]; ok {
					continue
				}
				st.viewed[r.ID] = struct{}{}
				if err := e.store.AddViewed(e.user, kind, r.ID); err != nil {
					e.degradeLocked("seed viewed set", err)
				}
			}
		}
		st.initialized = true
	} else {
		boundary := st.cursor
		newCount := 0
		alertWorthy := 0
		var latest *backend.Record

		for i := range records {
			r := &records[i]
			if r.ID <= boundary {
				continue
			}
			newCount++
			// New-but-already-resolved incidents advance the cursor
			// silently; only open items may trigger an alert.
			if kind.ResolutionBearing() && r.Resolved() {
				continue
			}
			alertWorthy++
			if latest == nil || r.ID > latest.ID {
				latest = r
			}
		}

		newRecordsSeen.WithLabelValues(string(kind)).Add(float64(newCount))

		st.boundary = boundary
		if maxID > st.cursor {
			st.cursor = maxID
		}

		if latest != nil {
			a = &alert.Alert{
				ID:       uuid.NewString(),
				Stream:   kind,
				Title:    StreamTitle(kind),
				Body:     summarize(latest),
				RecordID: latest.ID,
				NewCount: alertWorthy,
				Time:     time.Now(),
			}
		}
	}

	st.records = records

	// Persist the cursor every pass; viewed/dismissed sets only change
	// through explicit actions (and the first-run seeding above).
	if err := e.store.SetCursor(e.user, kind, st.cursor); err != nil {
		e.degradeLocked("set cursor", err)
	}
	if err := e.store.SaveSnapshot(e.user, kind, records); err != nil {
		e.degradeLocked("save snapshot", err)
	}

	unread := e.unreadLocked()
	e.mu.Unlock()

	unreadItems.Set(float64(unread))

	if a != nil {
		alertsEmitted.WithLabelValues(string(kind)).Inc()
		e.alerter.Alert(ctx, *a)
		e.recordAudit(audit.Event{
			Time:     time.Now().UnixNano(),
			Username: e.user,
			Stream:   string(kind),
			Kind:     audit.KindAlert,
			RecordID: a.RecordID,
			Summary:  a.Body,
		})
	}

	return nil
}

// ReconcileAll runs one pass over every enabled stream, returning the first
// error. Used by the one-shot CLI and the refresh endpoint.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	for _, kind := range e.caps.EnabledStreams() {
		if err := e.Reconcile(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recordAudit(ev audit.Event) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ev)
}

func summarize(r *backend.Record) string {
	if r.Location != "" {
		return fmt.Sprintf("%s at %s", r.Action, r.Location)
	}
	return r.Action
}

// StreamTitle returns the user-facing category label of a stream.
func StreamTitle(kind backend.StreamKind) string {
	switch kind {
	case backend.StreamResidentBroadcast:
		return "Barangay Announcement"
	case backend.StreamPatrolActivity:
		return "Patrol Update"
	case backend.StreamIncidentsAssigned:
		return "Assigned Incident"
	case backend.StreamIncidentsReported:
		return "Report Update"
	case backend.StreamPersonalActivity:
		return "Activity"
	default:
		return string(kind)
	}
}
