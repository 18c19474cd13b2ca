package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barangay-tools/bantay/pkg/audit"
	"github.com/barangay-tools/bantay/pkg/backend"
)

var (
	// ErrNotPermitted is returned when the session's capabilities don't
	// allow the requested action.
	ErrNotPermitted = errors.New("action not permitted")
	// ErrUnknownRecord is returned when the target id isn't present in the
	// stream's current records.
	ErrUnknownRecord = errors.New("unknown record")
)

func (st *streamState) find(id int64) *backend.Record {
	for i := range st.records {
		if st.records[i].ID == id {
			return &st.records[i]
		}
	}
	return nil
}

// View acknowledges one record (the user tapped it). The cursor is not
// touched; only the viewed set grows.
func (e *Engine) View(kind backend.StreamKind, id int64) error {
	if !e.caps.Enabled(kind) {
		return ErrNotPermitted
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(kind)
	if st.find(id) == nil {
		return ErrUnknownRecord
	}

	// Durable write first, then memory, so the UI never shows state the
	// next load can't re-derive.
	if err := e.store.AddViewed(e.user, kind, id); err != nil {
		e.degradeLocked("add viewed", err)
	}
	st.viewed[id] = struct{}{}

	userActions.WithLabelValues("view").Inc()
	return nil
}

// Dismiss hides one record from the feed permanently (until a full reset).
// Dismissed records still count toward cursor advancement.
func (e *Engine) Dismiss(kind backend.StreamKind, id int64) error {
	if !e.caps.Enabled(kind) {
		return ErrNotPermitted
	}

	e.mu.Lock()
	st := e.stateLocked(kind)
	if st.find(id) == nil {
		e.mu.Unlock()
		return ErrUnknownRecord
	}

	if err := e.store.AddDismissed(e.user, kind, id); err != nil {
		e.degradeLocked("add dismissed", err)
	}
	st.dismissed[id] = struct{}{}
	e.mu.Unlock()

	userActions.WithLabelValues("dismiss").Inc()
	e.recordAudit(audit.Event{
		Time:     time.Now().UnixNano(),
		Username: e.user,
		Stream:   string(kind),
		Kind:     audit.KindDismiss,
		RecordID: id,
	})
	return nil
}

// Resolve marks an incident resolved: backend first, local state only after
// the backend confirms. Resolving an already-resolved incident is a no-op
// success.
func (e *Engine) Resolve(ctx context.Context, kind backend.StreamKind, id int64) error {
	if !e.caps.CanResolve || !kind.ResolutionBearing() || !e.caps.Enabled(kind) {
		return ErrNotPermitted
	}

	e.mu.Lock()
	st := e.stateLocked(kind)
	r := st.find(id)
	if r == nil {
		e.mu.Unlock()
		return ErrUnknownRecord
	}
	if r.Resolved() {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// No optimistic update: a failed resolve leaves everything untouched.
	if err := e.resolver.ResolveIncident(ctx, id, e.user); err != nil {
		return fmt.Errorf("failed to resolve incident %d: %w", id, err)
	}

	e.mu.Lock()
	st = e.stateLocked(kind)
	if r := st.find(id); r != nil {
		r.Status = backend.StatusResolved
		r.ResolvedBy = e.user
		if err := e.store.SaveSnapshot(e.user, kind, st.records); err != nil {
			e.degradeLocked("save snapshot", err)
		}
	}
	if err := e.store.AddViewed(e.user, kind, id); err != nil {
		e.degradeLocked("add viewed", err)
	}
	st.viewed[id] = struct{}{}
	e.mu.Unlock()

	userActions.WithLabelValues("resolve").Inc()
	e.recordAudit(audit.Event{
		Time:     time.Now().UnixNano(),
		Username: e.user,
		Stream:   string(kind),
		Kind:     audit.KindResolve,
		RecordID: id,
	})
	return nil
}

// MarkAllViewed acknowledges every currently fetched record on every stream
// and advances every cursor to its max fetched id, zeroing the badge
// without individual taps.
func (e *Engine) MarkAllViewed() error {
	e.mu.Lock()
	for _, kind := range e.caps.EnabledStreams() {
		st := e.stateLocked(kind)

		maxID := st.cursor
		for i := range st.records {
			r := &st.records[i]
			if r.ID > maxID {
				maxID = r.ID
			}
			if _, ok := st.viewed[r.ID]; ok {
				continue
			}
			if err := e.store.AddViewed(e.user, kind, r.ID); err != nil {
				e.degradeLocked("add viewed", err)
			}
			st.viewed[r.ID] = struct{}{}
		}

		st.cursor = maxID
		st.boundary = maxID
		if err := e.store.SetCursor(e.user, kind, st.cursor); err != nil {
			e.degradeLocked("set cursor", err)
		}
	}
	unread := e.unreadLocked()
	e.mu.Unlock()

	unreadItems.Set(float64(unread))
	userActions.WithLabelValues("view_all").Inc()
	e.recordAudit(audit.Event{
		Time:     time.Now().UnixNano(),
		Username: e.user,
		Kind:     audit.KindViewAll,
	})
	return nil
}

// ResetAll forgets all cursors, viewed sets, and dismissed sets for the
// user. The next pass on every stream re-runs first-run policy. This is a
// user action, so a store failure is surfaced instead of degraded around.
func (e *Engine) ResetAll() error {
	e.mu.Lock()
	if err := e.store.ResetAll(e.user); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to reset notification state: %w", err)
	}
	e.streams = map[backend.StreamKind]*streamState{}
	e.mu.Unlock()

	unreadItems.Set(0)
	userActions.WithLabelValues("reset").Inc()
	e.recordAudit(audit.Event{
		Time:     time.Now().UnixNano(),
		Username: e.user,
		Kind:     audit.KindReset,
	})
	return nil
}
