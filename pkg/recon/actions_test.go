package recon

import (
	"context"
	"errors"
	"testing"

	"github.com/barangay-tools/bantay/pkg/backend"
)

func TestViewMovesItemToEarlier(t *testing.T) {
	env := newTestEnv(assignedOnly())
	stream := backend.StreamIncidentsAssigned
	env.fetcher.records[stream] = []backend.Record{
		incident(2, "Resolved"),
		incident(1, "Under Review"),
	}

	if err := env.engine.Reconcile(context.Background(), stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := env.engine.View(stream, 1); err != nil {
		t.Fatalf("view: %v", err)
	}

	feed := env.engine.Feed()
	if len(feed.New) != 0 {
		t.Errorf("newSection = %+v, want empty after view", feed.New)
	}

	var sawViewed, sawResolved bool
	for _, item := range feed.Earlier {
		switch item.ID {
		case 1:
			sawViewed = item.Classification == ClassViewedUnresolved
		case 2:
			sawResolved = item.Classification == ClassResolved
		}
	}
	if !sawViewed {
		t.Error("id 1 not classified viewed_unresolved after view")
	}
	if !sawResolved {
		t.Error("id 2 not classified resolved")
	}

	if got := env.engine.UnreadCount(); got != 0 {
		t.Errorf("unread = %d after view, want 0", got)
	}

	// The cursor is untouched by viewing
	cursor, _, _ := env.store.GetCursor(testUser, stream)
	if cursor != 2 {
		t.Errorf("cursor = %d, want 2", cursor)
	}
}

func TestViewUnknownRecord(t *testing.T) {
	env := newTestEnv(assignedOnly())
	stream := backend.StreamIncidentsAssigned
	env.fetcher.records[stream] = []backend.Record{incident(1, "Under Review")}

	if err := env.engine.Reconcile(context.Background(), stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := env.engine.View(stream, 42); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("View(42) = %v, want ErrUnknownRecord", err)
	}
}

func TestDismissalPermanence(t *testing.T) {
	env := newTestEnv(assignedOnly())
	stream := backend.StreamIncidentsAssigned
	env.fetcher.records[stream] = []backend.Record{
		incident(2, "Resolved"),
		incident(1, "Under Review"),
	}

	ctx := context.Background()
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := env.engine.Dismiss(stream, 1); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	// Several more passes: the dismissed id never renders again
	for i := 0; i < 3; i++ {
		if err := env.engine.Reconcile(ctx, stream); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
		feed := env.engine.Feed()
		for _, item := range append(feed.New, feed.Earlier...) {
			if item.ID == 1 {
				t.Fatalf("dismissed id 1 rendered on pass %d", i)
			}
		}
	}

	if got := env.engine.UnreadCount(); got != 0 {
		t.Errorf("unread = %d with only dismissed/resolved items, want 0", got)
	}

	// Reset clears the dismissal
	if err := env.engine.ResetAll(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("post-reset reconcile: %v", err)
	}
	feed := env.engine.Feed()
	if len(feed.New) != 1 || feed.New[0].ID != 1 {
		t.Errorf("post-reset newSection = %+v, want id 1 back", feed.New)
	}
}

func TestResolveIdempotent(t *testing.T) {
	env := newTestEnv(assignedOnly())
	stream := backend.StreamIncidentsAssigned
	env.fetcher.records[stream] = []backend.Record{incident(1, "Under Review")}

	ctx := context.Background()
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if err := env.engine.Resolve(ctx, stream, 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if env.resolver.calls != 1 {
		t.Errorf("resolver calls = %d, want 1", env.resolver.calls)
	}

	feed := env.engine.Feed()
	if len(feed.Earlier) != 1 || feed.Earlier[0].Classification != ClassResolved {
		t.Errorf("feed after resolve = %+v, want single resolved item", feed)
	}
	if got := env.engine.UnreadCount(); got != 0 {
		t.Errorf("unread = %d after resolve, want 0", got)
	}

	// Second resolve is a local no-op
	if err := env.engine.Resolve(ctx, stream, 1); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if env.resolver.calls != 1 {
		t.Errorf("resolver calls = %d after repeat, want 1", env.resolver.calls)
	}
	if got := env.engine.UnreadCount(); got != 0 {
		t.Errorf("unread double-counted after repeat resolve: %d", got)
	}
}

func TestResolveFailureLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(assignedOnly())
	stream := backend.StreamIncidentsAssigned
	env.fetcher.records[stream] = []backend.Record{incident(1, "Under Review")}

	ctx := context.Background()
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	env.resolver.err = errors.New("backend unavailable")
	if err := env.engine.Resolve(ctx, stream, 1); err == nil {
		t.Fatal("expected resolve to fail")
	}

	feed := env.engine.Feed()
	if len(feed.New) != 1 || feed.New[0].Classification != ClassNew {
		t.Errorf("feed after failed resolve = %+v, want id 1 still New", feed)
	}
	viewed, _ := env.store.ViewedSet(testUser, stream)
	if _, ok := viewed[1]; ok {
		t.Error("failed resolve wrongly marked id viewed")
	}
}

func TestResolveNotPermitted(t *testing.T) {
	caps := Capabilities{
		Streams: map[backend.StreamKind]bool{backend.StreamIncidentsReported: true},
	}
	env := newTestEnv(caps)
	stream := backend.StreamIncidentsReported
	env.fetcher.records[stream] = []backend.Record{incident(1, "Under Review")}

	ctx := context.Background()
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := env.engine.Resolve(ctx, stream, 1); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("Resolve without capability = %v, want ErrNotPermitted", err)
	}
	if env.resolver.calls != 0 {
		t.Errorf("resolver called %d times despite missing capability", env.resolver.calls)
	}
}

func TestResolveOnPlainStreamRejected(t *testing.T) {
	env := newTestEnv(Capabilities{
		Streams:    map[backend.StreamKind]bool{backend.StreamPatrolActivity: true},
		CanResolve: true,
	})
	stream := backend.StreamPatrolActivity
	env.fetcher.records[stream] = []backend.Record{{ID: 1, Action: "Patrol started"}}

	ctx := context.Background()
	if err := env.engine.Reconcile(ctx, stream); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := env.engine.Resolve(ctx, stream, 1); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("Resolve on plain stream = %v, want ErrNotPermitted", err)
	}
}

func TestMarkAllViewedZeroesBadge(t *testing.T) {
	caps := Capabilities{
		Streams: map[backend.StreamKind]bool{
			backend.StreamPatrolActivity:    true,
			backend.StreamIncidentsAssigned: true,
		},
		CanResolve: true,
	}
	env := newTestEnv(caps)
	env.fetcher.records[backend.StreamPatrolActivity] = []backend.Record{{ID: 1, Action: "Patrol started"}}
	env.fetcher.records[backend.StreamIncidentsAssigned] = []backend.Record{incident(1, "Under Review")}

	ctx := context.Background()
	if err := env.engine.ReconcileAll(ctx); err != nil {
		t.Fatalf("reconcile all: %v", err)
	}

	// New patrol record on the second pass plus the open incident
	env.fetcher.records[backend.StreamPatrolActivity] = []backend.Record{
		{ID: 2, Action: "Patrol completed"},
		{ID: 1, Action: "Patrol started"},
	}
	if err := env.engine.ReconcileAll(ctx); err != nil {
		t.Fatalf("second reconcile all: %v", err)
	}
	if got := env.engine.UnreadCount(); got != 2 {
		t.Fatalf("unread before mark-all = %d, want 2", got)
	}

	if err := env.engine.MarkAllViewed(); err != nil {
		t.Fatalf("mark all viewed: %v", err)
	}
	if got := env.engine.UnreadCount(); got != 0 {
		t.Errorf("unread after mark-all = %d, want 0", got)
	}

	cursor, _, _ := env.store.GetCursor(testUser, backend.StreamPatrolActivity)
	if cursor != 2 {
		t.Errorf("patrol cursor = %d after mark-all, want 2", cursor)
	}

	// No re-alerting for already-covered records
	before := len(env.alerts.alerts)
	if err := env.engine.ReconcileAll(ctx); err != nil {
		t.Fatalf("post-mark-all reconcile: %v", err)
	}
	if len(env.alerts.alerts) != before {
		t.Errorf("mark-all pass re-alerted")
	}
}
