package recon

import (
	"fmt"
	"sort"
	"time"

	"github.com/barangay-tools/bantay/pkg/backend"
)

// ItemActions lists what the user may do with one feed item.
type ItemActions struct {
	CanView    bool `json:"can_view"`
	CanResolve bool `json:"can_resolve"`
	CanDismiss bool `json:"can_dismiss"`
}

// DisplayItem is one rendered feed entry.
type DisplayItem struct {
	Stream         backend.StreamKind `json:"stream"`
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Time           time.Time          `json:"time"`
	Detail         []string           `json:"detail"`
	Classification Classification    `json:"classification"`
	Actions        ItemActions        `json:"actions"`
}

// Feed is the two-section notification feed.
type Feed struct {
	New     []DisplayItem `json:"new"`
	Earlier []DisplayItem `json:"earlier"`
}

// Feed projects the current classified state into the display feed. Streams
// appear in fixed priority order (not a chronological merge across streams);
// within a stream, newest first. Dismissed records never appear.
func (e *Engine) Feed() Feed {
	e.mu.Lock()
	defer e.mu.Unlock()

	feed := Feed{New: []DisplayItem{}, Earlier: []DisplayItem{}}

	for _, kind := range e.caps.EnabledStreams() {
		st := e.stateLocked(kind)

		records := make([]backend.Record, len(st.records))
		copy(records, st.records)
		sort.SliceStable(records, func(i, j int) bool { return records[i].ID > records[j].ID })

		for i := range records {
			r := &records[i]
			class := Classify(kind, r, st.boundary, st.viewed, st.dismissed)
			if class == ClassHidden {
				continue
			}

			item := e.displayItem(kind, r, class)
			if class == ClassNew {
				feed.New = append(feed.New, item)
			} else {
				feed.Earlier = append(feed.Earlier, item)
			}
		}
	}

	return feed
}

func (e *Engine) displayItem(kind backend.StreamKind, r *backend.Record, class Classification) DisplayItem {
	detail := []string{r.Action}
	if r.Location != "" {
		detail = append(detail, fmt.Sprintf("Location: %s", r.Location))
	}
	if kind.ResolutionBearing() {
		if r.Status != "" {
			detail = append(detail, fmt.Sprintf("Status: %s", r.Status))
		}
		if r.Assigned != "" {
			detail = append(detail, fmt.Sprintf("Assigned: %s", r.Assigned))
		}
		if r.ResolvedBy != "" {
			detail = append(detail, fmt.Sprintf("Resolved by: %s", r.ResolvedBy))
		}
	}

	return DisplayItem{
		Stream:         kind,
		ID:             r.ID,
		Title:          StreamTitle(kind),
		Time:           r.Time,
		Detail:         detail,
		Classification: class,
		Actions: ItemActions{
			CanView:    true,
			CanDismiss: true,
			CanResolve: e.caps.CanResolve && kind.ResolutionBearing() && !r.Resolved(),
		},
	}
}
