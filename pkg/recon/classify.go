package recon

import (
	"github.com/barangay-tools/bantay/pkg/backend"
)

// Classification is the derived per-record state used for feed rendering
// and badge counting. Never persisted; recomputed every pass.
type Classification string

const (
	// ClassNew marks records needing first attention: past the seen
	// boundary on plain streams, unresolved-and-unacknowledged on
	// incident streams.
	ClassNew Classification = "new"
	// ClassViewed marks plain-stream records inside the seen boundary.
	ClassViewed Classification = "viewed"
	// ClassViewedUnresolved marks acknowledged but still-open incidents.
	ClassViewedUnresolved Classification = "viewed_unresolved"
	// ClassResolved marks incidents in their terminal state.
	ClassResolved Classification = "resolved"
	// ClassHidden marks records the user dismissed from the feed.
	ClassHidden Classification = "hidden"
)

// Classify labels one record.
//
// Incident-shaped streams ignore the cursor here: the resolution status and
// the viewed set carry the "needs action" signal, so an unresolved incident
// stays New across passes until the user acknowledges it. Plain streams use
// the watermark: anything past the boundary of the previous pass is New.
// A dismissed ID is Hidden no matter what else is true of it.
func Classify(kind backend.StreamKind, r *backend.Record, boundary int64, viewed, dismissed map[int64]struct{}) Classification {
	if _, ok := dismissed[r.ID]; ok {
		return ClassHidden
	}

	if kind.ResolutionBearing() {
		if r.Resolved() {
			return ClassResolved
		}
		if _, ok := viewed[r.ID]; ok {
			return ClassViewedUnresolved
		}
		return ClassNew
	}

	if r.ID > boundary {
		return ClassNew
	}
	return ClassViewed
}
