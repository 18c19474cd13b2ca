package recon

import (
	"testing"

	"github.com/barangay-tools/bantay/pkg/backend"
)

func TestClassify(t *testing.T) {
	viewed := map[int64]struct{}{2: {}}
	dismissed := map[int64]struct{}{9: {}}

	tests := []struct {
		name     string
		kind     backend.StreamKind
		record   backend.Record
		boundary int64
		want     Classification
	}{
		{
			name:     "incident unresolved unviewed is new",
			kind:     backend.StreamIncidentsAssigned,
			record:   backend.Record{ID: 1, Status: "Under Review"},
			boundary: 5,
			want:     ClassNew,
		},
		{
			name:     "incident viewed but open",
			kind:     backend.StreamIncidentsAssigned,
			record:   backend.Record{ID: 2, Status: "Under Review"},
			boundary: 5,
			want:     ClassViewedUnresolved,
		},
		{
			name:     "incident resolved wins over viewed",
			kind:     backend.StreamIncidentsAssigned,
			record:   backend.Record{ID: 2, Status: "Resolved"},
			boundary: 5,
			want:     ClassResolved,
		},
		{
			name:     "incident resolved unviewed is still resolved",
			kind:     backend.StreamIncidentsReported,
			record:   backend.Record{ID: 7, Status: "Resolved"},
			boundary: 0,
			want:     ClassResolved,
		},
		{
			name:     "activity past watermark is new",
			kind:     backend.StreamPatrolActivity,
			record:   backend.Record{ID: 6},
			boundary: 5,
			want:     ClassNew,
		},
		{
			name:     "activity inside watermark is viewed",
			kind:     backend.StreamPatrolActivity,
			record:   backend.Record{ID: 5},
			boundary: 5,
			want:     ClassViewed,
		},
		{
			name:     "dismissed hides everything else",
			kind:     backend.StreamIncidentsAssigned,
			record:   backend.Record{ID: 9, Status: "Under Review"},
			boundary: 0,
			want:     ClassHidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.kind, &tt.record, tt.boundary, viewed, dismissed)
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
