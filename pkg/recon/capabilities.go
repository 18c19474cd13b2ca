package recon

import (
	"fmt"

	"github.com/barangay-tools/bantay/pkg/backend"
)

// Capabilities tells the engine which streams to follow and which actions
// the user may take. The engine itself is role-agnostic; role lookup happens
// once at configuration time.
type Capabilities struct {
	Streams    map[backend.StreamKind]bool
	CanResolve bool
}

func (c Capabilities) Enabled(kind backend.StreamKind) bool {
	return c.Streams[kind]
}

// EnabledStreams returns the enabled streams in feed-priority order:
// broadcast alerts first, plain activity last.
func (c Capabilities) EnabledStreams() []backend.StreamKind {
	var out []backend.StreamKind
	for _, kind := range streamPriority {
		if c.Streams[kind] {
			out = append(out, kind)
		}
	}
	return out
}

// streamPriority fixes the feed ordering across streams. Operationally
// urgent categories come first, plain activity logs last.
var streamPriority = []backend.StreamKind{
	backend.StreamResidentBroadcast,
	backend.StreamPatrolActivity,
	backend.StreamIncidentsAssigned,
	backend.StreamIncidentsReported,
	backend.StreamPersonalActivity,
}

// RoleCapabilities maps a barangay role to its default capabilities.
func RoleCapabilities(role string) (Capabilities, error) {
	switch role {
	case "tanod":
		return Capabilities{
			Streams: map[backend.StreamKind]bool{
				backend.StreamPersonalActivity:  true,
				backend.StreamPatrolActivity:    true,
				backend.StreamIncidentsAssigned: true,
				backend.StreamIncidentsReported: true,
			},
			CanResolve: true,
		}, nil
	case "resident":
		return Capabilities{
			Streams: map[backend.StreamKind]bool{
				backend.StreamPersonalActivity:  true,
				backend.StreamResidentBroadcast: true,
				backend.StreamIncidentsReported: true,
			},
		}, nil
	default:
		return Capabilities{}, fmt.Errorf("unknown role %q", role)
	}
}
