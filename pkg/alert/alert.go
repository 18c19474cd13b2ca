package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/barangay-tools/bantay/pkg/backend"
)

// Alert is a single user-facing notification of new activity on a stream.
// The reconciliation engine emits at most one per stream per pass.
type Alert struct {
	ID       string             `json:"id"`
	Stream   backend.StreamKind `json:"stream"`
	Title    string             `json:"title"`
	Body     string             `json:"body"`
	RecordID int64              `json:"record_id"`
	NewCount int                `json:"new_count"`
	Time     time.Time          `json:"time"`
}

// Alerter surfaces alerts to the user. Fire-and-forget from the engine's
// perspective; implementations must not block for long.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts to the structured log. Useful headless and as a
// fallback when no dashboard is connected.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With("module", "alert")}
}

func (l *LogAlerter) Alert(ctx context.Context, a Alert) {
	l.logger.Info("alert",
		"stream", a.Stream,
		"title", a.Title,
		"body", a.Body,
		"record_id", a.RecordID,
		"new_count", a.NewCount,
	)
}

type multiAlerter []Alerter

func (m multiAlerter) Alert(ctx context.Context, a Alert) {
	for _, al := range m {
		al.Alert(ctx, a)
	}
}

// Multi fans one alert out to several alerters.
func Multi(alerters ...Alerter) Alerter {
	return multiAlerter(alerters)
}
