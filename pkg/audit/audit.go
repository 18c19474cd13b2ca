package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Event is one auditable engine action, archived for barangay record-keeping.
type Event struct {
	Time     int64  `parquet:"time"`
	Username string `parquet:"username"`
	Stream   string `parquet:"stream"`
	Kind     string `parquet:"kind"`
	RecordID int64  `parquet:"record_id"`
	Summary  string `parquet:"summary"`
}

// Event kinds recorded by the engine.
const (
	KindAlert   = "alert"
	KindResolve = "resolve"
	KindDismiss = "dismiss"
	KindViewAll = "view_all"
	KindReset   = "reset"
)

// Recorder accepts events for archival. Fire-and-forget.
type Recorder interface {
	Record(ev Event)
}

// Archive batches events and writes them to rotating parquet files.
type Archive struct {
	logger       *slog.Logger
	fileDir      string
	prefix       string
	writeQueue   chan *Event
	shutdown     chan struct{}
	wg           sync.WaitGroup
	batchSize    int
	maxBatchWait time.Duration
}

func NewArchive(logger *slog.Logger, fileDir, prefix string, batchSize int, maxBatchWait time.Duration) (*Archive, error) {
	a := Archive{
		logger:       logger.With("module", "audit"),
		fileDir:      fileDir,
		prefix:       prefix,
		batchSize:    batchSize,
		maxBatchWait: maxBatchWait,
		writeQueue:   make(chan *Event, batchSize*2),
		shutdown:     make(chan struct{}),
	}

	// Make sure the file directory exists
	err := os.MkdirAll(fileDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit file directory: %w", err)
	}

	return &a, nil
}

// StartWriter starts the writer goroutine which writes events to parquet files
// when the batch size is reached, after every maxBatchWait duration, or when the shutdown signal is received
func (a *Archive) StartWriter() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		var events []*Event
		t := time.NewTicker(a.maxBatchWait)
		defer t.Stop()

		a.logger.Info("starting audit writer loop")

		for {
			select {
			case ev := <-a.writeQueue:
				events = append(events, ev)
				if len(events) >= a.batchSize {
					a.logger.Info("writing audit file due to max batch size", "batch_size", a.batchSize)
					if err := a.WriteFile(events); err != nil {
						a.logger.Error("failed to write audit file", "error", err)
					}
					events = nil
				}
			case <-t.C:
				if len(events) > 0 {
					a.logger.Info("writing audit file due to max batch wait", "max_batch_wait", a.maxBatchWait.String())
					if err := a.WriteFile(events); err != nil {
						a.logger.Error("failed to write audit file", "error", err)
					}
					events = nil
				}
			case <-a.shutdown:
				a.logger.Info("shutting down audit writer")
				if len(events) > 0 {
					if err := a.WriteFile(events); err != nil {
						a.logger.Error("failed to write audit file", "error", err)
					}
				}
				return
			}
		}
	}()
}

// Shutdown signals the writer goroutine to shutdown and waits for the final flush
func (a *Archive) Shutdown() {
	a.logger.Info("waiting for audit writer to shutdown")
	close(a.shutdown)
	a.wg.Wait()
	a.logger.Info("audit writer shutdown successfully")
}

// Record enqueues one event. Drops (with a log line) rather than blocking
// the engine when the queue is full.
func (a *Archive) Record(ev Event) {
	select {
	case a.writeQueue <- &ev:
	default:
		a.logger.Warn("audit queue full, dropping event", "kind", ev.Kind, "record_id", ev.RecordID)
	}
}

// WriteFile writes the given events to a parquet file
func (a *Archive) WriteFile(events []*Event) error {
	fName := path.Join(a.fileDir, fmt.Sprintf("%s_%s.parquet", a.prefix, time.Now().UTC().Format("2006_01_02-15_04_05")))

	filterBits := uint(10)

	a.logger.Info("writing audit file", "file_path", fName, "num_events", len(events))

	err := parquet.WriteFile(fName, events, parquet.BloomFilters(
		parquet.SplitBlockFilter(filterBits, "username"),
		parquet.SplitBlockFilter(filterBits, "stream"),
		parquet.SplitBlockFilter(filterBits, "kind"),
	))
	if err != nil {
		return fmt.Errorf("failed to write audit file: %w", err)
	}

	a.logger.Info("wrote audit file", "file_path", fName)

	return nil
}
