package recon

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/barangay-tools/bantay/pkg/backend"
)

// Poller drives one stream's reconciliation on a fixed interval. Passes for
// a stream never overlap because each stream has exactly one poller, and a
// pass runs to completion before the next wait begins. Fetch failures back
// off exponentially (capped) instead of hammering a down backend.
type Poller struct {
	logger   *slog.Logger
	engine   *Engine
	kind     backend.StreamKind
	interval time.Duration

	shutdown chan chan error
}

func NewPoller(logger *slog.Logger, engine *Engine, kind backend.StreamKind, interval time.Duration) *Poller {
	return &Poller{
		logger:   logger.With("module", "poller", "stream", kind),
		engine:   engine,
		kind:     kind,
		interval: interval,
		shutdown: make(chan chan error),
	}
}

// Shutdown stops the run loop and waits for it to exit.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.logger.Info("attempting to shutdown poller")
	errCh := make(chan error)
	select {
	case p.shutdown <- errCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errCh
}

// Run loops fetch-reconcile-wait until the context is cancelled or Shutdown
// is called. Reconciliation errors never escape the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller running", "interval", p.interval.String())

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case errCh := <-p.shutdown:
			p.logger.Info("shutting down run loop")
			errCh <- nil
			return nil
		default:
		}

		err := p.engine.Reconcile(ctx, p.kind)
		if err != nil {
			wait := bo.NextBackOff()
			p.logger.Error("reconciliation pass failed", "err", err, "retry_in", wait.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case errCh := <-p.shutdown:
				errCh <- nil
				return nil
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case errCh := <-p.shutdown:
			p.logger.Info("shutting down run loop")
			errCh <- nil
			return nil
		case <-time.After(p.interval):
		}
	}
}
