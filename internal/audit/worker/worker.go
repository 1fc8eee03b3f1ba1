// Package worker retries failed audit appends in the background.
//
// The recorder queues an entry here when the primary append fails. The
// business transition already stands at that point, so the worker is the
// reconciliation path that closes audit gaps.
package worker

import (
	"context"
	"log/slog"
	"time"

	"civreg/internal/audit"
)

// Worker drains the retry inbox and re-appends entries with backoff.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Entry
	logger  *slog.Logger
	backoff time.Duration
	// onGapClosed is invoked after a queued entry finally lands, letting the
	// metrics layer decrement the outstanding-gap gauge.
	onGapClosed func()
}

func New(store audit.Store, inbox <-chan audit.Entry, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:   store,
		inbox:   inbox,
		logger:  logger,
		backoff: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type Option func(*Worker)

// WithBackoff overrides the delay between retry attempts for one entry.
func WithBackoff(d time.Duration) Option {
	return func(w *Worker) { w.backoff = d }
}

// WithGapClosedHook registers a callback fired when a retried entry lands.
func WithGapClosedHook(fn func()) Option {
	return func(w *Worker) { w.onGapClosed = fn }
}

// Run blocks until ctx is cancelled, retrying each queued entry until it
// lands. Entries are processed in arrival order; a persistently failing store
// stalls the queue rather than dropping trail records.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.retryUntilAppended(ctx, entry); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) retryUntilAppended(ctx context.Context, entry audit.Entry) error {
	for attempt := 1; ; attempt++ {
		if err := w.store.Append(ctx, entry); err == nil {
			w.logger.InfoContext(ctx, "audit gap closed",
				"entry_id", entry.ID.String(),
				"attempts", attempt,
			)
			if w.onGapClosed != nil {
				w.onGapClosed()
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff):
		}
	}
}
