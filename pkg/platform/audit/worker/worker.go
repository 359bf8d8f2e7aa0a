package worker

import (
	"context"
	"log/slog"
	"time"

	audit "kvault/pkg/platform/audit"
)

// FailureRecorder is notified of every entry that could not be persisted.
type FailureRecorder interface {
	IncPersistFailures()
	IncPersisted()
}

// Worker drains an inbox of audit entries into a store. A failed write is
// logged and counted; it never stops the loop.
type Worker struct {
	store        audit.Appender
	inbox        <-chan audit.Entry
	logger       *slog.Logger
	failures     FailureRecorder
	writeTimeout time.Duration
}

func NewWorker(store audit.Appender, inbox <-chan audit.Entry, logger *slog.Logger, failures FailureRecorder) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:        store,
		inbox:        inbox,
		logger:       logger,
		failures:     failures,
		writeTimeout: 5 * time.Second,
	}
}

// Run processes entries until the inbox is closed and fully drained.
func (w *Worker) Run() {
	for entry := range w.inbox {
		w.Persist(entry)
	}
}

// Persist writes one entry with a bounded timeout.
func (w *Worker) Persist(entry audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.store.Append(ctx, entry); err != nil {
		w.logger.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"target_type", entry.TargetType,
			"target_id", entry.TargetID,
			"actor_id", entry.ActorID,
			"request_id", entry.RequestID,
			"error", err,
		)
		if w.failures != nil {
			w.failures.IncPersistFailures()
		}
		return
	}
	if w.failures != nil {
		w.failures.IncPersisted()
	}
}
