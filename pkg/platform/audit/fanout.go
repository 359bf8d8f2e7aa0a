package audit

import (
	"context"
	"log/slog"
)

// Fanout writes to a primary store and mirrors to secondary sinks. Only the
// primary's error is returned; sink failures are logged.
type Fanout struct {
	primary Store
	sinks   []Appender
	logger  *slog.Logger
}

func NewFanout(primary Store, logger *slog.Logger, sinks ...Appender) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, sinks: sinks, logger: logger}
}

func (f *Fanout) Append(ctx context.Context, entry Entry) error {
	if err := f.primary.Append(ctx, entry); err != nil {
		return err
	}
	for _, sink := range f.sinks {
		if err := sink.Append(ctx, entry); err != nil {
			f.logger.WarnContext(ctx, "audit sink write failed",
				"action", entry.Action,
				"target_id", entry.TargetID,
				"error", err,
			)
		}
	}
	return nil
}

func (f *Fanout) List(ctx context.Context, q Query) ([]Entry, error) {
	return f.primary.List(ctx, q)
}
