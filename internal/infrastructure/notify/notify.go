// Package notify delivers pipeline alerts to one or more sinks.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	level := slog.LevelWarn
	if n.Severity == domain.SeverityCritical {
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, "file_alert",
		"file_id", n.FileID,
		"filename", n.Filename,
		"kind", string(n.Kind),
		"severity", string(n.Severity),
		"status", string(n.Status),
		"summary", n.Summary,
	)
	return nil
}

// Fanout delivers every alert to all sinks and joins their errors.
type Fanout struct {
	sinks []ports.Notifier
}

func NewFanout(sinks ...ports.Notifier) *Fanout {
	out := make([]ports.Notifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
