// Package inline is an in-process MessageQueue that runs the subscriber as
// part of the publish call. It backs single-process deployments and the
// MCP surface, where callers expect the final record right away.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

type Handler func(context.Context, string) error

type Queue struct {
	mu      sync.RWMutex
	handler Handler
}

func New() *Queue {
	return &Queue{}
}

// SetHandler binds the consumer without blocking.
func (q *Queue) SetHandler(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

// PublishFileUploaded runs the handler before returning. Handler errors are
// processing outcomes and are logged, not returned.
func (q *Queue) PublishFileUploaded(ctx context.Context, fileID string) error {
	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return domain.WrapError(domain.ErrTemporary, "inline publish", errors.New("no subscriber bound"))
	}
	if err := h(context.WithoutCancel(ctx), fileID); err != nil {
		slog.Error("worker_handler_failed", "file_id", fileID, "error", err)
	}
	return nil
}

// SubscribeFileUploaded binds handler until ctx is done.
func (q *Queue) SubscribeFileUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	q.SetHandler(handler)
	<-ctx.Done()
	q.SetHandler(nil)
	return nil
}
