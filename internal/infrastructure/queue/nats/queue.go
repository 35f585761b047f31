package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/resilience"
)

const (
	publishedAtHeader = "Published-At"
	workerQueueGroup  = "ingest-workers"
)

type Queue struct {
	conn         *nats.Conn
	subject      string
	alertSubject string
	executor     *resilience.Executor
	onDeliver    func(lag time.Duration)
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	AlertSubject         string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// OnDeliver receives the publish-to-delivery lag of every upload event.
	OnDeliver func(lag time.Duration)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("mvne-doc-ingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:         conn,
		subject:      subject,
		alertSubject: strings.TrimSpace(options.AlertSubject),
		executor:     options.ResilienceExecutor,
		onDeliver:    options.OnDeliver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishFileUploaded(ctx context.Context, fileID string) error {
	msg := newUploadMsg(q.subject, fileID, time.Now().UTC())
	return q.publish(ctx, "nats.publish", func() error {
		return q.conn.PublishMsg(msg)
	})
}

// PublishAlert emits a JSON encoded notification on the alert subject. With
// no alert subject configured the alert is only logged.
func (q *Queue) PublishAlert(ctx context.Context, n domain.Notification) error {
	if q.alertSubject == "" {
		slog.Debug("alert_subject_unset", "file_id", n.FileID, "kind", string(n.Kind))
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return q.publish(ctx, "nats.alert", func() error {
		return q.conn.Publish(q.alertSubject, payload)
	})
}

// Notify lets the queue serve as the alert Notifier.
func (q *Queue) Notify(ctx context.Context, n domain.Notification) error {
	return q.PublishAlert(ctx, n)
}

func (q *Queue) publish(ctx context.Context, operation string, send func() error) error {
	call := func(_ context.Context) error {
		if err := send(); err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

func (q *Queue) SubscribeFileUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		fileID, publishedAt := parseUploadMsg(msg)
		if fileID == "" {
			slog.Warn("upload_event_empty", "subject", msg.Subject)
			return
		}
		if q.onDeliver != nil && !publishedAt.IsZero() {
			q.onDeliver(time.Since(publishedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, fileID); err != nil {
			slog.Error("worker_handler_failed", "file_id", fileID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func newUploadMsg(subject, fileID string, now time.Time) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = []byte(fileID)
	msg.Header.Set(publishedAtHeader, now.Format(time.RFC3339Nano))
	return msg
}

func parseUploadMsg(msg *nats.Msg) (string, time.Time) {
	fileID := strings.TrimSpace(string(msg.Data))
	if msg.Header == nil {
		return fileID, time.Time{}
	}
	publishedAt, err := time.Parse(time.RFC3339Nano, msg.Header.Get(publishedAtHeader))
	if err != nil {
		return fileID, time.Time{}
	}
	return fileID, publishedAt
}
