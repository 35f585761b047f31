package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func TestUploadMessageRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 123, time.UTC)
	msg := newUploadMsg("files.uploaded", "f-1", now)

	id, publishedAt := parseUploadMsg(msg)
	if id != "f-1" {
		t.Fatalf("file id = %q", id)
	}
	if !publishedAt.Equal(now) {
		t.Fatalf("published at = %v, want %v", publishedAt, now)
	}
}

func TestParseUploadMessageWithoutHeader(t *testing.T) {
	id, publishedAt := parseUploadMsg(&nats.Msg{Data: []byte(" f-2\n")})
	if id != "f-2" {
		t.Fatalf("file id = %q", id)
	}
	if !publishedAt.IsZero() {
		t.Fatalf("expected zero publish time, got %v", publishedAt)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("nats.publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("closed connection must be retried: %+v", c)
	}
	if c := classifyNATSError(context.DeadlineExceeded); c.Retryable || c.RecordFailure {
		t.Fatalf("deadline must not be retried: %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatalf("bad subject must not be retried: %+v", c)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded("nats.publish", nats.ErrNoServers)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	permanent := errors.New("payload rejected")
	if err := wrapTemporaryIfNeeded("nats.publish", permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected untagged error, got %v", err)
	}
}

func TestPublishAlertWithoutSubjectIsNoop(t *testing.T) {
	q := &Queue{}
	if err := q.Notify(context.Background(), domain.Notification{FileID: "f-1", Kind: domain.NotificationSecurity}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}
