package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

type sinkFake struct {
	got []domain.Notification
	err error
}

func (s *sinkFake) Notify(_ context.Context, n domain.Notification) error {
	s.got = append(s.got, n)
	return s.err
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	failing := &sinkFake{err: errors.New("nats down")}
	ok := &sinkFake{}
	f := NewFanout(failing, nil, ok, LogNotifier{})

	n := domain.Notification{FileID: "f-1", Kind: domain.NotificationSecurity, Severity: domain.SeverityCritical}
	err := f.Notify(context.Background(), n)
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Fatalf("expected delivery to both sinks, got %d and %d", len(failing.got), len(ok.got))
	}
	if ok.got[0].FileID != "f-1" {
		t.Fatalf("unexpected notification %+v", ok.got[0])
	}
}

func TestFanoutWithoutSinks(t *testing.T) {
	if err := NewFanout().Notify(context.Background(), domain.Notification{}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
