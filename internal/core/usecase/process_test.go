package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func TestProcessByIDSuccess(t *testing.T) {
	rec := processingRecord("f-1", "invoice.pdf")
	repo := newRepoFake(rec)
	storage := newStorageFake()
	storage.objects[rec.StoragePath] = []byte("text")
	analyzers, _ := cleanAnalyzers()
	uc := NewProcessFileUseCase(repo, storage, NewIngestionOrchestrator(analyzers, &persisterFake{}, nil))

	if err := uc.ProcessByID(context.Background(), "f-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.saves) != 2 {
		t.Fatalf("expected 2 saves, got %v", repo.saves)
	}
	if repo.saves[0] != domain.StatusProcessing || repo.saves[1] != domain.StatusStored {
		t.Fatalf("unexpected status sequence: %v", repo.saves)
	}
}

func TestProcessByIDSkipsTerminal(t *testing.T) {
	rec := processingRecord("f-2", "doc.txt")
	rec.Status = domain.StatusQuarantined
	repo := newRepoFake(rec)
	analyzers, _ := cleanAnalyzers()
	uc := NewProcessFileUseCase(repo, newStorageFake(), NewIngestionOrchestrator(analyzers, &persisterFake{}, nil))

	if err := uc.ProcessByID(context.Background(), "f-2"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.saves) != 0 {
		t.Fatalf("terminal record must not be saved, got %v", repo.saves)
	}
}

func TestProcessByIDMarksFailedOnStorageError(t *testing.T) {
	rec := processingRecord("f-3", "doc.txt")
	repo := newRepoFake(rec)
	storage := newStorageFake()
	storage.openErr = errors.New("disk gone")
	analyzers, _ := cleanAnalyzers()
	uc := NewProcessFileUseCase(repo, storage, NewIngestionOrchestrator(analyzers, &persisterFake{}, nil))

	if err := uc.ProcessByID(context.Background(), "f-3"); err == nil {
		t.Fatalf("expected error")
	}
	got := repo.get("f-3")
	if got.Status != domain.StatusFailed || got.Reasons[0] != SystemErrorReason {
		t.Fatalf("expected failed with system reason, got %s %v", got.Status, got.Reasons)
	}
}

func TestProcessByIDNotFound(t *testing.T) {
	analyzers, _ := cleanAnalyzers()
	uc := NewProcessFileUseCase(newRepoFake(), newStorageFake(), NewIngestionOrchestrator(analyzers, &persisterFake{}, nil))

	err := uc.ProcessByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessSavesCancelledOutcome(t *testing.T) {
	rec := processingRecord("f-4", "doc.txt")
	repo := newRepoFake(rec)
	analyzers, _ := cleanAnalyzers()
	uc := NewProcessFileUseCase(repo, newStorageFake(), NewIngestionOrchestrator(analyzers, &persisterFake{}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := uc.Process(ctx, rec, domain.RawFile{Name: "doc.txt", Content: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.get("f-4").Status != domain.StatusFailed {
		t.Fatalf("expected saved failed status, got %s", repo.get("f-4").Status)
	}
}
