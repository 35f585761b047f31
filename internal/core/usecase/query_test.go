package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func TestQueryListNormalizesFilter(t *testing.T) {
	repo := newRepoFake(processingRecord("f-1", "a.txt"))
	uc := NewQueryFilesUseCase(repo)

	out, err := uc.List(context.Background(), domain.FileFilter{Query: "  invoice ", Limit: 10000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	got := repo.listCalls[0]
	if got.Limit != domain.MaxListLimit || got.Query != "invoice" {
		t.Fatalf("unexpected filter: %+v", got)
	}
}

func TestQueryListRejectsUnknownStatus(t *testing.T) {
	uc := NewQueryFilesUseCase(newRepoFake())

	_, err := uc.List(context.Background(), domain.FileFilter{Statuses: []domain.FileStatus{"bogus"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryGetByIDRequiresID(t *testing.T) {
	uc := NewQueryFilesUseCase(newRepoFake())

	if _, err := uc.GetByID(context.Background(), " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
