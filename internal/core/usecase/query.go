package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

type QueryFilesUseCase struct {
	repo ports.FileRepository
}

func NewQueryFilesUseCase(repo ports.FileRepository) *QueryFilesUseCase {
	return &QueryFilesUseCase{repo: repo}
}

func (uc *QueryFilesUseCase) GetByID(ctx context.Context, id string) (*domain.FileRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get file", fmt.Errorf("id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *QueryFilesUseCase) List(ctx context.Context, filter domain.FileFilter) ([]domain.FileRecord, error) {
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "list files", fmt.Errorf("unknown status %q", s))
		}
	}
	filter = filter.Normalize()
	filter.Query = strings.TrimSpace(filter.Query)
	records, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	return records, nil
}
