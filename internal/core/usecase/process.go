package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

type ProcessFileUseCase struct {
	repo         ports.FileRepository
	storage      ports.ObjectStorage
	orchestrator *IngestionOrchestrator
}

func NewProcessFileUseCase(
	repo ports.FileRepository,
	storage ports.ObjectStorage,
	orchestrator *IngestionOrchestrator,
) *ProcessFileUseCase {
	return &ProcessFileUseCase{
		repo:         repo,
		storage:      storage,
		orchestrator: orchestrator,
	}
}

// ProcessByID runs the pipeline for a queued file. Redelivered events for
// records already in a terminal state are acknowledged without work.
func (uc *ProcessFileUseCase) ProcessByID(ctx context.Context, fileID string) error {
	rec, err := uc.repo.GetByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("fetch file record: %w", err)
	}
	if rec.Status.IsTerminal() {
		slog.Info("file_already_terminal", "file_id", rec.ID, "status", rec.Status)
		return nil
	}

	if rec.Status == domain.StatusUploading {
		if err := rec.Transition(domain.StatusProcessing, time.Now().UTC()); err != nil {
			return err
		}
		if err := uc.repo.Save(ctx, rec); err != nil {
			return fmt.Errorf("set status=processing: %w", err)
		}
	}

	raw, err := uc.loadRaw(ctx, rec)
	if err != nil {
		uc.orchestrator.Fail(ctx, rec, StageLoad, err)
		if saveErr := uc.save(ctx, rec); saveErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, saveErr)
		}
		return err
	}

	runErr := uc.orchestrator.Run(ctx, rec, raw)
	if err := uc.save(ctx, rec); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w; save file record: %v", runErr, err)
		}
		return fmt.Errorf("save file record: %w", err)
	}
	return runErr
}

// Process runs the pipeline for an in-memory upload that already has a
// record; used by synchronous surfaces.
func (uc *ProcessFileUseCase) Process(ctx context.Context, rec *domain.FileRecord, raw domain.RawFile) error {
	runErr := uc.orchestrator.Run(ctx, rec, raw)
	if err := uc.save(ctx, rec); err != nil {
		return fmt.Errorf("save file record: %w", err)
	}
	return runErr
}

func (uc *ProcessFileUseCase) loadRaw(ctx context.Context, rec *domain.FileRecord) (domain.RawFile, error) {
	rc, err := uc.storage.Open(ctx, rec.StoragePath)
	if err != nil {
		return domain.RawFile{}, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return domain.RawFile{}, fmt.Errorf("read stored file: %w", err)
	}
	return domain.RawFile{
		Name:             rec.Filename,
		DeclaredMimeType: rec.MimeType,
		SizeBytes:        int64(len(content)),
		Content:          content,
	}, nil
}

// save records the outcome even when the processing context was cancelled.
func (uc *ProcessFileUseCase) save(ctx context.Context, rec *domain.FileRecord) error {
	return uc.repo.Save(context.WithoutCancel(ctx), rec)
}
