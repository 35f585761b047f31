// Package archive persists stored records and their raw content to object
// storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/resilience"
)

const (
	recordsPrefix = "records"
	filesPrefix   = "files"
)

var classifyArchiveError = resilience.TransientClassifier(nil)

type Persister struct {
	store    ports.ObjectStorage
	executor *resilience.Executor
}

// NewPersister writes through executor when it is non-nil.
func NewPersister(store ports.ObjectStorage, executor *resilience.Executor) *Persister {
	return &Persister{store: store, executor: executor}
}

// Persist writes the raw content first and the record document last, so a
// record document always points at content that exists.
func (p *Persister) Persist(ctx context.Context, rec *domain.FileRecord, raw domain.RawFile) error {
	if rec == nil || rec.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "archive persist", fmt.Errorf("record id is required"))
	}

	doc, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	fileKey := ContentKey(rec)
	if err := p.write(ctx, "archive.write_content", fileKey, raw.Content); err != nil {
		return err
	}
	recordKey := RecordKey(rec.ID)
	if err := p.write(ctx, "archive.write_record", recordKey, doc); err != nil {
		return err
	}

	slog.Info("file_archived", "file_id", rec.ID, "record_key", recordKey, "content_key", fileKey)
	return nil
}

func (p *Persister) write(ctx context.Context, operation, key string, data []byte) error {
	call := func(ctx context.Context) error {
		return p.store.Save(ctx, key, bytes.NewReader(data))
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, operation, call, classifyArchiveError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return resilience.WrapTemporary(operation, fmt.Errorf("write %s: %w", key, err), classifyArchiveError)
	}
	return nil
}

func RecordKey(id string) string {
	return path.Join(recordsPrefix, id+".json")
}

// ContentKey reuses the sanitized upload key, which already has the
// "<id>_<name>" shape.
func ContentKey(rec *domain.FileRecord) string {
	name := path.Base(rec.StoragePath)
	if rec.StoragePath == "" || name == "." || name == "/" {
		name = rec.ID + ".bin"
	}
	return path.Join(filesPrefix, name)
}
