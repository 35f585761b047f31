// Package memory is a process-local FileRepository used by the CLI and MCP
// surfaces when no database is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

type FileRepository struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewFileRepository() *FileRepository {
	return &FileRepository{records: make(map[string][]byte)}
}

func (r *FileRepository) Create(_ context.Context, rec *domain.FileRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, "create file record", fmt.Errorf("duplicate id=%s", rec.ID))
	}
	r.records[rec.ID] = data
	return nil
}

func (r *FileRepository) GetByID(_ context.Context, id string) (*domain.FileRecord, error) {
	r.mu.RLock()
	data, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file record", fmt.Errorf("id=%s", id))
	}
	return decode(data)
}

func (r *FileRepository) Save(_ context.Context, rec *domain.FileRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return domain.WrapError(domain.ErrFileNotFound, "save file record", fmt.Errorf("id=%s", rec.ID))
	}
	r.records[rec.ID] = data
	return nil
}

// List mirrors the SQL repository: newest first, ties broken by id.
func (r *FileRepository) List(_ context.Context, filter domain.FileFilter) ([]domain.FileRecord, error) {
	filter = filter.Normalize()
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	r.mu.RLock()
	all := make([]domain.FileRecord, 0, len(r.records))
	for _, data := range r.records {
		rec, err := decode(data)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		if matches(rec, filter.Statuses, query) {
			all = append(all, *rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if filter.Offset >= len(all) {
		return []domain.FileRecord{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

func matches(rec *domain.FileRecord, statuses []domain.FileStatus, query string) bool {
	if len(statuses) > 0 {
		found := false
		for _, s := range statuses {
			if rec.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Filename), query) {
		return true
	}
	if cls := rec.Classification; cls != nil {
		return strings.Contains(strings.ToLower(cls.DocumentType), query) ||
			strings.Contains(strings.ToLower(cls.Name), query)
	}
	return false
}

// Records are stored encoded so callers never share mutable state with the map.
func encode(rec *domain.FileRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal file record: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal file record: %w", err)
	}
	return &rec, nil
}
