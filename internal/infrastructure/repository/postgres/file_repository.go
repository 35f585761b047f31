package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const schemaLockKey = int64(2026101701)

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// analysis is the JSONB payload holding every stage result of a record.
type analysis struct {
	Sample         *domain.ExtractedSample      `json:"sample,omitempty"`
	Classification *domain.ClassificationResult `json:"classification,omitempty"`
	Fields         *domain.FieldSet             `json:"fields,omitempty"`
	Quality        *domain.QualityAssessment    `json:"quality,omitempty"`
	Threat         *domain.ThreatReport         `json:"threat,omitempty"`
	Compliance     *domain.ComplianceReport     `json:"compliance,omitempty"`
}

func (r *FileRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS file_records (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	risk_level TEXT NOT NULL DEFAULT '',
	analysis JSONB NOT NULL DEFAULT '{}'::jsonb,
	reasons JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_records_status ON file_records(status);
CREATE INDEX IF NOT EXISTS idx_file_records_created_at ON file_records(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FileRepository) Create(ctx context.Context, rec *domain.FileRecord) error {
	analysisJSON, reasonsJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO file_records (
	id, filename, mime_type, size_bytes, storage_path, status, document_type, risk_level, analysis, reasons, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		rec.ID, rec.Filename, rec.MimeType, rec.SizeBytes, rec.StoragePath, string(rec.Status),
		documentType(rec), string(rec.RiskLevel()), analysisJSON, reasonsJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, size_bytes, storage_path, status, analysis, reasons, created_at, updated_at
FROM file_records
WHERE id = $1
`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "get file record", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return rec, nil
}

func (r *FileRepository) Save(ctx context.Context, rec *domain.FileRecord) error {
	analysisJSON, reasonsJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE file_records
SET status = $2, document_type = $3, risk_level = $4, analysis = $5, reasons = $6, updated_at = $7
WHERE id = $1
`, rec.ID, string(rec.Status), documentType(rec), string(rec.RiskLevel()), analysisJSON, reasonsJSON, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update file record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file record rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrFileNotFound, "save file record", fmt.Errorf("id=%s", rec.ID))
	}
	return nil
}

func (r *FileRepository) List(ctx context.Context, filter domain.FileFilter) ([]domain.FileRecord, error) {
	filter = filter.Normalize()

	var (
		conditions []string
		args       []any
	)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(filename ILIKE $%d OR document_type ILIKE $%d OR analysis->'classification'->>'name' ILIKE $%d)", n, n, n,
		))
	}

	query := `
SELECT id, filename, mime_type, size_bytes, storage_path, status, analysis, reasons, created_at, updated_at
FROM file_records`
	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf("\nORDER BY created_at DESC, id\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FileRecord, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.FileRecord, error) {
	var (
		rec         domain.FileRecord
		status      string
		analysisRaw []byte
		reasonsRaw  []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.MimeType, &rec.SizeBytes, &rec.StoragePath, &status,
		&analysisRaw, &reasonsRaw, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file record: %w", err)
	}
	rec.Status = domain.FileStatus(status)

	var a analysis
	if len(analysisRaw) > 0 {
		if err := json.Unmarshal(analysisRaw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	rec.Sample = a.Sample
	rec.Classification = a.Classification
	rec.Fields = a.Fields
	rec.Quality = a.Quality
	rec.Threat = a.Threat
	rec.Compliance = a.Compliance

	if len(reasonsRaw) > 0 {
		if err := json.Unmarshal(reasonsRaw, &rec.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	return &rec, nil
}

func encodeRecord(rec *domain.FileRecord) ([]byte, []byte, error) {
	analysisJSON, err := json.Marshal(analysis{
		Sample:         rec.Sample,
		Classification: rec.Classification,
		Fields:         rec.Fields,
		Quality:        rec.Quality,
		Threat:         rec.Threat,
		Compliance:     rec.Compliance,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal analysis: %w", err)
	}
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal reasons: %w", err)
	}
	return analysisJSON, reasonsJSON, nil
}

func documentType(rec *domain.FileRecord) string {
	if rec.Classification == nil {
		return ""
	}
	return rec.Classification.DocumentType
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
