// Package history records completed pipeline runs. Only counts, ratios and
// dispositions are stored; extracted values never reach the database.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/minio/highwayhash"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"formintel/internal/logger"
	"formintel/pkg/models"
)

// ErrNotFound is returned when no run matches a lookup.
var ErrNotFound = errors.New("run not found")

var fingerprintKey = []byte("formintel-document-fingerprint-k")

// Fingerprint identifies document content without storing it.
func Fingerprint(data []byte) (string, error) {
	h, err := highwayhash.New(fingerprintKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Run is the completion metadata of one pipeline run.
type Run struct {
	ID                string                  `json:"id"`
	Fingerprint       string                  `json:"fingerprint"`
	Document          string                  `json:"document"`
	Status            models.Status           `json:"status"`
	OverallConfidence float64                 `json:"overall_confidence"`
	ExtractionMethod  models.ExtractionMethod `json:"extraction_method,omitempty"`
	FallbackUsed      bool                    `json:"fallback_used"`
	FieldCount        int                     `json:"field_count"`
	ReviewItemCount   int                     `json:"review_item_count"`
	ErrorCount        int                     `json:"error_count"`
	WarningCount      int                     `json:"warning_count"`
	AutoFillRate      float64                 `json:"auto_fill_rate"`
	Completeness      float64                 `json:"completeness"`
	AIUsed            bool                    `json:"ai_used"`
	Duration          time.Duration           `json:"duration"`
	CreatedAt         time.Time               `json:"created_at"`
}

// NewRun summarizes a result. extraction may be nil.
func NewRun(document, fingerprint string, extraction *models.ExtractionResult, result *models.ProcessingResult, duration time.Duration) Run {
	errs, warnings, _ := result.IssueCounts()
	run := Run{
		ID:                result.ID,
		Fingerprint:       fingerprint,
		Document:          document,
		Status:            result.Status,
		OverallConfidence: result.OverallConfidence,
		ExtractionMethod:  result.ExtractionMethod,
		FieldCount:        result.Statistics.TotalFields,
		ReviewItemCount:   len(result.ReviewItems),
		ErrorCount:        errs,
		WarningCount:      warnings,
		AutoFillRate:      result.Statistics.AutoFillRate,
		Completeness:      result.Statistics.Completeness,
		AIUsed:            result.AIValidation != nil && result.AIValidation.Used,
		Duration:          duration,
		CreatedAt:         result.CreatedAt,
	}
	if extraction != nil {
		run.FallbackUsed = extraction.FallbackUsed
	}
	return run
}

// Store is a sqlite-backed run log.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db, log: logger.WithComponent("history")}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            fingerprint TEXT NOT NULL,
            document TEXT NOT NULL,
            status TEXT NOT NULL,
            overall_confidence REAL NOT NULL,
            extraction_method TEXT NOT NULL,
            fallback_used INTEGER NOT NULL,
            field_count INTEGER NOT NULL,
            review_item_count INTEGER NOT NULL,
            error_count INTEGER NOT NULL,
            warning_count INTEGER NOT NULL,
            auto_fill_rate REAL NOT NULL,
            completeness REAL NOT NULL,
            ai_used INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            created_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint, created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply history schema: %w", err)
		}
	}
	return tx.Commit()
}

// Record inserts a run. Runs are never updated; a new run gets a new row.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
            id, fingerprint, document, status, overall_confidence, extraction_method,
            fallback_used, field_count, review_item_count, error_count, warning_count,
            auto_fill_rate, completeness, ai_used, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Fingerprint, run.Document, string(run.Status), run.OverallConfidence, string(run.ExtractionMethod),
		run.FallbackUsed, run.FieldCount, run.ReviewItemCount, run.ErrorCount, run.WarningCount,
		run.AutoFillRate, run.Completeness, run.AIUsed, run.Duration.Milliseconds(), run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	s.log.Debug().Str("id", run.ID).Str("fingerprint", run.Fingerprint).Msg("Run recorded")
	return nil
}

const selectRuns = `SELECT id, fingerprint, document, status, overall_confidence, extraction_method,
        fallback_used, field_count, review_item_count, error_count, warning_count,
        auto_fill_rate, completeness, ai_used, duration_ms, created_at FROM runs`

// ByFingerprint returns the runs of a document, newest first.
func (s *Store) ByFingerprint(ctx context.Context, fingerprint string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE fingerprint = ? ORDER BY created_at DESC, id`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// Latest returns the newest run of a document.
func (s *Store) Latest(ctx context.Context, fingerprint string) (*Run, error) {
	runs, err := s.ByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			r          Run
			status     string
			method     string
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.Document, &status, &r.OverallConfidence, &method,
			&r.FallbackUsed, &r.FieldCount, &r.ReviewItemCount, &r.ErrorCount, &r.WarningCount,
			&r.AutoFillRate, &r.Completeness, &r.AIUsed, &durationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.Status(status)
		r.ExtractionMethod = models.ExtractionMethod(method)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
