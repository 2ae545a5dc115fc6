package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const analysisColumns = `id, created_at, span_start, span_end, payload_hash, variant,
	snapshot_count, transition_count, users_lost_total, report, result_json`

// SaveAnalysis inserts an analysis run. A missing ID gets a fresh UUID
// and a zero CreatedAt gets the current time, so callers only fill the
// domain fields.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *Analysis) error {
	if a == nil {
		return fmt.Errorf("saving analysis: nil analysis")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, created_at, span_start, span_end, payload_hash, variant,
			snapshot_count, transition_count, users_lost_total, report, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.SpanStart.UTC().Format("2006-01-02"),
		a.SpanEnd.UTC().Format("2006-01-02"),
		a.PayloadHash,
		a.Variant,
		a.SnapshotCount,
		a.TransitionCount,
		a.UsersLostTotal,
		a.Report,
		a.ResultJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis %s: %w", a.ID, err)
	}
	return nil
}

// GetAnalysis fetches one analysis by ID.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)

	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis %q: %w", id, ErrAnalysisNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting analysis %q: %w", id, err)
	}
	return a, nil
}

// FindByPayloadHash returns the most recent analysis of an identical
// payload, for result reuse.
func (s *SQLiteStore) FindByPayloadHash(ctx context.Context, hash string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE payload_hash = ?
		ORDER BY created_at DESC, id ASC
		LIMIT 1
	`, hash)

	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payload hash %s: %w", truncate(hash, 12), ErrAnalysisNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding analysis by hash: %w", err)
	}
	return a, nil
}

// ListAnalyses returns analyses newest first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, opts ListOpts) ([]*Analysis, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// DeleteAnalysis removes one analysis by ID.
func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting analysis %q: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting analysis %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("analysis %q: %w", id, ErrAnalysisNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var a Analysis
	var createdStr, startStr, endStr string
	if err := row.Scan(&a.ID, &createdStr, &startStr, &endStr, &a.PayloadHash, &a.Variant,
		&a.SnapshotCount, &a.TransitionCount, &a.UsersLostTotal, &a.Report, &a.ResultJSON); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
		a.CreatedAt = t
	} else if t, err := time.Parse("2006-01-02 15:04:05", createdStr); err == nil {
		a.CreatedAt = t
	}
	if t, err := time.Parse("2006-01-02", startStr); err == nil {
		a.SpanStart = t
	}
	if t, err := time.Parse("2006-01-02", endStr); err == nil {
		a.SpanEnd = t
	}
	return &a, nil
}
