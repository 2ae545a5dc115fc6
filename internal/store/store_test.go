package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAnalysis(n int) *Analysis {
	return &Analysis{
		CreatedAt:       time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
		SpanStart:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		SpanEnd:         time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC),
		PayloadHash:     fmt.Sprintf("hash-%04d", n),
		Variant:         "date_keyed",
		SnapshotCount:   7,
		TransitionCount: 2,
		UsersLostTotal:  int64(100 * n),
		Report:          fmt.Sprintf("# Report %d", n),
		ResultJSON:      `{"users_lost_total":0}`,
	}
}

// --- Database Initialization ---

func TestNewStore(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()

	// Verify tables exist by querying each
	ss := s.(*SQLiteStore)
	tables := []string{"analyses", "meta"}
	for _, table := range tables {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestWALMode(t *testing.T) {
	s := newTestStore(t)
	ss := s.(*SQLiteStore)

	var mode string
	ss.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	// In-memory databases use "memory" journal mode, not WAL
	if mode != "memory" && mode != "wal" {
		t.Errorf("expected journal_mode 'wal' or 'memory', got %q", mode)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funnelscope.db")

	s1, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.SaveAnalysis(context.Background(), testAnalysis(1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	s1.Close()

	// Reopening must re-run migrate without error and keep existing rows.
	s2, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.ListAnalyses(context.Background(), ListOpts{})
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 analysis after reopen, got %d", len(got))
	}
}

func TestPayloadHashIndexFlag(t *testing.T) {
	s := newTestStore(t)
	ss := s.(*SQLiteStore)

	enabled, err := ss.isMetaFlagEnabled("payload_hash_index_v1")
	if err != nil {
		t.Fatalf("reading meta flag: %v", err)
	}
	if !enabled {
		t.Error("expected payload_hash_index_v1 flag to be set after migrate")
	}
}

// --- Analysis CRUD ---

func TestSaveAndGetAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAnalysis(1)
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected SaveAnalysis to assign an ID")
	}

	got, err := s.GetAnalysis(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got.PayloadHash != a.PayloadHash {
		t.Errorf("payload hash = %q, want %q", got.PayloadHash, a.PayloadHash)
	}
	if got.Variant != "date_keyed" {
		t.Errorf("variant = %q, want date_keyed", got.Variant)
	}
	if got.UsersLostTotal != 100 {
		t.Errorf("users lost = %d, want 100", got.UsersLostTotal)
	}
	if !got.SpanStart.Equal(a.SpanStart) {
		t.Errorf("span start = %v, want %v", got.SpanStart, a.SpanStart)
	}
	if !got.SpanEnd.Equal(a.SpanEnd) {
		t.Errorf("span end = %v, want %v", got.SpanEnd, a.SpanEnd)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, a.CreatedAt)
	}
	if got.Report != a.Report {
		t.Errorf("report = %q, want %q", got.Report, a.Report)
	}
	if got.ResultJSON != a.ResultJSON {
		t.Errorf("result json = %q, want %q", got.ResultJSON, a.ResultJSON)
	}
}

func TestSaveAnalysisKeepsExplicitID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAnalysis(1)
	a.ID = "fixed-id"
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if a.ID != "fixed-id" {
		t.Errorf("ID rewritten to %q", a.ID)
	}
	if _, err := s.GetAnalysis(ctx, "fixed-id"); err != nil {
		t.Errorf("GetAnalysis by explicit ID failed: %v", err)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAnalysis(context.Background(), "no-such-id")
	if !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestListAnalysesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		if err := s.SaveAnalysis(ctx, testAnalysis(n)); err != nil {
			t.Fatalf("save %d: %v", n, err)
		}
	}

	got, err := s.ListAnalyses(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListAnalyses failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(got))
	}
	if got[0].PayloadHash != "hash-0003" || got[2].PayloadHash != "hash-0001" {
		t.Errorf("wrong order: %q .. %q", got[0].PayloadHash, got[2].PayloadHash)
	}
}

func TestListAnalysesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		if err := s.SaveAnalysis(ctx, testAnalysis(n)); err != nil {
			t.Fatalf("save %d: %v", n, err)
		}
	}

	page, err := s.ListAnalyses(ctx, ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListAnalyses failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(page))
	}
	// Newest first: 5,4 | 3,2 | 1
	if page[0].PayloadHash != "hash-0003" || page[1].PayloadHash != "hash-0002" {
		t.Errorf("wrong page: %q, %q", page[0].PayloadHash, page[1].PayloadHash)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAnalysis(1)
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteAnalysis(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAnalysis failed: %v", err)
	}
	if _, err := s.GetAnalysis(ctx, a.ID); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("expected ErrAnalysisNotFound after delete, got %v", err)
	}
}

func TestDeleteAnalysisNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteAnalysis(context.Background(), "no-such-id")
	if !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestFindByPayloadHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testAnalysis(1)
	older.PayloadHash = "shared-hash"
	newer := testAnalysis(2)
	newer.PayloadHash = "shared-hash"
	for _, a := range []*Analysis{older, newer} {
		if err := s.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.FindByPayloadHash(ctx, "shared-hash")
	if err != nil {
		t.Fatalf("FindByPayloadHash failed: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("expected most recent analysis %q, got %q", newer.ID, got.ID)
	}

	if _, err := s.FindByPayloadHash(ctx, "unseen-hash"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("expected ErrAnalysisNotFound for unseen hash, got %v", err)
	}
}

// --- Stats and Maintenance ---

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty store failed: %v", err)
	}
	if stats.AnalysisCount != 0 || stats.UsersLostTotal != 0 {
		t.Errorf("empty store stats = %+v", stats)
	}

	for n := 1; n <= 2; n++ {
		if err := s.SaveAnalysis(ctx, testAnalysis(n)); err != nil {
			t.Fatalf("save %d: %v", n, err)
		}
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.AnalysisCount != 2 {
		t.Errorf("analysis count = %d, want 2", stats.AnalysisCount)
	}
	if stats.UsersLostTotal != 300 {
		t.Errorf("users lost total = %d, want 300", stats.UsersLostTotal)
	}
	if stats.DBSizeBytes <= 0 {
		t.Errorf("db size = %d, want > 0", stats.DBSizeBytes)
	}
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	if err := s.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}
