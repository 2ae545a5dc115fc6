package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/patternpandits/funnelscope/internal/store"
)

// ==================== parseGlobalFlags ====================

func resetGlobals(t *testing.T) {
	t.Helper()
	oldDB, oldConfig, oldVerbose := globalDBPath, globalConfigPath, globalVerbose
	globalDBPath, globalConfigPath, globalVerbose = "", "", false
	t.Cleanup(func() {
		globalDBPath, globalConfigPath, globalVerbose = oldDB, oldConfig, oldVerbose
	})
}

func TestParseGlobalFlags_DBFlag(t *testing.T) {
	resetGlobals(t)

	args := parseGlobalFlags([]string{"--db", "/tmp/test.db", "reports", "list"})

	if globalDBPath != "/tmp/test.db" {
		t.Errorf("globalDBPath = %q, want %q", globalDBPath, "/tmp/test.db")
	}
	if len(args) != 2 || args[0] != "reports" || args[1] != "list" {
		t.Errorf("filtered args = %v, want [reports list]", args)
	}
}

func TestParseGlobalFlags_DBFlagEquals(t *testing.T) {
	resetGlobals(t)

	args := parseGlobalFlags([]string{"--db=/tmp/eq.db", "reports"})

	if globalDBPath != "/tmp/eq.db" {
		t.Errorf("globalDBPath = %q, want %q", globalDBPath, "/tmp/eq.db")
	}
	if len(args) != 1 || args[0] != "reports" {
		t.Errorf("filtered args = %v, want [reports]", args)
	}
}

func TestParseGlobalFlags_ConfigFlag(t *testing.T) {
	resetGlobals(t)

	args := parseGlobalFlags([]string{"analyze", "--config", "/tmp/f.yaml"})

	if globalConfigPath != "/tmp/f.yaml" {
		t.Errorf("globalConfigPath = %q, want %q", globalConfigPath, "/tmp/f.yaml")
	}
	if len(args) != 1 || args[0] != "analyze" {
		t.Errorf("filtered args = %v, want [analyze]", args)
	}
}

func TestParseGlobalFlags_VerboseFlag(t *testing.T) {
	resetGlobals(t)

	args := parseGlobalFlags([]string{"--verbose", "serve"})

	if !globalVerbose {
		t.Error("globalVerbose should be true")
	}
	if len(args) != 1 || args[0] != "serve" {
		t.Errorf("filtered args = %v, want [serve]", args)
	}
}

func TestParseGlobalFlags_NoFlags(t *testing.T) {
	resetGlobals(t)

	args := parseGlobalFlags([]string{"when", "around noon"})

	if globalDBPath != "" {
		t.Errorf("globalDBPath should be empty, got %q", globalDBPath)
	}
	if len(args) != 2 {
		t.Errorf("filtered args = %v, want [when around noon]", args)
	}
}

func TestParseGlobalFlags_Empty(t *testing.T) {
	resetGlobals(t)

	if args := parseGlobalFlags([]string{}); len(args) != 0 {
		t.Errorf("expected empty filtered args, got %v", args)
	}
}

// ==================== command plumbing ====================

// isolateSettings points the globals at a temp database and an absent
// config file, and blanks the FUNNELSCOPE_* env so host settings
// cannot leak into the run.
func isolateSettings(t *testing.T) string {
	t.Helper()
	resetGlobals(t)
	tmp := t.TempDir()
	globalDBPath = filepath.Join(tmp, "funnelscope.db")
	globalConfigPath = filepath.Join(tmp, "config.yaml")
	for _, key := range []string{
		"FUNNELSCOPE_DB", "FUNNELSCOPE_DB_PATH", "FUNNELSCOPE_ADDR",
		"FUNNELSCOPE_CACHE_TTL", "FUNNELSCOPE_TOP_N",
		"FUNNELSCOPE_PLATFORMS", "FUNNELSCOPE_HALF_WIDTH",
	} {
		t.Setenv(key, "")
	}
	return tmp
}

func writePayloadFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "payload.json")
	payload := `{
		"2025-07-01": {"ios": [1000, 400, 100]},
		"2025-07-02": {"ios": [500, 300, 120]}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing payload fixture: %v", err)
	}
	return path
}

func TestRunAnalyze_SavesToStore(t *testing.T) {
	tmp := isolateSettings(t)
	payloadPath := writePayloadFile(t, tmp)

	args := []string{"-file", payloadPath, "-from", "2025-07-01", "-to", "2025-07-02", "-save"}
	if err := runAnalyze(args); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: globalDBPath})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	rows, err := st.ListAnalyses(context.Background(), store.ListOpts{})
	if err != nil {
		t.Fatalf("listing analyses: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 saved run, got %d", len(rows))
	}
	if rows[0].UsersLostTotal != 1280 {
		t.Errorf("users lost = %d, want 1280", rows[0].UsersLostTotal)
	}
	if rows[0].Variant != "date_keyed" {
		t.Errorf("variant = %q, want date_keyed", rows[0].Variant)
	}
	if !strings.Contains(rows[0].Report, "Worst drop-offs") {
		t.Errorf("stored report missing drop-off section:\n%s", rows[0].Report)
	}
}

func TestRunAnalyze_RepeatSaveAddsSecondRun(t *testing.T) {
	tmp := isolateSettings(t)
	payloadPath := writePayloadFile(t, tmp)

	args := []string{"-file", payloadPath, "-from", "2025-07-01", "-to", "2025-07-02", "-save"}
	if err := runAnalyze(args); err != nil {
		t.Fatalf("first runAnalyze: %v", err)
	}
	if err := runAnalyze(args); err != nil {
		t.Fatalf("second runAnalyze: %v", err)
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: globalDBPath})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	rows, err := st.ListAnalyses(context.Background(), store.ListOpts{})
	if err != nil {
		t.Fatalf("listing analyses: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 saved runs, got %d", len(rows))
	}
	if rows[0].PayloadHash != rows[1].PayloadHash {
		t.Errorf("repeat save hashed differently: %q vs %q", rows[0].PayloadHash, rows[1].PayloadHash)
	}
}

func TestRunAnalyze_MissingFlags(t *testing.T) {
	isolateSettings(t)

	if err := runAnalyze([]string{}); err == nil || !strings.Contains(err.Error(), "-file") {
		t.Errorf("expected missing -file error, got %v", err)
	}
	payload := writePayloadFile(t, t.TempDir())
	if err := runAnalyze([]string{"-file", payload}); err == nil || !strings.Contains(err.Error(), "-from") {
		t.Errorf("expected missing -from error, got %v", err)
	}
	if err := runAnalyze([]string{"-file", payload, "-from", "2025-07-01", "-to", "July 2"}); err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Errorf("expected date format error, got %v", err)
	}
}

func TestRunRank_ReversedSpanFails(t *testing.T) {
	tmp := isolateSettings(t)
	payloadPath := writePayloadFile(t, tmp)

	err := runRank([]string{"-file", payloadPath, "-from", "2025-07-02", "-to", "2025-07-01"})
	if err == nil {
		t.Fatal("expected an error for a reversed span")
	}
}

func TestRunWhen_ValidExpression(t *testing.T) {
	isolateSettings(t)

	if err := runWhen([]string{"-date", "2025-07-25", "around", "6pm"}); err != nil {
		t.Fatalf("runWhen: %v", err)
	}
}

func TestRunWhen_NoMentionIsNotAnError(t *testing.T) {
	isolateSettings(t)

	if err := runWhen([]string{"-date", "2025-07-25", "nothing", "here"}); err != nil {
		t.Fatalf("runWhen without a time mention: %v", err)
	}
}

func TestRunWhen_RequiresExpression(t *testing.T) {
	isolateSettings(t)

	if err := runWhen([]string{"-date", "2025-07-25"}); err == nil {
		t.Fatal("expected a usage error for an empty expression")
	}
}

func TestRunWindow_FiltersEventsFile(t *testing.T) {
	tmp := isolateSettings(t)
	eventsPath := filepath.Join(tmp, "events.json")
	eventsJSON := `[
		{"event_name": "checkout", "raw_time": "2025-07-25T12:30:00Z"},
		{"event_name": "refund", "raw_time": "2025-07-25T14:00:00Z"},
		{"event_name": "broken", "raw_time": "not a time"}
	]`
	if err := os.WriteFile(eventsPath, []byte(eventsJSON), 0o644); err != nil {
		t.Fatalf("writing events fixture: %v", err)
	}

	args := []string{"-events", eventsPath, "-expr", "around 12:50", "-date", "2025-07-25"}
	if err := runWindow(args); err != nil {
		t.Fatalf("runWindow: %v", err)
	}
}

func TestRunWindow_NoMentionIsAnError(t *testing.T) {
	tmp := isolateSettings(t)
	eventsPath := filepath.Join(tmp, "events.json")
	if err := os.WriteFile(eventsPath, []byte(`[{"event_name": "a", "raw_time": 1753448700}]`), 0o644); err != nil {
		t.Fatalf("writing events fixture: %v", err)
	}

	err := runWindow([]string{"-events", eventsPath, "-expr", "no hint"})
	if err == nil {
		t.Fatal("expected an error when the expression has no time mention")
	}
}

func TestRunWindow_MissingEventsFlag(t *testing.T) {
	isolateSettings(t)

	if err := runWindow([]string{"-expr", "around noon"}); err == nil || !strings.Contains(err.Error(), "-events") {
		t.Errorf("expected missing -events error, got %v", err)
	}
}

// ==================== reports ====================

func TestRunReports_ListEmptyStore(t *testing.T) {
	isolateSettings(t)

	if err := runReports([]string{"list"}); err != nil {
		t.Fatalf("reports list on empty store: %v", err)
	}
}

func TestRunReports_ShowUnknownID(t *testing.T) {
	isolateSettings(t)

	err := runReports([]string{"show", "no-such-id"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestRunReports_RoundTrip(t *testing.T) {
	tmp := isolateSettings(t)
	payloadPath := writePayloadFile(t, tmp)

	if err := runAnalyze([]string{"-file", payloadPath, "-from", "2025-07-01", "-to", "2025-07-02", "-save"}); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: globalDBPath})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	rows, err := st.ListAnalyses(context.Background(), store.ListOpts{})
	st.Close()
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 saved run, got %d (err %v)", len(rows), err)
	}
	id := rows[0].ID

	if err := runReports([]string{"show", id}); err != nil {
		t.Fatalf("reports show: %v", err)
	}
	if err := runReports([]string{"stats"}); err != nil {
		t.Fatalf("reports stats: %v", err)
	}
	if err := runReports([]string{"trend"}); err != nil {
		t.Fatalf("reports trend: %v", err)
	}
	if err := runReports([]string{"rm", id}); err != nil {
		t.Fatalf("reports rm: %v", err)
	}
	if err := runReports([]string{"rm", id}); err == nil {
		t.Fatal("expected an error removing an already-removed run")
	}
}

func TestRunReports_UnknownSubcommand(t *testing.T) {
	isolateSettings(t)

	err := runReports([]string{"explode"})
	if err == nil || !strings.Contains(err.Error(), "unknown reports subcommand") {
		t.Errorf("expected unknown subcommand error, got %v", err)
	}
	if _, statErr := os.Stat(globalDBPath); !os.IsNotExist(statErr) {
		t.Error("a typo subcommand should not create the database")
	}
}
