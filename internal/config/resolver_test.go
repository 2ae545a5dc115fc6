package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `db_path: ~/.funnelscope/from-config.db
server:
  listen_addr: :7070
analysis:
  top_n: 5
  platforms:
    - desktop
    - tv
window:
  half_width_minutes: 45
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FUNNELSCOPE_DB", "~/from-env.db")
	t.Setenv("FUNNELSCOPE_TOP_N", "7")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: cfgPath,
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected DB path source cli, got %s", resolved.DBPath.Source)
	}
	if resolved.TopN.Source != SourceEnv || resolved.TopN.Value != "7" {
		t.Fatalf("expected top_n from env, got %s=%q", resolved.TopN.Source, resolved.TopN.Value)
	}
	if resolved.HalfWidthMinutes.Source != SourceConfig || resolved.HalfWidthMinutes.Value != "45" {
		t.Fatalf("expected half width from config, got %s=%q",
			resolved.HalfWidthMinutes.Source, resolved.HalfWidthMinutes.Value)
	}
	if resolved.ListenAddr.Value != ":7070" {
		t.Fatalf("expected listen addr from config, got %q", resolved.ListenAddr.Value)
	}
}

func TestResolveConfig_MissingFileIsNotAnError(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Value != "" {
		t.Fatalf("expected empty db path, got %q", resolved.DBPath.Value)
	}
	if resolved.TopN.Source != SourceUnknown {
		t.Fatalf("expected unknown top_n source, got %s", resolved.TopN.Source)
	}
}

func TestResolveConfig_ExpandsUserDBPath(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		CLIDBPath:  "~/funnelscope.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if strings.HasPrefix(resolved.DBPath.Value, "~") {
		t.Fatalf("expected expanded path, got %q", resolved.DBPath.Value)
	}
}

func TestExtraPlatforms_FromConfigList(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `analysis:
  platforms:
    - desktop
    - " tv "
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	got := resolved.ExtraPlatforms()
	if len(got) != 2 || got[0] != "desktop" || got[1] != "tv" {
		t.Fatalf("unexpected platforms: %v", got)
	}
}

func TestExtraPlatforms_FromEnvCommaList(t *testing.T) {
	t.Setenv("FUNNELSCOPE_PLATFORMS", "desktop, smarttv,")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	got := resolved.ExtraPlatforms()
	if len(got) != 2 || got[0] != "desktop" || got[1] != "smarttv" {
		t.Fatalf("unexpected platforms: %v", got)
	}
	if resolved.Platforms.From != "FUNNELSCOPE_PLATFORMS" {
		t.Fatalf("expected env provenance, got %q", resolved.Platforms.From)
	}
}

func TestEffectiveAccessors_Fallbacks(t *testing.T) {
	var resolved ResolvedConfig

	if got := resolved.EffectiveTopN(3); got != 3 {
		t.Fatalf("EffectiveTopN fallback = %d", got)
	}
	if got := resolved.EffectiveHalfWidth(30 * time.Minute); got != 30*time.Minute {
		t.Fatalf("EffectiveHalfWidth fallback = %v", got)
	}
	if got := resolved.EffectiveDBPath("default.db"); got != "default.db" {
		t.Fatalf("EffectiveDBPath fallback = %q", got)
	}
	if got := resolved.EffectiveListenAddr(":8080"); got != ":8080" {
		t.Fatalf("EffectiveListenAddr fallback = %q", got)
	}
	if got := resolved.EffectiveCacheTTL(5 * time.Minute); got != 5*time.Minute {
		t.Fatalf("EffectiveCacheTTL fallback = %v", got)
	}
}

func TestEffectiveAccessors_ParseResolvedValues(t *testing.T) {
	resolved := ResolvedConfig{
		TopN:             ResolvedValue{Value: "5", Source: SourceConfig},
		HalfWidthMinutes: ResolvedValue{Value: "45", Source: SourceEnv},
		CacheTTLMinutes:  ResolvedValue{Value: "10", Source: SourceConfig},
	}

	if got := resolved.EffectiveTopN(3); got != 5 {
		t.Fatalf("EffectiveTopN = %d, want 5", got)
	}
	if got := resolved.EffectiveHalfWidth(30 * time.Minute); got != 45*time.Minute {
		t.Fatalf("EffectiveHalfWidth = %v, want 45m", got)
	}
	if got := resolved.EffectiveCacheTTL(5 * time.Minute); got != 10*time.Minute {
		t.Fatalf("EffectiveCacheTTL = %v, want 10m", got)
	}
}

func TestEffectiveAccessors_RejectGarbage(t *testing.T) {
	resolved := ResolvedConfig{
		TopN:             ResolvedValue{Value: "many", Source: SourceEnv},
		HalfWidthMinutes: ResolvedValue{Value: "-10", Source: SourceEnv},
	}

	if got := resolved.EffectiveTopN(3); got != 3 {
		t.Fatalf("EffectiveTopN on garbage = %d, want fallback 3", got)
	}
	if got := resolved.EffectiveHalfWidth(30 * time.Minute); got != 30*time.Minute {
		t.Fatalf("EffectiveHalfWidth on negative = %v, want fallback 30m", got)
	}
}
