package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath    string
	CLIDBPath     string
	CLIListenAddr string
	CLITopN       string
	CLIHalfWidth  string
	CLIPlatforms  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath     ResolvedValue `json:"db_path"`
	ListenAddr ResolvedValue `json:"listen_addr"`

	TopN             ResolvedValue `json:"top_n"`
	HalfWidthMinutes ResolvedValue `json:"half_width_minutes"`
	Platforms        ResolvedValue `json:"platforms"`
	CacheTTLMinutes  ResolvedValue `json:"cache_ttl_minutes"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Server struct {
		ListenAddr      string `yaml:"listen_addr"`
		CacheTTLMinutes string `yaml:"cache_ttl_minutes"`
	} `yaml:"server"`
	Analysis struct {
		TopN      string   `yaml:"top_n"`
		Platforms []string `yaml:"platforms"`
	} `yaml:"analysis"`
	Window struct {
		HalfWidthMinutes string `yaml:"half_width_minutes"`
	} `yaml:"window"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".funnelscope", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.ListenAddr, cfg.Server.ListenAddr, SourceConfig, path)
		apply(&out.CacheTTLMinutes, cfg.Server.CacheTTLMinutes, SourceConfig, path)
		apply(&out.TopN, cfg.Analysis.TopN, SourceConfig, path)
		apply(&out.Platforms, strings.Join(cfg.Analysis.Platforms, ","), SourceConfig, path)
		apply(&out.HalfWidthMinutes, cfg.Window.HalfWidthMinutes, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "FUNNELSCOPE_DB")
	applyEnv(&out.DBPath, "FUNNELSCOPE_DB_PATH")

	applyEnv(&out.ListenAddr, "FUNNELSCOPE_ADDR")
	applyEnv(&out.CacheTTLMinutes, "FUNNELSCOPE_CACHE_TTL")
	applyEnv(&out.TopN, "FUNNELSCOPE_TOP_N")
	applyEnv(&out.Platforms, "FUNNELSCOPE_PLATFORMS")
	applyEnv(&out.HalfWidthMinutes, "FUNNELSCOPE_HALF_WIDTH")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.ListenAddr, opts.CLIListenAddr, SourceCLI, "--addr")
	apply(&out.TopN, opts.CLITopN, SourceCLI, "--top")
	apply(&out.HalfWidthMinutes, opts.CLIHalfWidth, SourceCLI, "--half-width")
	apply(&out.Platforms, opts.CLIPlatforms, SourceCLI, "--platforms")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// EffectiveDBPath returns the resolved database path or the fallback.
func (r ResolvedConfig) EffectiveDBPath(fallback string) string {
	if strings.TrimSpace(r.DBPath.Value) != "" {
		return r.DBPath.Value
	}
	return fallback
}

// EffectiveListenAddr returns the resolved listen address or the fallback.
func (r ResolvedConfig) EffectiveListenAddr(fallback string) string {
	if strings.TrimSpace(r.ListenAddr.Value) != "" {
		return r.ListenAddr.Value
	}
	return fallback
}

// EffectiveTopN returns the resolved drop-off ranking size. Unparsable
// or non-positive values fall back.
func (r ResolvedConfig) EffectiveTopN(fallback int) int {
	n, err := cast.ToIntE(strings.TrimSpace(r.TopN.Value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// EffectiveHalfWidth returns the resolved window half-width. The
// setting is in whole minutes.
func (r ResolvedConfig) EffectiveHalfWidth(fallback time.Duration) time.Duration {
	n, err := cast.ToIntE(strings.TrimSpace(r.HalfWidthMinutes.Value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

// EffectiveCacheTTL returns the resolved analyze-cache TTL. The
// setting is in whole minutes.
func (r ResolvedConfig) EffectiveCacheTTL(fallback time.Duration) time.Duration {
	n, err := cast.ToIntE(strings.TrimSpace(r.CacheTTLMinutes.Value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

// ExtraPlatforms returns the configured platform vocabulary additions.
func (r ResolvedConfig) ExtraPlatforms() []string {
	var out []string
	for _, p := range strings.Split(r.Platforms.Value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
