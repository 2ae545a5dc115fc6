package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/patternpandits/funnelscope/internal/config"
	"github.com/patternpandits/funnelscope/internal/store"
)

const version = "0.1.0"

// Global flags may appear anywhere in argv and are stripped before
// the subcommand dispatches.
var (
	globalDBPath     string
	globalConfigPath string
	globalVerbose    bool
)

func main() {
	// Entries from a local .env file join normal env resolution; real
	// environment variables win over file entries.
	_ = godotenv.Load()

	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch cmd := args[0]; cmd {
	case "analyze":
		err = runAnalyze(args[1:])
	case "rank":
		err = runRank(args[1:])
	case "when":
		err = runWhen(args[1:])
	case "window":
		err = runWindow(args[1:])
	case "reports":
		err = runReports(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("funnelscope %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags strips --db, --config, and --verbose from argv so
// they work before or after the subcommand.
func parseGlobalFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--db" && i+1 < len(args):
			globalDBPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--db="):
			globalDBPath = strings.TrimPrefix(arg, "--db=")
		case arg == "--config" && i+1 < len(args):
			globalConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			globalConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--verbose":
			globalVerbose = true
		default:
			out = append(out, arg)
		}
	}
	return out
}

// resolveSettings layers config file, env, and CLI values for one
// command. Empty override fields leave the lower layers in charge.
func resolveSettings(o config.ResolveOptions) (config.ResolvedConfig, error) {
	if o.ConfigPath == "" {
		o.ConfigPath = globalConfigPath
	}
	if o.CLIDBPath == "" {
		o.CLIDBPath = globalDBPath
	}
	return config.ResolveConfig(o)
}

// openStore opens the analysis store at the resolved path and returns
// the path alongside it for display.
func openStore(resolved config.ResolvedConfig) (store.Store, string, error) {
	path := resolved.EffectiveDBPath(store.DefaultDBPath)
	st, err := store.NewStore(store.StoreConfig{DBPath: path})
	if err != nil {
		return nil, "", fmt.Errorf("opening store: %w", err)
	}
	return st, path, nil
}

func printUsage() {
	fmt.Printf(`funnelscope %s — Funnel drop-off analytics for messy export payloads

Usage:
  funnelscope <command> [arguments]

Commands:
  analyze     Analyze a funnel export over a date span
  rank        Print only the worst drop-off transitions
  when        Resolve a natural-language time expression into a window
  window      Filter an event export by a time expression
  reports     Work with saved analyses (list, show, rm, stats, trend, vacuum)
  serve       Run the HTTP API
  mcp         Run the MCP server on stdio
  version     Print version

Analyze Flags:
  -file <path>        Payload JSON file, or - for stdin
  -from, -to <date>   Span bounds, YYYY-MM-DD (inclusive)
  -top <n>            How many worst transitions to rank
  -save               Persist the run in the analysis store
  -json               Emit raw JSON instead of the text report

Global Flags:
  --db <path>         Analysis store path (env: FUNNELSCOPE_DB)
  --config <path>     Config file (default: ~/.funnelscope/config.yaml)
  --verbose           Debug-level logging where it applies
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
