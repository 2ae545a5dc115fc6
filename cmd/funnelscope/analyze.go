package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/patternpandits/funnelscope/internal/config"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/store"
)

// pipelineFlags are the arguments analyze and rank share.
type pipelineFlags struct {
	file      string
	from      string
	to        string
	top       int
	platforms string
}

func addPipelineFlags(fs *flag.FlagSet) *pipelineFlags {
	pf := &pipelineFlags{}
	fs.StringVar(&pf.file, "file", "", "payload JSON file, or - for stdin")
	fs.StringVar(&pf.from, "from", "", "span start, YYYY-MM-DD")
	fs.StringVar(&pf.to, "to", "", "span end, YYYY-MM-DD (inclusive)")
	fs.IntVar(&pf.top, "top", 0, "how many worst transitions to rank")
	fs.StringVar(&pf.platforms, "platforms", "", "comma-separated extra platform names")
	return pf
}

// execute runs the funnel pipeline for the flag values and returns the
// analysis plus the raw payload bytes for hashing.
func (pf *pipelineFlags) execute() (*funnel.Analysis, []byte, error) {
	raw, err := readPayload(pf.file)
	if err != nil {
		return nil, nil, err
	}
	payload, err := funnel.ParsePayload(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload: %w", err)
	}
	start, end, err := parseSpan(pf.from, pf.to)
	if err != nil {
		return nil, nil, err
	}

	cliTop := ""
	if pf.top > 0 {
		cliTop = strconv.Itoa(pf.top)
	}
	resolved, err := resolveSettings(config.ResolveOptions{
		CLITopN:      cliTop,
		CLIPlatforms: pf.platforms,
	})
	if err != nil {
		return nil, nil, err
	}

	norm := funnel.NewNormalizer(resolved.ExtraPlatforms()...)
	analysis, err := norm.Analyze(payload, funnel.AnalyzeOptions{
		Start: start,
		End:   end,
		TopN:  resolved.EffectiveTopN(funnel.DefaultTopN),
	})
	if err != nil {
		return nil, nil, err
	}
	return analysis, raw, nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	pf := addPipelineFlags(fs)
	save := fs.Bool("save", false, "persist the run in the analysis store")
	asJSON := fs.Bool("json", false, "emit raw analysis JSON instead of the text report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("usage: funnelscope analyze -file <path> -from <date> -to <date> [-top n] [-save] [-json]")
	}

	analysis, raw, err := pf.execute()
	if err != nil {
		return err
	}

	rendered := report.Render(analysis)
	if *asJSON {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding analysis: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(rendered)
	}

	if *save {
		return saveAnalysis(analysis, raw, rendered)
	}
	return nil
}

func runRank(args []string) error {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	pf := addPipelineFlags(fs)
	asJSON := fs.Bool("json", false, "emit ranked transitions as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("usage: funnelscope rank -file <path> -from <date> -to <date> [-top n] [-json]")
	}

	analysis, _, err := pf.execute()
	if err != nil {
		return err
	}

	if *asJSON {
		data, err := json.MarshalIndent(analysis.Ranked, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding ranked transitions: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	if len(analysis.Ranked) == 0 {
		fmt.Println("No step transitions: the funnel has fewer than two steps.")
		return nil
	}
	for i, tr := range analysis.Ranked {
		fmt.Printf("%d. %s -> %s: %d users lost\n", i+1, tr.FromLabel, tr.ToLabel, tr.UsersLostTotal)
	}
	return nil
}

// saveAnalysis persists a run, noting any earlier run of the same
// payload first so repeated saves are visible.
func saveAnalysis(analysis *funnel.Analysis, raw []byte, rendered string) error {
	resolved, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	st, _, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	hash := funnel.HashPayload(raw)
	if prior, err := st.FindByPayloadHash(ctx, hash); err == nil {
		fmt.Printf("\nNote: this payload was analyzed before as %s (%s)\n",
			prior.ID, prior.CreatedAt.Format("2006-01-02 15:04"))
	}

	resultJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	row := &store.Analysis{
		SpanStart:       analysis.SpanStart,
		SpanEnd:         analysis.SpanEnd,
		PayloadHash:     hash,
		Variant:         string(analysis.Variant),
		SnapshotCount:   len(analysis.Snapshots),
		TransitionCount: len(analysis.Transitions),
		UsersLostTotal:  analysis.UsersLostTotal,
		Report:          rendered,
		ResultJSON:      string(resultJSON),
	}
	if err := st.SaveAnalysis(ctx, row); err != nil {
		return fmt.Errorf("saving analysis: %w", err)
	}
	fmt.Printf("Saved analysis %s\n", row.ID)
	return nil
}

func readPayload(path string) ([]byte, error) {
	switch strings.TrimSpace(path) {
	case "":
		return nil, fmt.Errorf("missing -file (payload JSON path, or - for stdin)")
	case "-":
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return raw, nil
	default:
		raw, err := os.ReadFile(expandUserPath(path))
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return raw, nil
	}
}

func parseSpan(from, to string) (time.Time, time.Time, error) {
	start, err := parseDayFlag("from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDayFlag("to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseDayFlag(name, value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing -%s (YYYY-MM-DD)", name)
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("-%s: want YYYY-MM-DD, got %q", name, value)
	}
	return t.UTC(), nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
