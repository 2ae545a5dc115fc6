package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patternpandits/funnelscope/internal/config"
	"github.com/patternpandits/funnelscope/internal/events"
	"github.com/patternpandits/funnelscope/internal/report"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

func runWhen(args []string) error {
	fs := flag.NewFlagSet("when", flag.ContinueOnError)
	date := fs.String("date", "", "date the expression resolves against, YYYY-MM-DD (default: today UTC)")
	half := fs.Int("half", 0, "window half-width in minutes")
	asJSON := fs.Bool("json", false, "emit the window as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	expression := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if expression == "" {
		return fmt.Errorf(`usage: funnelscope when "<expression>" [-date YYYY-MM-DD] [-half minutes] [-json]`)
	}

	day, halfWidth, err := windowSettings(*date, *half)
	if err != nil {
		return err
	}

	win, err := timeparse.Parse(expression, day, halfWidth)
	if errors.Is(err, timeparse.ErrNoTimeMention) {
		if *asJSON {
			fmt.Println(`{"matched": false}`)
		} else {
			fmt.Printf("No time mention found in %q.\n", expression)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if *asJSON {
		data, err := json.MarshalIndent(win, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding window: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(report.RenderParse(win))
	return nil
}

func runWindow(args []string) error {
	fs := flag.NewFlagSet("window", flag.ContinueOnError)
	eventsPath := fs.String("events", "", "events JSON file")
	expr := fs.String("expr", "", `time expression, e.g. "around 12:50"`)
	date := fs.String("date", "", "date the expression resolves against, YYYY-MM-DD (default: today UTC)")
	half := fs.Int("half", 0, "window half-width in minutes")
	asJSON := fs.Bool("json", false, "emit matched and unresolved events as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf(`usage: funnelscope window -events <path> -expr "<expression>" [-date YYYY-MM-DD] [-half minutes] [-json]`)
	}
	if strings.TrimSpace(*eventsPath) == "" {
		return fmt.Errorf("missing -events (events JSON path)")
	}
	if strings.TrimSpace(*expr) == "" {
		return fmt.Errorf("missing -expr (time expression)")
	}

	evs, err := events.LoadEvents(expandUserPath(*eventsPath))
	if err != nil {
		return err
	}

	day, halfWidth, err := windowSettings(*date, *half)
	if err != nil {
		return err
	}
	win, err := timeparse.Parse(*expr, day, halfWidth)
	if err != nil {
		return err
	}

	matched, unresolved := events.FilterByWindow(evs, win)
	if *asJSON {
		out := map[string]any{
			"window":     win,
			"matched":    matched,
			"unresolved": unresolved,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding window result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(report.RenderWindow(win, matched, unresolved))
	return nil
}

// windowSettings resolves the default date and half-width shared by
// when and window.
func windowSettings(date string, halfMinutes int) (time.Time, time.Duration, error) {
	day := time.Now().UTC()
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDayFlag("date", date)
		if err != nil {
			return time.Time{}, 0, err
		}
		day = parsed
	}

	cliHalf := ""
	if halfMinutes > 0 {
		cliHalf = strconv.Itoa(halfMinutes)
	}
	resolved, err := resolveSettings(config.ResolveOptions{CLIHalfWidth: cliHalf})
	if err != nil {
		return time.Time{}, 0, err
	}
	return day, resolved.EffectiveHalfWidth(timeparse.DefaultHalfWidth), nil
}
