package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patternpandits/funnelscope/internal/api"
	"github.com/patternpandits/funnelscope/internal/config"
	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/mcp"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

const defaultListenAddr = ":8844"

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (default from config, else "+defaultListenAddr+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveSettings(config.ResolveOptions{CLIListenAddr: *addr})
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if globalVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, dbPath, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	app := api.New(api.Config{
		Store:     st,
		Version:   version,
		TopN:      resolved.EffectiveTopN(funnel.DefaultTopN),
		HalfWidth: resolved.EffectiveHalfWidth(timeparse.DefaultHalfWidth),
		Platforms: resolved.ExtraPlatforms(),
		CacheTTL:  resolved.EffectiveCacheTTL(api.DefaultCacheTTL),
		Logger:    logger,
	})

	listenAddr := resolved.EffectiveListenAddr(defaultListenAddr)

	// Graceful shutdown: serve in the background, wait for a signal,
	// then drain with a bounded timeout.
	go func() {
		if err := app.Listen(listenAddr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()
	logger.Info("funnelscope serving", "addr", listenAddr, "db", dbPath)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: funnelscope mcp")
	}

	resolved, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	st, dbPath, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:     st,
		DBPath:    dbPath,
		Version:   version,
		TopN:      resolved.EffectiveTopN(funnel.DefaultTopN),
		HalfWidth: resolved.EffectiveHalfWidth(timeparse.DefaultHalfWidth),
		Platforms: resolved.ExtraPlatforms(),
	})
	return mcp.Serve(srv)
}
