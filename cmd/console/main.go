package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/shelflens/backend/config"
	"github.com/shelflens/backend/internal/delivery/console"
	"github.com/shelflens/backend/internal/infrastructure/gateway"
	"github.com/shelflens/backend/internal/logger"
	"github.com/shelflens/backend/internal/usecase"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	flags := pflag.NewFlagSet("shelflens-console", pflag.ContinueOnError)
	format := flags.StringP("format", "f", "table", "output format: table, json or yaml")
	// Named after their config keys so viper can bind them
	flags.String("gateway.provider", "openai", "inference provider: openai or ollama")
	flags.String("gateway.model", "", "vision model name")
	flags.String("gateway.base_url", "", "API base URL")
	flags.String("gateway.mode", "responses", "openai call pattern: responses or chat")
	flags.Bool("gateway.strict_json", false, "ask the model for a JSON object response")
	flags.Bool("normalizer.strict_records", false, "reject product records that fail validation")
	flags.String("log.level", "", "log level (default warn)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [image ...]\n\nWith image paths, analyzes them once and exits.\nWithout, starts an interactive prompt.\n\n", os.Args[0])
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	outputFormat, err := console.ParseFormat(*format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Keep the prompt quiet unless a level was asked for
	level := cfg.Log.Level
	if !flags.Changed("log.level") && os.Getenv("SHELFLENS_LOG_LEVEL") == "" {
		level = "warn"
	}
	logger.NewWithWriter(logger.Config{Env: "development", Level: level}, os.Stderr)

	inference, err := gateway.New(cfg.Gateway, false)
	if err != nil {
		return err
	}

	service := usecase.NewShelfAnalysisService(inference, usecase.ShelfAnalysisServiceConfig{
		StrictRecords: cfg.Normalizer.StrictRecords,
	})
	session := console.NewSession(service, outputFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if paths := flags.Args(); len(paths) > 0 {
		return session.RunOnce(ctx, paths)
	}
	return session.Interactive(ctx)
}
