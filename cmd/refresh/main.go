// Package main is the one-shot refresh runner. It performs one scheduled
// refresh pass (or refreshes the symbols given with --symbol) and exits.
//
// Usage:
//
//	refresh [--symbol TCS --symbol INFY]
//	refresh discover [--seed data/seed/symbols.json]
//
// Exit codes: 0 on success, 1 when the run aborts or fails, 2 on
// configuration errors (nothing is written in that case).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/di"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/pkg/logger"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// symbolList collects repeated --symbol flags.
type symbolList []string

func (s *symbolList) String() string {
	return strings.Join(*s, ",")
}

func (s *symbolList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	*s = append(*s, value)
	return nil
}

type options struct {
	command string
	symbols []string
	seed    string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	opts := options{command: "run"}
	if len(args) > 0 && args[0] == "discover" {
		opts.command = "discover"
		args = args[1:]
	}

	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch opts.command {
	case "discover":
		fs.StringVar(&opts.seed, "seed", "", "Path to a JSON seed listing (defaults to DISCOVERY_SEED_PATH)")
	default:
		var symbols symbolList
		fs.Var(&symbols, "symbol", "Symbol to refresh explicitly (repeatable)")
		if err := fs.Parse(args); err != nil {
			return opts, err
		}
		opts.symbols = symbols
		return opts, checkExtra(fs)
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, checkExtra(fs)
}

func checkExtra(fs *flag.FlagSet) error {
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return exitConfig
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if opts.command == "run" {
		if err := cfg.ValidateIngest(); err != nil {
			log.Error().Err(err).Msg("Refresh run aborted")
			return exitConfig
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to wire dependencies")
		return exitFailed
	}
	defer container.Close()

	if opts.command == "discover" {
		return discover(ctx, container, opts.seed, log)
	}
	return refresh(ctx, container, opts.symbols, log)
}

func refresh(ctx context.Context, container *di.Container, symbols []string, log zerolog.Logger) int {
	state, err := container.Orchestrator.Run(ctx, symbols)
	if err != nil {
		if errors.Is(err, ingest.ErrAuth) {
			log.Error().Err(err).Str("run_id", state.RunID).Msg("Refresh run aborted: ingestion rejected credentials")
		} else {
			log.Error().Err(err).Str("run_id", state.RunID).Msg("Refresh run failed")
		}
		return exitFailed
	}

	log.Info().
		Str("run_id", state.RunID).
		Str("status", string(state.Status)).
		Int("processed", state.SymbolsProcessed).
		Int("failures", len(state.Failures)).
		Int("warnings", state.Warnings).
		Msg("Refresh run finished")
	return exitOK
}

func discover(ctx context.Context, container *di.Container, seed string, log zerolog.Logger) int {
	sources := container.DiscoverySources
	if seed != "" {
		sources = []universe.Source{universe.NewFileSource("seed", seed)}
	}

	summary, err := container.Discovery.Discover(ctx, sources)
	if err != nil {
		log.Error().Err(err).Msg("Discovery failed")
		return exitFailed
	}

	log.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("suspended", summary.Suspended).
		Int("skipped", summary.Skipped).
		Int("total", summary.Total).
		Msg("Discovery finished")
	return exitOK
}
