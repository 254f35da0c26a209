// Package main is the health gate for scheduled refresh workflows. It asks
// the ingestion pipeline for its health and reports whether a refresh should
// proceed as refresh_ready/reason lines in $GITHUB_OUTPUT. It always exits 0;
// readiness is an output, not an exit code.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/pkg/logger"
)

const probeTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
	}).With().Str("component", "health-check").Logger()

	baseURL := strings.TrimRight(getEnv("INGEST_BASE_URL", ingest.DefaultBaseURL), "/")
	client := ingest.NewClient(baseURL, os.Getenv("ADMIN_API_KEY"), ingest.DefaultRetryPolicy(), log)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	ready, reason := check(ctx, client, log)

	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		if err := writeOutputs(path, ready, reason); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to write workflow outputs")
		}
	}
}

type healthProber interface {
	Health(ctx context.Context) (*ingest.HealthReport, error)
}

func check(ctx context.Context, client healthProber, log zerolog.Logger) (bool, string) {
	report, err := client.Health(ctx)
	ready, reason := ingest.Readiness(report, err)
	if err != nil {
		log.Warn().Err(err).Str("reason", reason).Msg("Failed to evaluate health endpoint")
		return ready, reason
	}

	event := log.Info().Str("status", report.Status)
	if report.Symbols.Stale != nil {
		event = event.Int("stale", *report.Symbols.Stale)
	}
	if report.Warnings.Total != nil {
		event = event.Int("warnings", *report.Warnings.Total)
	}
	event.Msg("Health snapshot")

	if !ready {
		log.Warn().Str("status", report.Status).Msg("Skipping scheduled refresh: pipeline status is not healthy or degraded")
	} else {
		log.Info().Msg("Pipeline healthy enough for refresh")
	}
	return ready, reason
}

// writeOutputs appends the readiness lines to the workflow output file.
func writeOutputs(path string, ready bool, reason string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	reason = strings.ReplaceAll(reason, "\n", " ")
	if _, err := fmt.Fprintf(file, "refresh_ready=%t\nreason=%s\n", ready, reason); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
