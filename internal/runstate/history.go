package runstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
)

// DefaultHistoryLimit bounds Recent when no limit is given.
const DefaultHistoryLimit = 20

// HistoryEntry is one finished run as stored in refresh_runs.
type HistoryEntry struct {
	ID         string          `json:"id"`
	RecordedAt string          `json:"recorded_at"`
	Run        domain.RunState `json:"run"`
}

// HistoryRepository stores finished runs in SQLite.
type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewHistoryRepository creates a history repository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "refresh_runs").Logger(),
	}
}

// Record inserts a finished run and returns its row id.
func (r *HistoryRepository) Record(ctx context.Context, state domain.RunState) (string, error) {
	symbols, err := json.Marshal(nonNil(state.Symbols))
	if err != nil {
		return "", fmt.Errorf("failed to marshal symbols: %w", err)
	}
	failures, err := json.Marshal(nonNil(state.Failures))
	if err != nil {
		return "", fmt.Errorf("failed to marshal failures: %w", err)
	}

	id := uuid.New().String()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_runs
		(id, run_id, status, started_at, finished_at, symbols_processed, warnings, symbols, failures, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		state.RunID,
		string(state.Status),
		state.StartedAt,
		nullIfEmpty(state.FinishedAt),
		state.SymbolsProcessed,
		state.Warnings,
		string(symbols),
		string(failures),
		r.now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", state.RunID, err)
	}

	r.log.Debug().Str("id", id).Str("run_id", state.RunID).Msg("Recorded refresh run")
	return id, nil
}

// Recent returns the latest runs, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, status, started_at, finished_at, symbols_processed, warnings, symbols, failures, recorded_at
		FROM refresh_runs
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			entry      HistoryEntry
			status     string
			finishedAt sql.NullString
			symbols    string
			failures   string
			recordedAt int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Run.RunID,
			&status,
			&entry.Run.StartedAt,
			&finishedAt,
			&entry.Run.SymbolsProcessed,
			&entry.Run.Warnings,
			&symbols,
			&failures,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run history: %w", err)
		}

		entry.Run.Status = domain.RunStatus(status)
		entry.Run.Source = domain.RunSourceScheduled
		entry.Run.FinishedAt = finishedAt.String
		if err := json.Unmarshal([]byte(symbols), &entry.Run.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode symbols for %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(failures), &entry.Run.Failures); err != nil {
			return nil, fmt.Errorf("failed to decode failures for %s: %w", entry.ID, err)
		}
		entry.RecordedAt = domain.FormatTimestamp(time.Unix(recordedAt, 0))
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
