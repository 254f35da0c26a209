package registry

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/symrefresh/internal/database"
	"github.com/aristath/symrefresh/internal/domain"
)

// SQLiteStore keeps one row per symbol. Boosts and metadata are stored as
// msgpack blobs.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store over a migrated registry database.
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("store", "sqlite").Logger(),
	}
}

// boostRow is the msgpack shape of a stored boost.
type boostRow struct {
	Kind      string `msgpack:"kind"`
	Weight    int    `msgpack:"weight"`
	ExpiresAt int64  `msgpack:"expires_at"` // unix nanoseconds
	Source    string `msgpack:"source"`
}

const symbolColumns = `symbol, exchange, company_name, sector, market_cap, priority, status,
	last_seen, last_refreshed, last_attempt, failure_count, source, metadata, boosts`

const upsertSymbolSQL = `INSERT OR REPLACE INTO symbols (` + symbolColumns + `, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Load reads every row.
func (s *SQLiteStore) Load(ctx context.Context) (domain.Registry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+symbolColumns+` FROM symbols`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	reg := domain.Registry{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		reg.Put(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symbols: %w", err)
	}
	return reg, nil
}

// Save upserts every record in one transaction. Rows for symbols missing
// from reg are left untouched; records are never hard-deleted.
func (s *SQLiteStore) Save(ctx context.Context, reg domain.Registry) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSymbolSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, rec := range reg.Records() {
			args, err := recordArgs(rec, now)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", rec.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	s.log.Debug().Int("records", len(reg)).Msg("Registry saved")
	return nil
}

// Upsert writes a single record.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *domain.SymbolRecord) error {
	args, err := recordArgs(rec, time.Now().Unix())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertSymbolSQL, args...); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.Symbol, err)
	}
	return nil
}

// Patch applies mutations inside one transaction, reading each current row
// before writing its replacement.
func (s *SQLiteStore) Patch(ctx context.Context, mutations map[string]Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for symbol, mutate := range mutations {
			row := tx.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE symbol = ?`, symbol)
			current, err := scanRecord(row)
			if errors.Is(err, sql.ErrNoRows) {
				current, err = nil, nil
			}
			if err != nil {
				return err
			}

			next := mutate(current)
			if next == nil {
				continue
			}
			args, err := recordArgs(next, now)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, upsertSymbolSQL, args...); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", next.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to patch registry: %w", err)
	}
	return nil
}

// Get reads one record.
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (*domain.SymbolRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE symbol = ?`, symbol)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.SymbolRecord, error) {
	var (
		rec                                  domain.SymbolRecord
		companyName, sector, source          sql.NullString
		lastSeen, lastRefreshed, lastAttempt sql.NullString
		marketCap                            sql.NullFloat64
		status                               string
		metadataBlob, boostsBlob             []byte
	)

	err := row.Scan(
		&rec.Symbol, &rec.Exchange, &companyName, &sector, &marketCap, &rec.Priority, &status,
		&lastSeen, &lastRefreshed, &lastAttempt, &rec.FailureCount, &source, &metadataBlob, &boostsBlob,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan symbol row: %w", err)
	}

	rec.Status = domain.SymbolStatus(status)
	rec.CompanyName = nullString(companyName)
	rec.Sector = nullString(sector)
	rec.Source = nullString(source)
	rec.LastSeen = nullString(lastSeen)
	rec.LastRefreshed = nullString(lastRefreshed)
	rec.LastAttempt = nullString(lastAttempt)
	if marketCap.Valid {
		mc := marketCap.Float64
		rec.MarketCap = &mc
	}

	if rec.Metadata, err = decodeMetadata(metadataBlob); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.Symbol, err)
	}
	if rec.Boosts, err = decodeBoosts(boostsBlob); err != nil {
		return nil, fmt.Errorf("failed to decode boosts for %s: %w", rec.Symbol, err)
	}

	rec.Normalize()
	return &rec, nil
}

func recordArgs(rec *domain.SymbolRecord, updatedAt int64) ([]any, error) {
	metadata, err := msgpack.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata for %s: %w", rec.Symbol, err)
	}
	boosts, err := encodeBoosts(rec.Boosts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode boosts for %s: %w", rec.Symbol, err)
	}

	var marketCap any
	if rec.MarketCap != nil {
		marketCap = *rec.MarketCap
	}

	return []any{
		rec.Symbol, rec.Exchange, stringArg(rec.CompanyName), stringArg(rec.Sector), marketCap,
		rec.Priority, string(rec.Status), stringArg(rec.LastSeen), stringArg(rec.LastRefreshed),
		stringArg(rec.LastAttempt), rec.FailureCount, stringArg(rec.Source), metadata, boosts, updatedAt,
	}, nil
}

func encodeBoosts(boosts []domain.PriorityBoost) ([]byte, error) {
	rows := make([]boostRow, 0, len(boosts))
	for _, b := range boosts {
		rows = append(rows, boostRow{
			Kind:      b.Kind,
			Weight:    b.Weight,
			ExpiresAt: b.ExpiresAt.UnixNano(),
			Source:    string(b.Source),
		})
	}
	return msgpack.Marshal(rows)
}

func decodeBoosts(blob []byte) ([]domain.PriorityBoost, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var rows []boostRow
	if err := msgpack.Unmarshal(blob, &rows); err != nil {
		return nil, err
	}
	boosts := make([]domain.PriorityBoost, 0, len(rows))
	for _, r := range rows {
		boosts = append(boosts, domain.PriorityBoost{
			Kind:      r.Kind,
			Weight:    r.Weight,
			ExpiresAt: time.Unix(0, r.ExpiresAt).UTC(),
			Source:    domain.BoostSource(r.Source),
		})
	}
	return boosts, nil
}

// decodeMetadata uses loose interface decoding so integers come back as
// int64/uint64 rather than the narrowest msgpack width.
func decodeMetadata(blob []byte) (map[string]any, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.UseLooseInterfaceDecoding(true)

	var metadata map[string]any
	if err := dec.Decode(&metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
