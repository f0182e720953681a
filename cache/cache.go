// Package cache implements the Response Cache (C4): a durable,
// content-addressed store for model responses keyed by a SHA-256 hash
// of their request payload, so identical calls never pay twice and
// survive process restarts.
//
// The connection string and migration-on-open pattern are grounded on
// Hardonian-Reach's integration-hub storage.Open (modernc.org/sqlite,
// WAL mode, busy_timeout). The entry shape is adapted from the Alfred
// gateway's caching.CacheEntry, simplified from semantic
// (embedding-similarity) matching to exact content-address matching,
// since spec §4.4 wants a deterministic cache, not a fuzzy one. The
// ledger table and its aggregation in Stats are grounded verbatim on
// openai_cache.py's cost_tracking table and get_stats (append-only
// per-call rows, GROUP BY model, conditional from_cache counts). The
// prices key-value table backs pricing.Oracle's persisted price and
// exchange-rate records (§4.1).
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alfred-dev/incentive-core/concurrency"
)

// Entry is a cached model response.
type Entry struct {
	Key          string
	Model        string
	Response     []byte
	InputTokens  int
	OutputTokens int
	CostEUR      float64
	CreatedAt    time.Time
}

// LedgerRow is one append-only cost-ledger record for a single model
// call, written once per call regardless of whether it hit the cache.
// Mirrors openai_cache.py's cost_tracking row shape.
type LedgerRow struct {
	Date         string // YYYY-MM-DD, UTC; defaulted from CreatedAt if empty
	Model        string
	Operation    string // "chat" or "embed"
	InputTokens  int
	OutputTokens int
	CostEUR      float64
	FromCache    bool
	CreatedAt    time.Time
}

// ModelStats is one model's aggregated cost and call count for a
// given date.
type ModelStats struct {
	CostEUR float64
	Count   int64
}

// DailyStats aggregates ledger activity for one UTC date: totals,
// per-model breakdown, and cache hit/miss counts (spec §4.4).
type DailyStats struct {
	Date         string
	Requests     int64
	CacheHits    int64
	CacheMisses  int64
	TotalCostEUR float64
	TokensIn     int64
	TokensOut    int64
	ByModel      map[string]ModelStats
}

// Store is the durable Response Cache.
type Store struct {
	db   *sql.DB
	keys *concurrency.KeyedMutex
}

// Key returns the content-addressed cache key for a model call: the
// hex SHA-256 digest of the model name and request payload.
func Key(model string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Open opens (creating if needed) the SQLite-backed cache at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}

	s := &Store{db: db, keys: concurrency.NewKeyedMutex()}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS response_cache (
	key           TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	response      BLOB NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_eur      REAL NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	date          TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_eur      REAL NOT NULL,
	from_cache    INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
CREATE TABLE IF NOT EXISTS prices (
	key        TEXT PRIMARY KEY,
	value_json BLOB NOT NULL,
	cached_at  TEXT NOT NULL
);`)
	return err
}

// ErrMiss indicates the key is not present in the cache.
var ErrMiss = errors.New("cache: miss")

// Get looks up a cached entry by key.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, model, response, input_tokens, output_tokens, cost_eur, created_at
		 FROM response_cache WHERE key = ?`, key)

	var e Entry
	var createdAt string
	if err := row.Scan(&e.Key, &e.Model, &e.Response, &e.InputTokens, &e.OutputTokens, &e.CostEUR, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: get: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

// WithLock serializes concurrent writers for the same key so a cache
// miss never causes two in-flight calls to the same model for the
// same payload; fn should check the cache again after acquiring the
// lock (another writer may have just populated it).
func (s *Store) WithLock(key string, fn func() error) error {
	unlock := s.keys.Lock(key)
	defer unlock()
	return fn()
}

// Put stores a response, insert-or-replace by key. Callers that need
// per-call cost accounting record a LedgerRow alongside this via
// RecordLedger — Put itself only persists the content-addressed
// response.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO response_cache (key, model, response, input_tokens, output_tokens, cost_eur, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	response = excluded.response,
	input_tokens = excluded.input_tokens,
	output_tokens = excluded.output_tokens,
	cost_eur = excluded.cost_eur,
	created_at = excluded.created_at`,
		e.Key, e.Model, e.Response, e.InputTokens, e.OutputTokens, e.CostEUR, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// RecordLedger appends one cost-ledger row. Every chat or embed call
// — cache hit or miss — writes exactly one row; a hit carries
// CostEUR=0 and FromCache=true (spec §4.6 invariant #1).
func (s *Store) RecordLedger(ctx context.Context, row LedgerRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Date == "" {
		row.Date = row.CreatedAt.Format("2006-01-02")
	}
	fromCache := 0
	if row.FromCache {
		fromCache = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger (date, model, operation, input_tokens, output_tokens, cost_eur, from_cache, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Date, row.Model, row.Operation, row.InputTokens, row.OutputTokens, row.CostEUR, fromCache,
		row.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache: record ledger: %w", err)
	}
	return nil
}

// Stats returns the aggregate ledger stats for date (UTC, YYYY-MM-DD),
// including a per-model cost/count breakdown. A nil date means today.
func (s *Store) Stats(ctx context.Context, date *time.Time) (DailyStats, error) {
	d := time.Now().UTC()
	if date != nil {
		d = *date
	}
	dateStr := d.Format("2006-01-02")

	st := DailyStats{Date: dateStr, ByModel: make(map[string]ModelStats)}

	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(cost_eur), 0),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0),
	COALESCE(SUM(CASE WHEN from_cache = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN from_cache = 0 THEN 1 ELSE 0 END), 0)
FROM ledger WHERE date = ?`, dateStr)

	if err := row.Scan(&st.Requests, &st.TotalCostEUR, &st.TokensIn, &st.TokensOut, &st.CacheHits, &st.CacheMisses); err != nil {
		return DailyStats{}, fmt.Errorf("cache: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT model, COALESCE(SUM(cost_eur), 0), COUNT(*)
FROM ledger WHERE date = ? GROUP BY model`, dateStr)
	if err != nil {
		return DailyStats{}, fmt.Errorf("cache: stats by model: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var ms ModelStats
		if err := rows.Scan(&model, &ms.CostEUR, &ms.Count); err != nil {
			return DailyStats{}, fmt.Errorf("cache: stats by model scan: %w", err)
		}
		st.ByModel[model] = ms
	}
	if err := rows.Err(); err != nil {
		return DailyStats{}, fmt.Errorf("cache: stats by model rows: %w", err)
	}

	return st, nil
}

// ErrPriceRecordMiss indicates no persisted price/rate record exists
// for the given key.
var ErrPriceRecordMiss = errors.New("cache: price record miss")

// GetPriceRecord looks up a persisted price or exchange-rate record by
// key (e.g. "rate:eur_usd" or "price:gpt-4o-mini"). Satisfies
// pricing.PriceStore.
func (s *Store) GetPriceRecord(ctx context.Context, key string) ([]byte, time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value_json, cached_at FROM prices WHERE key = ?`, key)

	var data []byte
	var cachedAt string
	if err := row.Scan(&data, &cachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ErrPriceRecordMiss
		}
		return nil, time.Time{}, fmt.Errorf("cache: get price record: %w", err)
	}

	t, _ := time.Parse(time.RFC3339Nano, cachedAt)
	return data, t, nil
}

// PutPriceRecord persists a price or exchange-rate record, insert-or-
// replace by key, so it survives process restarts within its TTL.
func (s *Store) PutPriceRecord(ctx context.Context, key string, data []byte, cachedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prices (key, value_json, cached_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, cached_at = excluded.cached_at`,
		key, data, cachedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache: put price record: %w", err)
	}
	return nil
}
