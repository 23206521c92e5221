// Package postgres provides pgxpool-backed persistence for the config and
// tweets tables.
//
// Purpose:
//
//	This package owns the two relational surfaces filterstream reads and
//	writes: the config table the Reconciler diffs against, and the tweets
//	table the Batcher appends to. It uses pgxpool for connection pooling,
//	matching the teacher's storage layer.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaystream/filterstream/internal/subscription"
)

// Store provides Postgres-backed persistence for filterstream.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store using the provided connection string and verifies
// connectivity before returning.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool, used by the ambient readiness probe.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the config and tweets tables if they don't already
// exist. Both the Reconciler and the Batcher call this on their first tick
// rather than relying on an out-of-band migration, matching spec.md §4.1 and
// §6's "create-if-missing" language.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS config (
			run_id text PRIMARY KEY,
			config jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tweets (
			run text NOT NULL,
			tweet jsonb NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// configRow mirrors the jsonb payload stored in config.config.
type configRow struct {
	ConsumerKey    string   `json:"consumer_key"`
	ConsumerSecret string   `json:"consumer_secret"`
	AccessToken    string   `json:"access_token"`
	AccessSecret   string   `json:"access_secret"`
	Follow         []string `json:"follow"`
	Track          []string `json:"track"`
	Locations      []string `json:"locations"`
}

// LoadSubscriptions reads every row of the config table, decoding each row's
// jsonb payload into a subscription.Subscription. A single malformed row is
// skipped (returned via the per-row []error slice), matching spec.md §7: a
// malformed config fails that run_id, not the whole reload. The third return
// value is set only when the query itself (or its iteration) fails
// entirely — distinct from a per-row decode failure — so the caller can tell
// "config is legitimately empty" from "the read failed" and abandon the tick
// without mutating its running set (spec.md §4.1 Errors).
func (s *Store) LoadSubscriptions(ctx context.Context) ([]subscription.Subscription, []error, error) {
	rows, err := s.pool.Query(ctx, `SELECT run_id, config FROM config`)
	if err != nil {
		return nil, nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	var errs []error
	for rows.Next() {
		var runID string
		var raw []byte
		if err := rows.Scan(&runID, &raw); err != nil {
			errs = append(errs, fmt.Errorf("scan config row: %w", err))
			continue
		}

		var cfg configRow
		if err := json.Unmarshal(raw, &cfg); err != nil {
			errs = append(errs, fmt.Errorf("run_id %s: decode config: %w", runID, err))
			continue
		}

		sub := subscription.Subscription{
			RunID:          runID,
			ConsumerKey:    cfg.ConsumerKey,
			ConsumerSecret: cfg.ConsumerSecret,
			AccessToken:    cfg.AccessToken,
			AccessSecret:   cfg.AccessSecret,
			Follow:         cfg.Follow,
			Track:          cfg.Track,
			Locations:      cfg.Locations,
		}
		if err := sub.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("run_id %s: %w", runID, err))
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate config rows: %w", err)
	}

	return subs, errs, nil
}

// InsertTweets multi-row inserts every event's raw line as a jsonb tweet row
// bound to its run_id, in a single transaction, matching spec.md §4.3's
// commit policy: one statement, one commit per non-empty tick, values bound
// as parameters.
func (s *Store) InsertTweets(ctx context.Context, runIDs []string, rawLines []string) error {
	if len(runIDs) != len(rawLines) {
		return fmt.Errorf("insert tweets: mismatched run_id/line counts %d/%d", len(runIDs), len(rawLines))
	}
	if len(runIDs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args := buildMultiRowInsert(runIDs, rawLines)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert tweets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tweets: %w", err)
	}
	return nil
}

// buildMultiRowInsert constructs `INSERT INTO tweets (run, tweet) VALUES
// ($1,$2::jsonb),($3,$4::jsonb),...` with every value passed as a bound
// parameter, never string-spliced.
func buildMultiRowInsert(runIDs []string, rawLines []string) (string, []any) {
	args := make([]any, 0, len(runIDs)*2)
	query := "INSERT INTO tweets (run, tweet) VALUES "
	for i := range runIDs {
		if i > 0 {
			query += ","
		}
		base := i * 2
		query += fmt.Sprintf("($%d,$%d::jsonb)", base+1, base+2)
		args = append(args, runIDs[i], rawLines[i])
	}
	return query, args
}
