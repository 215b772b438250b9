package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for cursors, pools, deliveries, and dedupe.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  source_id   TEXT PRIMARY KEY,
  height      INTEGER NOT NULL,
  hash        TEXT NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pools (
  address       TEXT PRIMARY KEY,
  token0        TEXT NOT NULL,
  token1        TEXT NOT NULL,
  version       TEXT NOT NULL,
  fee           INTEGER NOT NULL DEFAULT 0,
  has_liquidity INTEGER NOT NULL DEFAULT 0,
  has_traded    INTEGER NOT NULL DEFAULT 0,
  first_block   INTEGER NOT NULL DEFAULT 0,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deliveries (
  id          TEXT PRIMARY KEY,
  event_key   TEXT NOT NULL,
  kind        TEXT NOT NULL,
  sink_id     TEXT NOT NULL,
  status      TEXT NOT NULL,
  detail      TEXT,
  created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_key ON deliveries(event_key);

CREATE TABLE IF NOT EXISTS dedupe (
  key         TEXT PRIMARY KEY,
  expires_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS block_hashes (
  source_id   TEXT NOT NULL,
  height      INTEGER NOT NULL,
  hash        TEXT NOT NULL,
  PRIMARY KEY (source_id, height)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertCursor records the latest processed height/hash for a source.
func (s *Store) UpsertCursor(ctx context.Context, sourceID string, height uint64, hash string) error {
	if sourceID == "" {
		return errors.New("sourceID required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (source_id, height, hash, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(source_id) DO UPDATE SET
  height=excluded.height,
  hash=excluded.hash,
  updated_at=CURRENT_TIMESTAMP;
`, sourceID, height, hash)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// GetCursor retrieves the cursor for a source.
func (s *Store) GetCursor(ctx context.Context, sourceID string) (height uint64, hash string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT height, hash FROM cursors WHERE source_id = ?;
`, sourceID)
	switch err = row.Scan(&height, &hash); err {
	case nil:
		return height, hash, true, nil
	case sql.ErrNoRows:
		return 0, "", false, nil
	default:
		return 0, "", false, fmt.Errorf("get cursor: %w", err)
	}
}

// UpsertBlockHash records the block hash observed at a height. The scanner
// uses these during reorg walkback to find the fork point.
func (s *Store) UpsertBlockHash(ctx context.Context, sourceID string, height uint64, hash string) error {
	if sourceID == "" {
		return errors.New("sourceID required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO block_hashes (source_id, height, hash)
VALUES (?, ?, ?)
ON CONFLICT(source_id, height) DO UPDATE SET hash=excluded.hash;
`, sourceID, height, hash)
	if err != nil {
		return fmt.Errorf("upsert block hash: %w", err)
	}
	return nil
}

// GetBlockHash returns the hash observed at a height, if one was recorded.
func (s *Store) GetBlockHash(ctx context.Context, sourceID string, height uint64) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
SELECT hash FROM block_hashes WHERE source_id = ? AND height = ?;
`, sourceID, height).Scan(&hash)
	switch err {
	case nil:
		return hash, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get block hash: %w", err)
	}
}

// DeleteBlockHashesAbove drops recorded hashes above height. Called on
// reorg rewind: everything past the rewind point came from the stale chain.
func (s *Store) DeleteBlockHashesAbove(ctx context.Context, sourceID string, height uint64) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM block_hashes WHERE source_id = ? AND height > ?;
`, sourceID, height)
	if err != nil {
		return fmt.Errorf("delete block hashes: %w", err)
	}
	return nil
}

// PruneBlockHashes drops recorded hashes below height, bounding the table
// to the depth a reorg could plausibly reach.
func (s *Store) PruneBlockHashes(ctx context.Context, sourceID string, height uint64) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM block_hashes WHERE source_id = ? AND height < ?;
`, sourceID, height)
	if err != nil {
		return fmt.Errorf("prune block hashes: %w", err)
	}
	return nil
}

// Cursor is one row of the cursors table.
type Cursor struct {
	SourceID  string
	Height    uint64
	Hash      string
	UpdatedAt time.Time
}

// ListCursors returns all cursors, ordered by source id.
func (s *Store) ListCursors(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT source_id, height, hash, updated_at FROM cursors ORDER BY source_id;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.SourceID, &c.Height, &c.Hash, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkDedupe sets or refreshes a dedupe key until expiresAt.
func (s *Store) MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedupe (key, expires_at)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at=excluded.expires_at;
`, key, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("mark dedupe: %w", err)
	}
	return nil
}

// IsDuplicate returns true if the key exists and is not expired; expired entries are pruned.
func (s *Store) IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, errors.New("key required")
	}

	var expires time.Time
	err := s.db.QueryRowContext(ctx, `
SELECT expires_at FROM dedupe WHERE key = ?;
`, key).Scan(&expires)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dedupe: %w", err)
	}

	if expires.After(now.UTC()) {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedupe WHERE key = ?;`, key); err != nil {
		return false, fmt.Errorf("prune dedupe: %w", err)
	}
	return false, nil
}

// Pool is a discovered Uniswap pool trading the watched token.
type Pool struct {
	Address      string
	Token0       string
	Token1       string
	Version      string
	Fee          uint32
	HasLiquidity bool
	HasTraded    bool
	FirstBlock   uint64
	CreatedAt    time.Time
}

// InsertPool stores a pool if unseen; returns whether a row was inserted.
// Pool identity is immutable, so conflicts are ignored rather than updated.
func (s *Store) InsertPool(ctx context.Context, p Pool) (bool, error) {
	if p.Address == "" || p.Version == "" {
		return false, errors.New("pool address and version required")
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO pools (address, token0, token1, version, fee, first_block, created_at)
VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
ON CONFLICT(address) DO NOTHING;
`, p.Address, p.Token0, p.Token1, p.Version, p.Fee, p.FirstBlock, nullTime(p.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert pool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert pool: %w", err)
	}
	return n == 1, nil
}

// GetPool retrieves one pool by address.
func (s *Store) GetPool(ctx context.Context, address string) (Pool, bool, error) {
	var p Pool
	row := s.db.QueryRowContext(ctx, `
SELECT address, token0, token1, version, fee, has_liquidity, has_traded, first_block, created_at
FROM pools WHERE address = ?;
`, address)
	err := row.Scan(&p.Address, &p.Token0, &p.Token1, &p.Version, &p.Fee,
		&p.HasLiquidity, &p.HasTraded, &p.FirstBlock, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return Pool{}, false, nil
	}
	if err != nil {
		return Pool{}, false, fmt.Errorf("get pool: %w", err)
	}
	return p, true, nil
}

// ListPools returns all known pools, oldest first.
func (s *Store) ListPools(ctx context.Context) ([]Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT address, token0, token1, version, fee, has_liquidity, has_traded, first_block, created_at
FROM pools ORDER BY first_block, address;
`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var out []Pool
	for rows.Next() {
		var p Pool
		if err := rows.Scan(&p.Address, &p.Token0, &p.Token1, &p.Version, &p.Fee,
			&p.HasLiquidity, &p.HasTraded, &p.FirstBlock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPoolLiquidity flags a pool as funded; returns true on the first mint only.
func (s *Store) MarkPoolLiquidity(ctx context.Context, address string) (bool, error) {
	return s.markPoolFlag(ctx, address, "has_liquidity")
}

// MarkPoolTraded flags a pool as traded; returns true on the first swap only.
func (s *Store) MarkPoolTraded(ctx context.Context, address string) (bool, error) {
	return s.markPoolFlag(ctx, address, "has_traded")
}

func (s *Store) markPoolFlag(ctx context.Context, address, column string) (bool, error) {
	if address == "" {
		return false, errors.New("address required")
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE pools SET %s = 1 WHERE address = ? AND %s = 0;`, column, column),
		address)
	if err != nil {
		return false, fmt.Errorf("mark pool %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark pool %s: %w", column, err)
	}
	return n == 1, nil
}

// Delivery records one sink delivery attempt for a reported event.
type Delivery struct {
	ID        string
	EventKey  string
	Kind      string
	SinkID    string
	Status    string
	Detail    string
	CreatedAt time.Time
}

// InsertDelivery stores a delivery record; primary key enforces exactly-once insertion.
func (s *Store) InsertDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" || d.EventKey == "" || d.SinkID == "" || d.Status == "" {
		return errors.New("delivery id, event_key, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (id, event_key, kind, sink_id, status, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, d.ID, d.EventKey, d.Kind, d.SinkID, d.Status, d.Detail, nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// RecordReport stores delivery outcomes and, when dedupeKey is non-empty,
// marks the dedupe key in the same transaction.
func (s *Store) RecordReport(ctx context.Context, recs []Delivery, dedupeKey string, expiresAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range recs {
			if d.ID == "" || d.EventKey == "" || d.SinkID == "" || d.Status == "" {
				return errors.New("delivery id, event_key, sink_id, and status are required")
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO deliveries (id, event_key, kind, sink_id, status, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, d.ID, d.EventKey, d.Kind, d.SinkID, d.Status, d.Detail, nullTime(d.CreatedAt)); err != nil {
				return fmt.Errorf("insert delivery: %w", err)
			}
		}
		if dedupeKey != "" {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO dedupe (key, expires_at)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at=excluded.expires_at;
`, dedupeKey, expiresAt.UTC()); err != nil {
				return fmt.Errorf("mark dedupe: %w", err)
			}
		}
		return nil
	})
}

// ListDeliveries returns the most recent delivery records, newest first.
func (s *Store) ListDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, event_key, kind, sink_id, status, COALESCE(detail, ''), created_at
FROM deliveries ORDER BY created_at DESC, id LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.EventKey, &d.Kind, &d.SinkID, &d.Status, &d.Detail, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDeliveries removes delivery records older than cutoff, returning the count.
func (s *Store) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?;`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return n, nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
