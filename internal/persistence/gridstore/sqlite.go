// Package gridstore keeps networked shared storage in SQLite.
package gridstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"itemconverter.ai/internal/convert/item"
)

// Store holds every grid network. Capacity is counted in units across all
// item types of one network; 0 means unbounded.
type Store struct {
	db              *sql.DB
	defaultCapacity int64
	once            sync.Once
}

func OpenSQLite(path string, defaultCapacity int64) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes every transaction, which is what makes
	// simulate -> commit safe.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, defaultCapacity: defaultCapacity}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS networks (
			network TEXT PRIMARY KEY,
			capacity INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS grid_items (
			network TEXT NOT NULL,
			item TEXT NOT NULL,
			aux TEXT NOT NULL,
			count INTEGER NOT NULL CHECK (count > 0),
			PRIMARY KEY (network, item, aux)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

// SetMeta records a key/value pair such as the catalog digest.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}

// Meta returns "" for unknown keys.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SetCapacity overrides the unit limit of one network.
func (s *Store) SetCapacity(ctx context.Context, network string, capacity int64) error {
	if capacity < 0 {
		return fmt.Errorf("negative capacity %d", capacity)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO networks(network, capacity) VALUES(?, ?) ON CONFLICT(network) DO UPDATE SET capacity=excluded.capacity`,
		network, capacity)
	return err
}

// Contents lists a network's stacks ordered by item and aux.
func (s *Store) Contents(ctx context.Context, network string) ([]item.Stack, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item, aux, count FROM grid_items WHERE network=? ORDER BY item, aux`, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []item.Stack
	for rows.Next() {
		var typ, aux string
		var n int64
		if err := rows.Scan(&typ, &aux, &n); err != nil {
			return nil, err
		}
		out = append(out, item.NewStack(item.NewKey(typ, aux), n))
	}
	return out, rows.Err()
}

// Network returns a handle bound to one network id.
func (s *Store) Network(id string) *Network {
	return &Network{store: s, id: id}
}

// Network is one grid. Every call runs in its own transaction.
type Network struct {
	store *Store
	id    string
}

func (n *Network) ID() string { return n.id }

func (n *Network) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := n.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func stored(ctx context.Context, tx *sql.Tx, network string, k item.Key) (int64, error) {
	var have int64
	err := tx.QueryRowContext(ctx,
		`SELECT count FROM grid_items WHERE network=? AND item=? AND aux=?`,
		network, k.Type(), k.Aux()).Scan(&have)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return have, err
}

// SimulateExtract reports how many of n units of k could be extracted now.
func (n *Network) SimulateExtract(ctx context.Context, k item.Key, want int64) (int64, error) {
	if want <= 0 {
		return 0, nil
	}
	var got int64
	err := n.tx(ctx, func(tx *sql.Tx) error {
		have, err := stored(ctx, tx, n.id, k)
		got = min(have, want)
		return err
	})
	return got, err
}

// Extract removes up to want units of k and returns how many were removed.
func (n *Network) Extract(ctx context.Context, k item.Key, want int64) (int64, error) {
	if want <= 0 {
		return 0, nil
	}
	var got int64
	err := n.tx(ctx, func(tx *sql.Tx) error {
		have, err := stored(ctx, tx, n.id, k)
		if err != nil {
			return err
		}
		got = min(have, want)
		switch {
		case got == 0:
			return nil
		case got == have:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM grid_items WHERE network=? AND item=? AND aux=?`, n.id, k.Type(), k.Aux())
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE grid_items SET count=count-? WHERE network=? AND item=? AND aux=?`, got, n.id, k.Type(), k.Aux())
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("grid %s extract %s: %w", n.id, k, err)
	}
	return got, nil
}

// Insert stores up to want units of k within the network's capacity and
// returns how many were accepted.
func (n *Network) Insert(ctx context.Context, k item.Key, want int64) (int64, error) {
	if want <= 0 {
		return 0, nil
	}
	var acc int64
	err := n.tx(ctx, func(tx *sql.Tx) error {
		capacity := n.store.defaultCapacity
		err := tx.QueryRowContext(ctx, `SELECT capacity FROM networks WHERE network=?`, n.id).Scan(&capacity)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		acc = want
		if capacity > 0 {
			var total int64
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(SUM(count), 0) FROM grid_items WHERE network=?`, n.id).Scan(&total); err != nil {
				return err
			}
			acc = max(min(want, capacity-total), 0)
		}
		if acc == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO grid_items(network, item, aux, count) VALUES(?, ?, ?, ?)
			 ON CONFLICT(network, item, aux) DO UPDATE SET count=count+excluded.count`,
			n.id, k.Type(), k.Aux(), acc)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("grid %s insert %s: %w", n.id, k, err)
	}
	return acc, nil
}
