package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store kept in a single database file, for setups where every
// process runs on one host and no Redis server is available.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLite opens (or creates) the database at dbPath and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps pragmas in effect and serialises writers in-process
	db.SetMaxOpenConns(1)

	// Other processes share the file; wait for their locks instead of failing
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	s := &SQLite{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) expiry(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: s.now().Add(ttl).UnixNano(), Valid: true}
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_strings WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	if expires.Valid && expires.Int64 <= s.now().UnixNano() {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("set", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_lists WHERE key = ?`, key); err != nil {
		return unavailable("set", key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv_strings (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiry(ttl),
	)
	if err != nil {
		return unavailable("set", key, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *SQLite) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	defer tx.Rollback()

	// Expired entries do not count as present
	_, err = tx.ExecContext(ctx,
		`DELETE FROM kv_strings WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		key, s.now().UnixNano(),
	)
	if err != nil {
		return false, unavailable("setnx", key, err)
	}

	var lists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_lists WHERE key = ?`, key).Scan(&lists); err != nil {
		return false, unavailable("setnx", key, err)
	}
	if lists > 0 {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_strings (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, s.expiry(ttl),
	)
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}

	if err := tx.Commit(); err != nil {
		return false, unavailable("setnx", key, err)
	}
	return n > 0, nil
}

func (s *SQLite) Del(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("del", key, err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM kv_strings WHERE key = ?`,
		`DELETE FROM kv_lists WHERE key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			return unavailable("del", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (s *SQLite) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("rpush", key, err)
	}
	defer tx.Rollback()

	// A live string under key makes the push a type error, as in Redis
	_, err = tx.ExecContext(ctx,
		`DELETE FROM kv_strings WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		key, s.now().UnixNano(),
	)
	if err != nil {
		return unavailable("rpush", key, err)
	}
	var held int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_strings WHERE key = ?`, key).Scan(&held); err != nil {
		return unavailable("rpush", key, err)
	}
	if held > 0 {
		return unavailable("rpush", key, errors.New("key holds a string"))
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv_lists (key, value) VALUES (?, ?)`)
	if err != nil {
		return unavailable("rpush", key, err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, key, v); err != nil {
			return unavailable("rpush", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("rpush", key, err)
	}
	return nil
}

func (s *SQLite) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM kv_lists WHERE key = ? ORDER BY id`, key)
	if err != nil {
		return nil, unavailable("lrange", key, err)
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, unavailable("lrange", key, err)
		}
		all = append(all, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("lrange", key, err)
	}

	lo, hi, ok := rangeBounds(int64(len(all)), start, stop)
	if !ok {
		return []string{}, nil
	}
	return all[lo:hi], nil
}

func (s *SQLite) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_strings WHERE key = ? AND value = ?
		 AND (expires_at IS NULL OR expires_at > ?)`,
		key, value, s.now().UnixNano(),
	)
	if err != nil {
		return false, unavailable("compare-and-delete", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("compare-and-delete", key, err)
	}
	return n > 0, nil
}

func (s *SQLite) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv_strings SET expires_at = ? WHERE key = ? AND value = ?
		 AND (expires_at IS NULL OR expires_at > ?)`,
		s.expiry(ttl), key, value, now,
	)
	if err != nil {
		return false, unavailable("compare-and-expire", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("compare-and-expire", key, err)
	}
	return n > 0, nil
}
