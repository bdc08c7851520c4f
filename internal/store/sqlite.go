//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"influradar/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, opErr("open", "", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, opErr("open", "", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, opErr("migrate", "", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE user_id = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, opErr("has", key, err)
	}
	return true, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*Record, error) {
	ok, err := s.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT following_id FROM followings WHERE user_id = ? ORDER BY following_id`, key)
	if err != nil {
		return nil, opErr("get", key, err)
	}
	defer rows.Close()

	rec := &Record{Followings: []string{}}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, opErr("get", key, err)
		}
		rec.Followings = append(rec.Followings, id)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("get", key, err)
	}
	return rec, nil
}

func (s *sqliteStore) Create(ctx context.Context, key string, followings []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("create", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(user_id, created_at) VALUES(?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		key, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return opErr("create", key, err)
	}
	for _, f := range followings {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO followings(user_id, following_id) VALUES(?, ?)`,
			key, f); err != nil {
			return opErr("create", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return opErr("create", key, err)
	}
	return nil
}

func (s *sqliteStore) AddFollowings(ctx context.Context, key string, values []string) error {
	ok, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return opErr("add followings", key, errors.New("no such record"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("add followings", key, err)
	}
	defer tx.Rollback()

	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO followings(user_id, following_id) VALUES(?, ?)`,
			key, v); err != nil {
			return opErr("add followings", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return opErr("add followings", key, err)
	}
	return nil
}

func (s *sqliteStore) RemoveFollowings(ctx context.Context, key string, values []string) error {
	ok, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return opErr("remove followings", key, errors.New("no such record"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("remove followings", key, err)
	}
	defer tx.Rollback()

	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM followings WHERE user_id = ? AND following_id = ?`,
			key, v); err != nil {
			return opErr("remove followings", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return opErr("remove followings", key, err)
	}
	return nil
}
