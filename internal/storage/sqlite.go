package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway and this keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	applyPragmas(ctx, db, log,
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	)

	st := &sqlStore{db: db, d: dialect{name: "sqlite"}, log: log}
	if err := st.migrate(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.reconcile(ctx, time.Now()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// applyPragmas runs each statement in order. Failures are logged and the
// store keeps sqlite's defaults for that setting.
func applyPragmas(ctx context.Context, db *sql.DB, log logx.Logger, stmts ...string) int {
	failed := 0
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			failed++
			log.Warn("sqlite pragma failed", logx.String("pragma", q), logx.Err(err))
		}
	}
	return failed
}
