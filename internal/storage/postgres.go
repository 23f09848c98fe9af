package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "remindbot/pkg/logx"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn (or DATABASE_URL) is required for postgres driver")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}

	st := &sqlStore{db: db, d: dialect{name: "postgres", numbered: true, forUpdate: " FOR UPDATE"}, log: log}
	if err := st.migrate(ctx, postgresMigrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.reconcile(ctx, time.Now()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}
