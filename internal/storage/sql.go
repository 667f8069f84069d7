package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/dbx"
	"github.com/dmitrijs2005/linkledger/internal/storage/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	selectChunk = `SELECT data FROM ledger_chunks WHERE key = ?`
	upsertChunk = `INSERT INTO ledger_chunks (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// SQLVolume keeps chunks in the ledger_chunks table of a PostgreSQL or
// SQLite database.
type SQLVolume struct {
	name    string
	dialect dbx.Dialect
	db      *sql.DB
}

// OpenSQLVolume connects, runs migrations and returns the volume. kind is
// "postgres" or "sqlite".
func OpenSQLVolume(ctx context.Context, kind, dsn string) (*SQLVolume, error) {
	var (
		driver  string
		dialect dbx.Dialect
	)
	switch kind {
	case "postgres":
		driver, dialect = "pgx", dbx.Postgres
	case "sqlite":
		driver, dialect = "sqlite", dbx.SQLite
	default:
		return nil, fmt.Errorf("unsupported sql volume kind %q", kind)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}
	if dialect == dbx.SQLite {
		// single writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", kind, err)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", kind, err)
	}

	return NewSQLVolume(kind+":"+redactDSN(dsn), dialect, db), nil
}

// NewSQLVolume wraps an already migrated database.
func NewSQLVolume(name string, dialect dbx.Dialect, db *sql.DB) *SQLVolume {
	return &SQLVolume{name: name, dialect: dialect, db: db}
}

// RunMigrations applies the embedded migrations for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	var dir string
	switch dialect {
	case dbx.Postgres:
		dir = "postgres"
		if err := goose.SetDialect("pgx"); err != nil {
			return err
		}
	case dbx.SQLite:
		dir = "sqlite"
		if err := goose.SetDialect("sqlite3"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	return gooseUpContext(ctx, db, dir)
}

func (v *SQLVolume) Name() string { return v.name }

func (v *SQLVolume) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := v.db.QueryRowContext(ctx, dbx.Rebind(v.dialect, selectChunk), key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return data, nil
}

func (v *SQLVolume) Write(ctx context.Context, key string, data []byte) error {
	err := dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, dbx.Rebind(v.dialect, upsertChunk), key, data, time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (v *SQLVolume) Close() error { return v.db.Close() }

// redactDSN hides passwords in URL-style DSNs so volume names can be logged.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
