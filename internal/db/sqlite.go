package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"catcharity/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the SQLite implementation of store.Store.
type DB struct {
	sqlDB *sql.DB
	q     querier
}

var _ store.Store = (*DB)(nil)

// PathFromURL strips the sqlite:// or file: scheme from a database URL.
func PathFromURL(url string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{sqlDB: sqlDB, q: sqlDB}, nil
}

func migrate(sqlDB *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	return goose.Up(sqlDB, "migrations")
}

func (db *DB) Users() store.UserRepository {
	return &UserRepository{q: db.q}
}

func (db *DB) PublicUsers() store.PublicUserRepository {
	return &PublicUserRepository{q: db.q}
}

func (db *DB) Cats() store.CatRepository {
	return &CatRepository{q: db.q}
}

func (db *DB) Photos() store.PhotoRepository {
	return &PhotoRepository{q: db.q}
}

func (db *DB) Messages() store.MessageRepository {
	return &MessageRepository{q: db.q}
}

func (db *DB) RegistrationCodes() store.RegistrationCodeRepository {
	return &RegistrationCodeRepository{q: db.q}
}

func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if _, inTx := db.q.(*sql.Tx); inTx {
		return fn(ctx, db)
	}

	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &DB{sqlDB: db.sqlDB, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

func (db *DB) Close(_ context.Context) error {
	return db.sqlDB.Close()
}
