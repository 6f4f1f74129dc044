package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/juju/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB keeps the state blob as a single row in Postgres or SQLite.
type DB struct {
	Client    *sql.DB
	namespace string
	bind      func(n int) string
}

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func question(int) string { return "?" }

// NewPostgres opens a Postgres connection through pgx and ensures the
// state table exists.
func NewPostgres(ctx context.Context, connString, namespace string) (*DB, error) {
	client, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Annotate(err, "opening postgres")
	}
	client.SetMaxOpenConns(10)
	client.SetMaxIdleConns(5)
	client.SetConnMaxLifetime(time.Hour)
	return newDB(ctx, client, namespace, dollar)
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(ctx context.Context, path, namespace string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Annotatef(err, "creating %s", dir)
		}
	}
	client, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Annotate(err, "opening sqlite")
	}
	client.SetMaxOpenConns(1)
	return newDB(ctx, client, namespace, question)
}

func newDB(ctx context.Context, client *sql.DB, namespace string, bind func(int) string) (*DB, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	db := &DB{Client: client, namespace: namespace, bind: bind}
	if err := client.PingContext(ctx); err != nil {
		_ = client.Close()
		return nil, errors.Annotate(err, "ping")
	}
	if err := db.migrate(ctx); err != nil {
		_ = client.Close()
		return nil, errors.Annotate(err, "migrate")
	}
	return db, nil
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_state (
			namespace  TEXT PRIMARY KEY,
			blob       TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Load returns the stored blob for the namespace.
func (d *DB) Load(ctx context.Context) ([]byte, error) {
	var blob string
	err := d.Client.QueryRowContext(ctx,
		`SELECT blob FROM attendance_state WHERE namespace = `+d.bind(1),
		d.namespace,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("state %q", d.namespace)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "loading state %q", d.namespace)
	}
	return []byte(blob), nil
}

// Save upserts the blob for the namespace.
func (d *DB) Save(ctx context.Context, blob []byte) error {
	_, err := d.Client.ExecContext(ctx, `
		INSERT INTO attendance_state (namespace, blob, updated_at)
		VALUES (`+d.bind(1)+`, `+d.bind(2)+`, `+d.bind(3)+`)
		ON CONFLICT (namespace) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at
	`, d.namespace, string(blob), time.Now().UTC())
	return errors.Annotatef(err, "saving state %q", d.namespace)
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
