package store

import (
	"context"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

// Settings select and address a Backend.
type Settings struct {
	// Kind is one of file, redis, postgres or sqlite.
	Kind        string
	Namespace   string
	File        string
	DatabaseURL string
	SQLitePath  string
	// Redis is required for the redis kind.
	Redis *redis.Client
	// Fs backs the file kind. Nil means the OS filesystem.
	Fs afero.Fs
}

// Open returns the backend named by s.Kind.
func Open(ctx context.Context, s Settings) (Backend, error) {
	switch s.Kind {
	case "file":
		f := NewFile(s.Fs, s.File)
		if err := f.fs.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
			return nil, errors.Annotatef(err, "creating directory for %s", s.File)
		}
		return f, nil
	case "redis":
		if s.Redis == nil {
			return nil, errors.NotValidf("redis backend without client")
		}
		return NewRedis(s.Redis, s.Namespace), nil
	case "postgres":
		db, err := NewPostgres(ctx, s.DatabaseURL, s.Namespace)
		return db, errors.Trace(err)
	case "sqlite":
		db, err := NewSQLite(ctx, s.SQLitePath, s.Namespace)
		return db, errors.Trace(err)
	}
	return nil, errors.NotValidf("state backend %q", s.Kind)
}
