package reports

import (
	"context"
	"strings"
	"time"
)

type Options struct {
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration
	DatabaseURL    string
	SQLitePath     string
}

// NewStore picks the first configured backend: candidate service, postgres,
// sqlite, then in-memory.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch {
	case strings.TrimSpace(opts.BackendURL) != "":
		return NewBackendStore(opts.BackendURL, opts.BackendToken, opts.BackendTimeout), nil
	case strings.TrimSpace(opts.DatabaseURL) != "":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case strings.TrimSpace(opts.SQLitePath) != "":
		return NewSQLiteStore(opts.SQLitePath)
	default:
		return NewInMemoryStore(), nil
	}
}

// Kind names the backend a store writes to, for logs and /readyz.
func Kind(s Store) string {
	switch s.(type) {
	case *BackendStore:
		return "backend"
	case *PostgresStore:
		return "postgres"
	case *SQLiteStore:
		return "sqlite"
	case *InMemoryStore:
		return "memory"
	default:
		return "custom"
	}
}
