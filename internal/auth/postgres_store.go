package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresTimeout bounds each credential lookup.
const DefaultPostgresTimeout = 5 * time.Second

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresUserStore reads password hashes from a shared Postgres table so
// several gateway replicas can authenticate against one account list.
//
//	CREATE TABLE polaris_users (
//	    name          TEXT PRIMARY KEY,
//	    password_hash TEXT NOT NULL
//	);
type PostgresUserStore struct {
	db      pgQuerier
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresOption configures a PostgresUserStore.
type PostgresOption func(*PostgresUserStore)

// WithTimeout overrides the per-query timeout.
func WithTimeout(timeout time.Duration) PostgresOption {
	return func(s *PostgresUserStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewPostgresUserStore opens a pooled connection using dsn.
func NewPostgresUserStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresUserStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres user store dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres user store config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres user store pool: %w", err)
	}
	store := newPostgresUserStore(pool, opts...)
	store.pool = pool
	return store, nil
}

func newPostgresUserStore(db pgQuerier, opts ...PostgresOption) *PostgresUserStore {
	store := &PostgresUserStore{db: db, timeout: DefaultPostgresTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// PasswordHash fetches the hash for username.
func (s *PostgresUserStore) PasswordHash(ctx context.Context, username string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("postgres user store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var hash string
	err := s.db.QueryRow(ctx, `SELECT password_hash FROM polaris_users WHERE name = $1`, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("query user %q: %w", username, err)
	}
	return hash, nil
}

const createUsersTable = `CREATE TABLE IF NOT EXISTS polaris_users (
    name          TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL
)`

// EnsureSchema creates the users table when it is missing.
func (s *PostgresUserStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("postgres user store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.Exec(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create polaris_users: %w", err)
	}
	return nil
}

// Put inserts or replaces a user, hashing a plain password first. It
// reports whether the row was newly created.
func (s *PostgresUserStore) Put(ctx context.Context, user UserCredential) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("postgres user store not configured")
	}
	name, hash, err := user.resolve()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var inserted bool
	err = s.db.QueryRow(ctx, `INSERT INTO polaris_users (name, password_hash) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET password_hash = EXCLUDED.password_hash
RETURNING (xmax = 0)`, name, hash).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert user %q: %w", name, err)
	}
	return inserted, nil
}

// Count returns the number of stored users.
func (s *PostgresUserStore) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("postgres user store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM polaris_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Ping checks connectivity to the database.
func (s *PostgresUserStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("postgres user store not configured")
	}
	return s.db.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresUserStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
