package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Adapter[any] = (*Postgres[any])(nil)

const postgresSchema = `
create table if not exists kv_store (
	entity     text        not null,
	key        text        not null,
	value      jsonb       not null,
	updated_at timestamptz not null,
	primary key (entity, key)
)`

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns conservative pool settings for a single process.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// NewPostgresPool connects to databaseURL. A missing sslmode defaults to
// "prefer".
func NewPostgresPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(withDefaultSSLMode(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

func withDefaultSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Scheme == "" {
		// Not a URL (key=value DSN); pgx will report problems itself.
		return databaseURL
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "prefer")
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

// Postgres stores one entity kind as jsonb rows of the kv_store table.
type Postgres[T any] struct {
	pool   *pgxpool.Pool
	entity string

	initOnce sync.Once
	initErr  error
}

// NewPostgres creates an adapter for entity on pool.
func NewPostgres[T any](pool *pgxpool.Pool, entity string) *Postgres[T] {
	return &Postgres[T]{pool: pool, entity: entity}
}

// WaitForInit creates the kv_store table.
func (p *Postgres[T]) WaitForInit(ctx context.Context) error {
	p.initOnce.Do(func() {
		if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
			p.initErr = fmt.Errorf("creating kv_store: %w", err)
		}
	})
	return p.initErr
}

// HasValue reports whether a row exists for key.
func (p *Postgres[T]) HasValue(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`select exists(select 1 from kv_store where entity = $1 and key = $2)`,
		p.entity, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking %s/%s: %w", p.entity, key, err)
	}
	return exists, nil
}

// ReadValue decodes the row for key.
func (p *Postgres[T]) ReadValue(ctx context.Context, key string) (T, error) {
	var value T
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`select value::text from kv_store where entity = $1 and key = $2`,
		p.entity, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return value, fmt.Errorf("reading %s/%s: %w", p.entity, key, ErrNotFound)
	}
	if err != nil {
		return value, fmt.Errorf("reading %s/%s: %w", p.entity, key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("decoding %s/%s: %w", p.entity, key, err)
	}
	return value, nil
}

// WriteValue upserts the row for key.
func (p *Postgres[T]) WriteValue(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", p.entity, key, err)
	}
	return p.upsert(ctx, key, string(data))
}

// DeleteValue replaces the row with a null tombstone.
func (p *Postgres[T]) DeleteValue(ctx context.Context, key string) error {
	return p.upsert(ctx, key, "null")
}

func (p *Postgres[T]) upsert(ctx context.Context, key, raw string) error {
	_, err := p.pool.Exec(ctx, `
		insert into kv_store (entity, key, value, updated_at)
		values ($1, $2, $3::jsonb, $4)
		on conflict (entity, key) do update
		set value = excluded.value, updated_at = excluded.updated_at`,
		p.entity, key, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", p.entity, key, err)
	}
	return nil
}
