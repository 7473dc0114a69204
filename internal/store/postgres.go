package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagrab_bot/internal/domain"
)

const tableMedia = "saved_media"

// pgPool is the subset of pgxpool.Pool the index uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// newPgPool is overridable for tests.
var newPgPool = func(ctx context.Context, url string) (pgPool, error) {
	return pgxpool.New(ctx, url)
}

// PostgresIndex keeps saved media entries in a PostgreSQL table.
type PostgresIndex struct {
	pool pgPool
}

// OpenPostgres connects and creates the table when missing.
func OpenPostgres(ctx context.Context, url string) (*PostgresIndex, error) {
	pool, err := newPgPool(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	idx := &PostgresIndex{pool: pool}
	if err := idx.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) init(ctx context.Context) error {
	stmts := []string{
		`create table if not exists ` + tableMedia + ` (
			user_id bigint not null,
			name text not null,
			name_key text not null,
			type text not null,
			path text not null,
			created_at timestamptz not null default now(),
			primary key (user_id, name)
		)`,
		`create index if not exists ` + tableMedia + `_name_key on ` + tableMedia + ` (user_id, name_key)`,
	}
	for _, q := range stmts {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init postgres schema: %w", err)
		}
	}
	return nil
}

// Put upserts the entry keyed by user and name.
func (p *PostgresIndex) Put(ctx context.Context, entry domain.SavedMedia) error {
	_, err := p.pool.Exec(ctx,
		`insert into `+tableMedia+` (user_id, name, name_key, type, path, created_at)
		 values ($1, $2, $3, $4, $5, $6)
		 on conflict (user_id, name) do update set type = excluded.type, path = excluded.path, created_at = excluded.created_at`,
		entry.UserID, entry.Name, strings.ToLower(entry.Name), string(entry.Type), entry.Path, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert media: %w", err)
	}
	return nil
}

// Find prefers an exact name match over a case-insensitive one.
func (p *PostgresIndex) Find(ctx context.Context, userID int64, name string) (domain.SavedMedia, error) {
	row := p.pool.QueryRow(ctx,
		`select user_id, name, type, path, created_at from `+tableMedia+`
		 where user_id = $1 and (name = $2 or name_key = $3)
		 order by (name = $2) desc, name
		 limit 1`,
		userID, name, strings.ToLower(name),
	)

	entry, err := scanMedia(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedMedia{}, ErrNotFound
		}
		return domain.SavedMedia{}, fmt.Errorf("find media: %w", err)
	}
	return entry, nil
}

// List returns the user's entries ordered by lowercase name.
func (p *PostgresIndex) List(ctx context.Context, userID int64) ([]domain.SavedMedia, error) {
	rows, err := p.pool.Query(ctx,
		`select user_id, name, type, path, created_at from `+tableMedia+` where user_id = $1 order by name_key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var entries []domain.SavedMedia
	for rows.Next() {
		entry, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Remove deletes the entry with the exact name.
func (p *PostgresIndex) Remove(ctx context.Context, userID int64, name string) error {
	tag, err := p.pool.Exec(ctx, `delete from `+tableMedia+` where user_id = $1 and name = $2`, userID, name)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the pool.
func (p *PostgresIndex) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *PostgresIndex) Close(context.Context) error {
	p.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (domain.SavedMedia, error) {
	var (
		entry     domain.SavedMedia
		mediaType string
	)
	if err := row.Scan(&entry.UserID, &entry.Name, &mediaType, &entry.Path, &entry.CreatedAt); err != nil {
		return domain.SavedMedia{}, err
	}
	entry.Type = domain.MediaType(mediaType)
	return entry, nil
}
