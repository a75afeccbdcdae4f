package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables Postgres reads from when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL UNIQUE,
	money DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS bases (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	location   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS investments (
	id          TEXT PRIMARY KEY,
	base_id     TEXT NOT NULL REFERENCES bases(id) ON DELETE CASCADE,
	investor_id TEXT NOT NULL REFERENCES users(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS investments_base_id_idx ON investments(base_id);
`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) Close() {
	p.db.Close()
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) UserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := p.db.QueryRow(ctx, `
		SELECT id, name, money
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Money)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return user, nil
}

// SaveUserBalance overwrites the persisted balance.
func (p *Postgres) SaveUserBalance(ctx context.Context, id string, money float64) error {
	tag, err := p.db.Exec(ctx, `UPDATE users SET money = $2 WHERE id = $1`, id, money)
	if err != nil {
		return fmt.Errorf("save balance for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListBases(ctx context.Context) ([]Base, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, owner_id, location
		FROM bases
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}
	defer rows.Close()

	var bases []Base
	for rows.Next() {
		var (
			base     Base
			location []byte
		)
		if err := rows.Scan(&base.ID, &base.Name, &base.OwnerID, &location); err != nil {
			return nil, fmt.Errorf("scan base: %w", err)
		}
		point, err := DecodePoint(location)
		if errors.Is(err, ErrNotPoint) {
			// A base without a point location can never be in range.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("base %s: %w", base.ID, err)
		}
		base.Location = point
		bases = append(bases, base)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}
	return bases, nil
}

func (p *Postgres) CountInvestments(ctx context.Context, baseID string) (int, error) {
	var count int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(1) FROM investments WHERE base_id = $1`, baseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count investments for %s: %w", baseID, err)
	}
	return int(count), nil
}

var _ Store = (*Postgres)(nil)
