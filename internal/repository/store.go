package repository

import (
	"context"
	"database/sql"

	"eventcart/internal/database"
)

// PostgresStore is the Store backed by lib/pq.
type PostgresStore struct {
	db    *database.DB
	repos *Repositories
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	// чтения вне транзакций переживают обрыв соединения
	return &PostgresStore{db: db, repos: newRepositories(db.Reader())}
}

func newRepositories(q Querier) *Repositories {
	return &Repositories{
		Events:    NewEventRepository(q),
		Carts:     NewCartRepository(q),
		Coupons:   NewCouponRepository(q),
		Clients:   NewClientRepository(q),
		Admins:    NewAdminRepository(q),
		Purchases: NewPurchaseRepository(q),
	}
}

func (s *PostgresStore) Repos() *Repositories {
	return s.repos
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for health checks.
func (s *PostgresStore) DB() *database.DB {
	return s.db
}
