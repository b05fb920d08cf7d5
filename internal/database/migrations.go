package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createLocalitiesTable,
		createClientsTable,
		createClientUsedCouponsTable,
		createAdminsTable,
		createCartsTable,
		createCouponsTable,
		createPurchasesTable,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(500) NOT NULL,
    city VARCHAR(200) NOT NULL,
    address VARCHAR(500) NOT NULL DEFAULT '',
    event_date TIMESTAMPTZ NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    event_type VARCHAR(50) NOT NULL,
    available_for_purchase BOOLEAN NOT NULL DEFAULT TRUE,
    total_available_places INTEGER NOT NULL DEFAULT 0 CHECK (total_available_places >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createLocalitiesTable = `
CREATE TABLE IF NOT EXISTS localities (
    event_id VARCHAR(36) NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    position INTEGER NOT NULL,
    price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
    remaining_capacity INTEGER NOT NULL,
    total_capacity INTEGER NOT NULL,
    PRIMARY KEY (event_id, name),
    CHECK (remaining_capacity >= 0 AND remaining_capacity <= total_capacity)
);`

const createClientsTable = `
CREATE TABLE IF NOT EXISTS clients (
    id VARCHAR(36) PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    name VARCHAR(200) NOT NULL,
    phone VARCHAR(50) NOT NULL DEFAULT '',
    address VARCHAR(500) NOT NULL DEFAULT '',
    password_hash VARCHAR(100) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    verification_code VARCHAR(64) NOT NULL DEFAULT '',
    verification_expires_at TIMESTAMPTZ,
    role VARCHAR(20) NOT NULL DEFAULT 'CLIENT',
    cart_id VARCHAR(36) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createClientUsedCouponsTable = `
CREATE TABLE IF NOT EXISTS client_used_coupons (
    client_id VARCHAR(36) NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
    coupon_name VARCHAR(100) NOT NULL,
    used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (client_id, coupon_name)
);`

const createAdminsTable = `
CREATE TABLE IF NOT EXISTS admins (
    id VARCHAR(36) PRIMARY KEY,
    username VARCHAR(100) UNIQUE NOT NULL,
    email VARCHAR(255) NOT NULL,
    password_hash VARCHAR(100) NOT NULL,
    verification_code VARCHAR(64) NOT NULL DEFAULT '',
    verification_expires_at TIMESTAMPTZ,
    role VARCHAR(20) NOT NULL DEFAULT 'ADMIN'
);`

const createCartsTable = `
CREATE TABLE IF NOT EXISTS carts (
    id VARCHAR(36) PRIMARY KEY,
    client_id VARCHAR(36) NOT NULL,
    orders JSONB NOT NULL DEFAULT '[]',
    total_price NUMERIC(14,2) NOT NULL DEFAULT 0,
    coupon_claimed BOOLEAN NOT NULL DEFAULT FALSE,
    applied_coupon_name VARCHAR(100) NOT NULL DEFAULT '',
    applied_discount_factor NUMERIC(6,4) NOT NULL DEFAULT 1,
    total_price_with_discount NUMERIC(14,2) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
    checkout_seq BIGINT NOT NULL DEFAULT 0,
    checkout_attempt_id VARCHAR(80) NOT NULL DEFAULT '',
    checkout_started_at TIMESTAMPTZ,
    preference_id VARCHAR(200) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (coupon_claimed = (applied_coupon_name <> ''))
);`

const createCouponsTable = `
CREATE TABLE IF NOT EXISTS coupons (
    name VARCHAR(100) PRIMARY KEY,
    discount_percent NUMERIC(5,2) NOT NULL CHECK (discount_percent >= 0 AND discount_percent <= 100),
    expires_at TIMESTAMPTZ NOT NULL,
    min_purchase_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    used BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createPurchasesTable = `
CREATE TABLE IF NOT EXISTS purchases (
    id VARCHAR(36) PRIMARY KEY,
    client_id VARCHAR(36) NOT NULL,
    cart_id VARCHAR(36) NOT NULL,
    checkout_attempt_id VARCHAR(80) UNIQUE NOT NULL,
    preference_id VARCHAR(200) NOT NULL DEFAULT '',
    orders JSONB NOT NULL,
    total_price NUMERIC(14,2) NOT NULL,
    total_price_with_discount NUMERIC(14,2) NOT NULL,
    coupon_name VARCHAR(100) NOT NULL DEFAULT '',
    purchased_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_events_date_name ON events (event_date, name);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_one_active ON carts (client_id) WHERE status IN ('OPEN', 'PENDING_PAYMENT');
CREATE INDEX IF NOT EXISTS idx_carts_attempt ON carts (checkout_attempt_id) WHERE checkout_attempt_id <> '';
CREATE INDEX IF NOT EXISTS idx_carts_pending ON carts (checkout_started_at) WHERE status = 'PENDING_PAYMENT';
CREATE INDEX IF NOT EXISTS idx_purchases_client ON purchases (client_id, purchased_at DESC);`
