package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255),
		google_id VARCHAR(255) UNIQUE,
		role VARCHAR(20) NOT NULL DEFAULT 'customer',
		reset_token_hash VARCHAR(64),
		reset_token_expiry TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email))`,
	`CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users (reset_token_hash)`,

	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		image TEXT NOT NULL DEFAULT '',
		flavor VARCHAR(255) NOT NULL DEFAULT '',
		available BOOLEAN NOT NULL DEFAULT TRUE,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) REFERENCES users(id),
		guest_name VARCHAR(255),
		guest_email VARCHAR(255),
		guest_phone VARCHAR(50),
		subtotal_cents BIGINT NOT NULL,
		delivery_fee_cents BIGINT NOT NULL DEFAULT 0,
		total_cents BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		reception_mode VARCHAR(20) NOT NULL,
		pickup_location VARCHAR(50),
		delivery_city VARCHAR(50),
		delivery_street VARCHAR(255),
		delivery_postal_code VARCHAR(20),
		delivery_instructions TEXT,
		reception_date VARCHAR(10) NOT NULL,
		reception_time VARCHAR(5) NOT NULL,
		payment_method VARCHAR(20) NOT NULL,
		payment_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		payment_intent_id VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + paymentIntentIndex + ` ON orders (payment_intent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_guest_email ON orders (lower(guest_email)) WHERE user_id IS NULL`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		box_index INTEGER NOT NULL,
		box_size INTEGER NOT NULL,
		box_price_cents BIGINT NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		product_name VARCHAR(255) NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity >= 1)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items (order_id)`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) REFERENCES users(id),
		author_name VARCHAR(255) NOT NULL,
		email VARCHAR(255),
		product_id VARCHAR(64),
		text VARCHAR(1000) NOT NULL,
		rating INTEGER CHECK (rating BETWEEN 1 AND 5),
		photos TEXT[] NOT NULL DEFAULT '{}',
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		reply_text VARCHAR(1000),
		reply_admin_id VARCHAR(64),
		replied_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS gallery_photos (
		id VARCHAR(64) PRIMARY KEY,
		image TEXT NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		description VARCHAR(500) NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS pickup_schedules (
		id VARCHAR(64) PRIMARY KEY,
		location VARCHAR(50) NOT NULL,
		date VARCHAR(10) NOT NULL,
		times TEXT[] NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (location, date)
	)`,

	`CREATE TABLE IF NOT EXISTS box_pricing (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		price_4_cents BIGINT NOT NULL,
		price_6_cents BIGINT NOT NULL,
		price_12_cents BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// CreateSchema creates any missing tables and indexes.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
