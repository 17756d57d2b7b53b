package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS services (
		id               text PRIMARY KEY,
		name             text NOT NULL,
		description      text,
		category         text NOT NULL,
		base_price       numeric(10,2) NOT NULL CHECK (base_price >= 0),
		price_per_kg     numeric(10,2),
		price_per_unit   numeric(10,2),
		price_type       text NOT NULL CHECK (price_type IN ('per_piece','per_kg')),
		turnaround_hours int NOT NULL DEFAULT 48,
		is_active        boolean NOT NULL DEFAULT true,
		created_at       timestamptz NOT NULL DEFAULT now(),
		updated_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id                    uuid PRIMARY KEY,
		user_id               text NOT NULL,
		label                 text,
		address_line1         text NOT NULL,
		address_line2         text,
		area                  text NOT NULL,
		city                  text NOT NULL DEFAULT 'Karachi',
		postal_code           text,
		delivery_instructions text,
		is_primary            boolean NOT NULL DEFAULT false,
		created_at            timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS addresses_user_idx ON addresses(user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS addresses_one_primary ON addresses(user_id) WHERE is_primary`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id                  text PRIMARY KEY,
		code                text NOT NULL UNIQUE,
		description         text,
		discount_type       text NOT NULL CHECK (discount_type IN ('percentage','fixed')),
		discount_value      numeric(10,2) NOT NULL,
		min_order_amount    numeric(10,2) NOT NULL DEFAULT 0,
		max_discount_amount numeric(10,2),
		usage_limit         int,
		times_used          int NOT NULL DEFAULT 0,
		valid_from          timestamptz NOT NULL DEFAULT now(),
		valid_until         timestamptz NOT NULL,
		is_active           boolean NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                      uuid PRIMARY KEY,
		order_number            text NOT NULL UNIQUE,
		user_id                 text,
		guest_name              text,
		guest_email             text,
		guest_phone             text,
		pickup_address_id       uuid REFERENCES addresses(id) ON DELETE SET NULL,
		delivery_address_id     uuid REFERENCES addresses(id) ON DELETE SET NULL,
		pickup_address          jsonb NOT NULL,
		delivery_address        jsonb NOT NULL,
		subtotal                numeric(10,2) NOT NULL,
		delivery_fee            numeric(10,2) NOT NULL DEFAULT 0,
		discount_amount         numeric(10,2) NOT NULL DEFAULT 0,
		total_amount            numeric(10,2) NOT NULL CHECK (total_amount >= 0),
		promo_code              text,
		status                  text NOT NULL DEFAULT 'pending',
		payment_method          text NOT NULL DEFAULT 'cash',
		payment_status          text NOT NULL DEFAULT 'pending',
		preferred_pickup_time   timestamptz,
		preferred_delivery_time timestamptz,
		actual_pickup_time      timestamptz,
		actual_delivery_time    timestamptz,
		special_instructions    text,
		assigned_driver_id      text,
		created_at              timestamptz NOT NULL DEFAULT now(),
		updated_at              timestamptz NOT NULL DEFAULT now(),
		CHECK (user_id IS NOT NULL OR guest_phone IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders(status)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id           uuid PRIMARY KEY,
		order_id     uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		service_id   text NOT NULL REFERENCES services(id),
		service_name text NOT NULL,
		quantity     int NOT NULL CHECK (quantity >= 1),
		weight_kg    numeric(6,2) CHECK (weight_kg IS NULL OR weight_kg >= 0.5),
		unit_price   numeric(10,2) NOT NULL,
		total_price  numeric(10,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items(order_id)`,
	`CREATE TABLE IF NOT EXISTS order_tracking (
		id         uuid PRIMARY KEY,
		order_id   uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		status     text NOT NULL,
		notes      text,
		updated_by text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_tracking_order_idx ON order_tracking(order_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         uuid PRIMARY KEY,
		event_id   text NOT NULL UNIQUE,
		user_id    text NOT NULL,
		order_id   uuid REFERENCES orders(id) ON DELETE CASCADE,
		title      text NOT NULL,
		message    text NOT NULL,
		type       text NOT NULL,
		is_read    boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications(user_id, created_at DESC)`,
}

// Migrate creates the tables the repositories expect.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
