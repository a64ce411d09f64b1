package database

import (
	"context"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT UNSIGNED NOT NULL,
		movie_title VARCHAR(255) NOT NULL DEFAULT '',
		starts_at DATETIME(3) NOT NULL,
		INDEX idx_showtimes_room (room_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seats (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT UNSIGNED NOT NULL,
		row_label VARCHAR(8) NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		seat_type VARCHAR(16) NOT NULL DEFAULT 'STANDARD',
		UNIQUE KEY uq_seats_room_pos (room_id, row_label, seat_number)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		showtime_id BIGINT UNSIGNED NOT NULL,
		seat_id BIGINT UNSIGNED NOT NULL,
		holder_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		state VARCHAR(16) NOT NULL,
		order_id BIGINT UNSIGNED NULL,
		created_at DATETIME(3) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_reservations_seat (showtime_id, seat_id),
		INDEX idx_reservations_expiry (state, expires_at),
		INDEX idx_reservations_holder (showtime_id, holder_id),
		INDEX idx_reservations_order (order_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_code VARCHAR(40) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		showtime_id BIGINT UNSIGNED NOT NULL,
		subtotal BIGINT NOT NULL,
		loyalty_discount BIGINT NOT NULL DEFAULT 0,
		promotion_discount BIGINT NOT NULL DEFAULT 0,
		points_used BIGINT NOT NULL DEFAULT 0,
		points_earned BIGINT NOT NULL DEFAULT 0,
		promotion_id BIGINT UNSIGNED NULL,
		total_amount BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		booking_expires_at DATETIME(3) NOT NULL,
		paid_at DATETIME(3) NULL,
		cancel_reason VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_orders_code (order_code),
		INDEX idx_orders_pending (status, booking_expires_at),
		INDEX idx_orders_user (user_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		kind VARCHAR(8) NOT NULL,
		seat_id BIGINT UNSIGNED NULL,
		addon_id BIGINT UNSIGNED NULL,
		quantity INT NOT NULL,
		unit_price BIGINT NOT NULL,
		line_total BIGINT NOT NULL,
		INDEX idx_order_items_order (order_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id CHAR(36) PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		showtime_id BIGINT UNSIGNED NOT NULL,
		seat_id BIGINT UNSIGNED NOT NULL,
		price BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		fingerprint CHAR(64) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_tickets_order_seat (order_id, seat_id),
		UNIQUE KEY uq_tickets_fingerprint (fingerprint)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		provider VARCHAR(32) NOT NULL,
		txn_ref VARCHAR(64) NOT NULL,
		transaction_no VARCHAR(64) NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		response_code VARCHAR(8) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		raw_payload TEXT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		INDEX idx_payments_order (order_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(64) NOT NULL,
		discount_type VARCHAR(16) NOT NULL,
		discount_value BIGINT NOT NULL,
		max_discount BIGINT NOT NULL DEFAULT 0,
		min_order_amount BIGINT NOT NULL DEFAULT 0,
		usage_limit INT NOT NULL DEFAULT 0,
		used_count INT NOT NULL DEFAULT 0,
		per_user_limit INT NOT NULL DEFAULT 0,
		starts_at DATETIME(3) NOT NULL,
		ends_at DATETIME(3) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		UNIQUE KEY uq_promotions_code (code)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS promotion_usages (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		promotion_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		order_id BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_promotion_usages_order (order_id),
		INDEX idx_promotion_usages_user (promotion_id, user_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS loyalty_tiers (
		name VARCHAR(16) PRIMARY KEY,
		` + "`rank`" + ` INT NOT NULL,
		min_yearly_spent BIGINT NOT NULL,
		earn_rate_bp INT NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS loyalty_accounts (
		user_id BIGINT UNSIGNED PRIMARY KEY,
		points BIGINT NOT NULL DEFAULT 0,
		tier VARCHAR(16) NOT NULL DEFAULT 'BRONZE',
		total_spent BIGINT NOT NULL DEFAULT 0,
		yearly_spent BIGINT NOT NULL DEFAULT 0,
		spent_year INT NOT NULL DEFAULT 0,
		updated_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS loyalty_transactions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		order_id BIGINT UNSIGNED NOT NULL,
		kind VARCHAR(16) NOT NULL,
		points BIGINT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_loyalty_tx_user (user_id)
	) ENGINE=InnoDB`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL,
		movie_title TEXT NOT NULL DEFAULT '',
		starts_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL,
		row_label TEXT NOT NULL,
		seat_number INTEGER NOT NULL,
		seat_type TEXT NOT NULL DEFAULT 'STANDARD',
		UNIQUE (room_id, row_label, seat_number)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		showtime_id INTEGER NOT NULL,
		seat_id INTEGER NOT NULL,
		holder_id INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		order_id INTEGER NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (showtime_id, seat_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations (state, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_order ON reservations (order_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_code TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		showtime_id INTEGER NOT NULL,
		subtotal INTEGER NOT NULL,
		loyalty_discount INTEGER NOT NULL DEFAULT 0,
		promotion_discount INTEGER NOT NULL DEFAULT 0,
		points_used INTEGER NOT NULL DEFAULT 0,
		points_earned INTEGER NOT NULL DEFAULT 0,
		promotion_id INTEGER NULL,
		total_amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		booking_expires_at DATETIME NOT NULL,
		paid_at DATETIME NULL,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders (status, booking_expires_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		seat_id INTEGER NULL,
		addon_id INTEGER NULL,
		quantity INTEGER NOT NULL,
		unit_price INTEGER NOT NULL,
		line_total INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		order_id INTEGER NOT NULL,
		showtime_id INTEGER NOT NULL,
		seat_id INTEGER NOT NULL,
		price INTEGER NOT NULL,
		status TEXT NOT NULL,
		fingerprint TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (order_id, seat_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		txn_ref TEXT NOT NULL,
		transaction_no TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL,
		response_code TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		raw_payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		discount_type TEXT NOT NULL,
		discount_value INTEGER NOT NULL,
		max_discount INTEGER NOT NULL DEFAULT 0,
		min_order_amount INTEGER NOT NULL DEFAULT 0,
		usage_limit INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		per_user_limit INTEGER NOT NULL DEFAULT 0,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS promotion_usages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		promotion_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_tiers (
		name TEXT PRIMARY KEY,
		"rank" INTEGER NOT NULL,
		min_yearly_spent INTEGER NOT NULL,
		earn_rate_bp INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_accounts (
		user_id INTEGER PRIMARY KEY,
		points INTEGER NOT NULL DEFAULT 0,
		tier TEXT NOT NULL DEFAULT 'BRONZE',
		total_spent INTEGER NOT NULL DEFAULT 0,
		yearly_spent INTEGER NOT NULL DEFAULT 0,
		spent_year INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		points INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

type tierSeed struct {
	name     string
	rank     int
	minSpent int64
	rateBP   int
}

var defaultTiers = []tierSeed{
	{"BRONZE", 0, 0, 100},
	{"SILVER", 1, 5_000_000, 125},
	{"GOLD", 2, 15_000_000, 150},
	{"PLATINUM", 3, 30_000_000, 200},
}

// Migrate creates the schema for the current dialect and seeds the loyalty
// tier table when it is empty.  Safe to run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.driver == DriverMySQL {
		stmts = mysqlSchema
	}
	for i, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}

	var n int
	if err := d.GetContext(ctx, &n, `SELECT COUNT(*) FROM loyalty_tiers`); err != nil {
		return fmt.Errorf("count tiers: %w", err)
	}
	if n > 0 {
		return nil
	}
	rankCol := d.RankColumn()
	for _, t := range defaultTiers {
		_, err := d.ExecContext(ctx,
			`INSERT INTO loyalty_tiers (name, `+rankCol+`, min_yearly_spent, earn_rate_bp) VALUES (?, ?, ?, ?)`,
			t.name, t.rank, t.minSpent, t.rateBP)
		if err != nil {
			return fmt.Errorf("seed tier %s: %w", t.name, err)
		}
	}
	return nil
}

// RankColumn quotes the reserved "rank" column for the current dialect.
func (d *DB) RankColumn() string {
	if d.driver == DriverMySQL {
		return "`rank`"
	}
	return `"rank"`
}
