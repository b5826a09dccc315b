// Package dbtest opens in-memory sqlite databases carrying the production
// schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		is_test_account BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id BIGINT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		data_gb NUMERIC NOT NULL,
		validity_days INTEGER NOT NULL,
		price_amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		plan_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_provider TEXT,
		payment_reference TEXT,
		amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		paid_at TIMESTAMP,
		partner_order_ref TEXT,
		iccid TEXT,
		transaction_ref TEXT,
		smdp_address TEXT,
		activation_code TEXT,
		install_url TEXT,
		provisioning_started_at TIMESTAMP,
		failure_reason TEXT,
		data_used_bytes BIGINT NOT NULL DEFAULT 0,
		data_remaining_bytes BIGINT NOT NULL DEFAULT 0 CHECK (data_remaining_bytes >= 0),
		bonus_bytes BIGINT NOT NULL DEFAULT 0,
		usage_updated_at TIMESTAMP,
		is_topup BOOLEAN NOT NULL DEFAULT FALSE,
		parent_order_id BIGINT,
		is_test_account BOOLEAN NOT NULL DEFAULT FALSE,
		activation_source TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		activated_at TIMESTAMP,
		completed_at TIMESTAMP,
		expired_at TIMESTAMP,
		refunded_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_partner_order_ref ON orders (partner_order_ref) WHERE partner_order_ref IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS notification_receipts (
		id BIGINT PRIMARY KEY,
		source TEXT NOT NULL,
		notification_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		order_id BIGINT,
		outcome TEXT NOT NULL DEFAULT 'pending',
		payload TEXT NOT NULL DEFAULT '{}',
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,
	// SQLite requires an explicit unique index for ON CONFLICT to work.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_notification_receipts_source_id ON notification_receipts (source, notification_id)`,
	`CREATE TABLE IF NOT EXISTS commission_entries (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_entries_order_kind ON commission_entries (order_id, kind)`,
	`CREATE TABLE IF NOT EXISTS bonus_credits (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		bytes BIGINT NOT NULL,
		reason TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS operators (
		user_id BIGINT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Open returns a fresh shared-cache in-memory database with every table
// created. Each call gets its own database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedUser inserts a user row.
func SeedUser(t testing.TB, db *gorm.DB, id int64, email string, isTest bool) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO users (id, email, is_test_account, created_at) VALUES (?, ?, ?, ?)`,
		id, email, isTest, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// SeedPlan inserts a plan row.
func SeedPlan(t testing.TB, db *gorm.DB, id int64, sku string, dataGB float64, validityDays int) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO plans (id, sku, name, data_gb, validity_days, price_amount, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sku, sku, dataGB, validityDays, 1000, "USD", time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}
