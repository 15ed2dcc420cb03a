package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'STAFF',
			pin VARCHAR(255),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS tariff_types (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			default_cost NUMERIC(10,2) NOT NULL DEFAULT 0,
			cost_first_period NUMERIC(10,2) NOT NULL DEFAULT 0,
			cost_next_period NUMERIC(10,2) NOT NULL DEFAULT 0,
			period_minutes INT NOT NULL DEFAULT 60,
			tolerance_minutes INT NOT NULL DEFAULT 15,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS entry_types (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			default_tariff_id VARCHAR(36) REFERENCES tariff_types(id),
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			should_print_ticket BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS pension_subscribers (
			id VARCHAR(36) PRIMARY KEY,
			folio BIGINT,
			plate VARCHAR(20),
			name VARCHAR(255),
			entry_type_id VARCHAR(36),
			monthly_fee NUMERIC(10,2) NOT NULL DEFAULT 0,
			entry_date BIGINT,
			paid_until BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS pension_payments (
			id VARCHAR(36) PRIMARY KEY,
			subscriber_id VARCHAR(36) NOT NULL REFERENCES pension_subscribers(id) ON DELETE CASCADE,
			amount NUMERIC(10,2) NOT NULL,
			payment_date BIGINT NOT NULL,
			coverage_start_date BIGINT NOT NULL,
			coverage_end_date BIGINT NOT NULL,
			notes TEXT,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS expense_categories (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id VARCHAR(36) PRIMARY KEY,
			description TEXT NOT NULL,
			amount NUMERIC(10,2) NOT NULL,
			category VARCHAR(255) NOT NULL,
			expense_date BIGINT NOT NULL,
			user_id VARCHAR(36),
			is_synced BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS parking_records (
			id VARCHAR(36) PRIMARY KEY,
			folio BIGINT,
			plate VARCHAR(20) NOT NULL,
			description TEXT,
			entry_type_id VARCHAR(36),
			entry_user_id VARCHAR(36),
			entry_time BIGINT NOT NULL,
			exit_time BIGINT,
			cost NUMERIC(10,2),
			tariff_type_id VARCHAR(36),
			exit_user_id VARCHAR(36),
			notes TEXT,
			is_synced BOOLEAN NOT NULL DEFAULT FALSE,
			pension_subscriber_id VARCHAR(36),
			amount_paid NUMERIC(10,2),
			payment_status VARCHAR(10) NOT NULL DEFAULT 'PENDING'
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(64) PRIMARY KEY,
			setting_value VARCHAR(255) NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_parking_records_exit_time ON parking_records(exit_time)",
		"CREATE INDEX IF NOT EXISTS idx_parking_records_entry_time ON parking_records(entry_time)",
		"CREATE INDEX IF NOT EXISTS idx_parking_records_plate ON parking_records(plate)",
		"CREATE INDEX IF NOT EXISTS idx_pension_payments_subscriber ON pension_payments(subscriber_id)",
		"CREATE INDEX IF NOT EXISTS idx_pension_payments_date ON pension_payments(payment_date)",
		"CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date)",
	}

	for _, idx := range indexes {
		_, err := db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
