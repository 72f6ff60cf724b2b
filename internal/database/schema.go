package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/storefront-auth/internal/repository"
)

// Live-email uniqueness: MySQL has no partial indexes, so a generated column
// that is NULL for deleted rows carries the unique key instead.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) NOT NULL PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		full_name VARCHAR(100) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at DATETIME(6) NULL,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_token_hash CHAR(64) NULL,
		verification_expires_at DATETIME(6) NULL,
		reset_token_hash CHAR(64) NULL,
		reset_expires_at DATETIME(6) NULL,
		failed_logins INT NOT NULL DEFAULT 0,
		locked_until DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		live_email VARCHAR(255) AS (IF(deleted_at IS NULL, email, NULL)) STORED,
		UNIQUE KEY ux_users_live_email (live_email),
		KEY ix_users_verification (verification_token_hash),
		KEY ix_users_reset (reset_token_hash),
		KEY ix_users_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id CHAR(26) NOT NULL PRIMARY KEY,
		user_id CHAR(36) NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		KEY ix_refresh_user (user_id, revoked),
		KEY ix_refresh_hash (token_hash),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		full_name VARCHAR(100) NOT NULL,
		password_hash TEXT NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at TIMESTAMPTZ NULL,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_token_hash CHAR(64) NULL,
		verification_expires_at TIMESTAMPTZ NULL,
		reset_token_hash CHAR(64) NULL,
		reset_expires_at TIMESTAMPTZ NULL,
		failed_logins INTEGER NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_live_email ON users (email) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS ix_users_verification ON users (verification_token_hash)`,
	`CREATE INDEX IF NOT EXISTS ix_users_reset ON users (reset_token_hash)`,
	`CREATE INDEX IF NOT EXISTS ix_users_created ON users (created_at)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id CHAR(26) PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		token_hash CHAR(64) NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_refresh_user ON refresh_tokens (user_id, revoked)`,
	`CREATE INDEX IF NOT EXISTS ix_refresh_hash ON refresh_tokens (token_hash)`,
}

// Schema returns the DDL statements for d, in execution order.
func Schema(d repository.Dialect) []string {
	if d == repository.Postgres {
		return postgresSchema
	}
	return mysqlSchema
}

// Migrate creates the tables the SQL store needs if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, d repository.Dialect) error {
	for i, stmt := range Schema(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
