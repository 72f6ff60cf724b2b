package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iliyamo/storefront-auth/internal/config"
	"github.com/iliyamo/storefront-auth/internal/repository"
)

// Open connects to the configured SQL backend and verifies the connection.
// It returns the dialect the repositories should use with it.
func Open(cfg config.DB) (*sql.DB, repository.Dialect, error) {
	d, err := repository.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(d.DriverName(), cfg.DSN())
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", d, err)
	}

	// Pool settings
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", d, err)
	}
	return db, d, nil
}
