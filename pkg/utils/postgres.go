package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"auth-rotation/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizing for the users directory. Only logins touch it, so it stays small.
const (
	usersMaxOpenConns    = 8
	usersMaxIdleConns    = 4
	usersConnMaxLifetime = 30 * time.Minute
	usersConnMaxIdleTime = 5 * time.Minute
	pingTimeout          = 5 * time.Second
)

// OpenUsersDB opens the users directory database through the pgx stdlib driver.
// The DSN carries the password and must not be logged.
func OpenUsersDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if !cfg.HasDatabase() {
		return nil, ErrNotConfigured
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}
	db.SetMaxOpenConns(usersMaxOpenConns)
	db.SetMaxIdleConns(usersMaxIdleConns)
	db.SetConnMaxLifetime(usersConnMaxLifetime)
	db.SetConnMaxIdleTime(usersConnMaxIdleTime)

	if err := PingDB(ctx, db, pingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func PingDB(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("users db ping: %w", err)
	}
	return nil
}
