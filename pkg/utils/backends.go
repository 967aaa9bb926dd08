// Package utils opens the optional external backends of the API process.
package utils

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"auth-rotation/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned by openers whose backend has no host configured.
var ErrNotConfigured = errors.New("backend not configured")

// Backends holds the connections the process opened. Either field may be nil.
type Backends struct {
	UsersDB *sql.DB
	Redis   *redis.Client
}

// OpenBackends opens every backend cfg configures and skips the rest.
// On error, anything already opened is closed.
func OpenBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*Backends, error) {
	if log == nil {
		log = slog.Default()
	}
	b := &Backends{}

	db, err := OpenUsersDB(ctx, cfg)
	switch {
	case errors.Is(err, ErrNotConfigured):
		log.Info("users db not configured, using demo directory")
	case err != nil:
		return nil, err
	default:
		b.UsersDB = db
	}

	rdb, err := OpenLimiterRedis(ctx, cfg)
	switch {
	case errors.Is(err, ErrNotConfigured):
		log.Info("redis not configured, login throttling disabled")
	case err != nil:
		_ = b.Close()
		return nil, err
	default:
		b.Redis = rdb
	}
	return b, nil
}

func (b *Backends) Close() error {
	var errs []error
	if b.UsersDB != nil {
		errs = append(errs, b.UsersDB.Close())
	}
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
	}
	return errors.Join(errs...)
}
