package main

import (
	"fmt"
	"log/slog"

	"auth-rotation/internal/audit"
	"auth-rotation/internal/config"
	"auth-rotation/internal/httpapi"
	"auth-rotation/internal/ratelimit"
	"auth-rotation/internal/refreshstore"
	"auth-rotation/internal/session"
	"auth-rotation/internal/token"
	"auth-rotation/internal/users"
	"auth-rotation/pkg/logger"
	"auth-rotation/pkg/utils"

	"github.com/gin-gonic/gin"
)

// app is the wired process graph. Keep construction here and business logic
// in internal packages.
type app struct {
	router  *gin.Engine
	records *refreshstore.MemoryStore
}

func newApp(cfg config.Config, b *utils.Backends, log *slog.Logger) (*app, error) {
	codec, err := token.NewCodec(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("credential codec: %w", err)
	}

	policy, err := session.ParseReusePolicy(cfg.Session.ReusePolicy)
	if err != nil {
		return nil, err
	}

	dir, err := newDirectory(b)
	if err != nil {
		return nil, err
	}

	limiter, err := newLimiter(cfg, b)
	if err != nil {
		return nil, err
	}

	records := refreshstore.NewMemoryStore()
	auditRepo := audit.NewMemoryRepo()

	authority, err := session.NewAuthority(codec, records, dir, session.Options{
		Policy:  policy,
		Limiter: limiter,
		Audit:   audit.NewService(auditRepo),
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	httpapi.Register(r, httpapi.Handlers{
		Session:    authority,
		Cookie:     cfg.Cookie,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		Records:    records,
		Audit:      auditRepo,
	}, cfg.App.DebugEndpoints)

	return &app{router: r, records: records}, nil
}

func newDirectory(b *utils.Backends) (users.Directory, error) {
	if b != nil && b.UsersDB != nil {
		return users.NewPostgresDirectory(b.UsersDB)
	}
	return users.NewMemoryDirectory(0, users.DemoAccounts()...)
}

func newLimiter(cfg config.Config, b *utils.Backends) (ratelimit.Limiter, error) {
	if b == nil || b.Redis == nil {
		return ratelimit.Noop{}, nil
	}
	return ratelimit.NewRedisLimiter(b.Redis, "login", cfg.Redis.LoginLimit, cfg.Redis.LoginWindow)
}
