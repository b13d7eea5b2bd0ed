// Package app wires configuration, storage and services into one application context.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/billapi"
	"github.com/billix-app/billix/internal/config"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/limiter"
	"github.com/billix-app/billix/internal/purchase"
	"github.com/billix-app/billix/internal/repository/postgres"
	"github.com/billix-app/billix/internal/service"
	"github.com/billix-app/billix/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrNoDatabase is returned by RequireDB when no DSN is configured.
var ErrNoDatabase = errors.New("BILLIX_DATABASE_URL is required for this command")

// App holds every constructed collaborator. Nothing in it is global.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *postgres.DB
	Sessions *session.FileStore
	Platform purchase.Platform
	API      *billapi.Client

	Entitlements *service.EntitlementService
	RateLimit    *service.RateLimitService
	Tokens       *service.TokenService
	Settings     *service.SettingsService
	Rewards      *service.RewardsService

	now func() time.Time
}

// NewLogger builds a development or production zap logger at cfg.LogLevel.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// New constructs the application. The database pool is created only when a
// DSN is configured; pgxpool connects lazily.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		Cfg:      cfg,
		Log:      log,
		Sessions: session.NewFileStore(cfg.ConfigDir, cfg.SessionPassphrase),
		API:      billapi.New(cfg.APIBaseURL, log.Named("billapi")),
		now:      time.Now,
	}

	platform, err := newPlatform(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Platform = platform

	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.wire()
	}
	return a, nil
}

// NewWithDB constructs the application over an existing pool.
func NewWithDB(cfg *config.Config, log *zap.Logger, db *postgres.DB, platform purchase.Platform) *App {
	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Sessions: session.NewFileStore(cfg.ConfigDir, cfg.SessionPassphrase),
		Platform: platform,
		API:      billapi.New(cfg.APIBaseURL, log.Named("billapi")),
		now:      time.Now,
	}
	a.wire()
	return a
}

func (a *App) wire() {
	cfg, log := a.Cfg, a.Log
	profiles := postgres.NewProfileRepo(a.DB)

	a.Entitlements = service.NewEntitlementService(a.Platform, profiles, log.Named("entitlement"))
	a.RateLimit = service.NewRateLimitService(
		limiter.NewPG(a.DB),
		a.Entitlements,
		service.RateLimitConfig{
			FreeWeeklyLimit:  cfg.FreeWeeklyLimit,
			PrimeWeeklyLimit: cfg.PrimeWeeklyLimit,
			WarnRatio:        cfg.WarnRatio,
			CritRatio:        cfg.CritRatio,
		},
		log.Named("ratelimit"))
	tc := service.DefaultTokenConfig()
	tc.FreeMonthlyAllowance = cfg.FreeMonthlyTokens
	tc.PackSize = cfg.TokenPackSize
	a.Tokens = service.NewTokenService(postgres.NewTokenRepo(a.DB), a.Entitlements, a.Platform, tc, log.Named("tokens"))
	a.Settings = service.NewSettingsService(profiles, cfg.SettingsRetryBase, log.Named("settings"))
	a.Rewards = service.NewRewardsService(postgres.NewRewardsRepo(a.DB), log.Named("rewards"))
}

func newPlatform(cfg *config.Config, log *zap.Logger) (purchase.Platform, error) {
	if cfg.StoreRootPEM == "" {
		return purchase.NoPlatform{}, nil
	}
	roots, err := purchase.LoadRoots(cfg.StoreRootPEM)
	if err != nil {
		return nil, fmt.Errorf("store roots: %w", err)
	}
	v := purchase.NewVerifier(roots, cfg.BundleID)
	return purchase.NewReceiptStore(cfg.ReceiptsDir, v, log.Named("receipts")), nil
}

// RequireDB reports ErrNoDatabase when services are not wired.
func (a *App) RequireDB() error {
	if a.DB == nil {
		return ErrNoDatabase
	}
	return nil
}

// Login verifies an access token and stores the session.
func (a *App) Login(token string) (auth.Session, error) {
	var (
		s   auth.Session
		err error
	)
	if a.Cfg.JWTSecret != "" {
		s, err = auth.Parse(token, []byte(a.Cfg.JWTSecret))
	} else {
		s, err = auth.ParseUnverified(token)
	}
	if err != nil {
		return auth.Session{}, err
	}
	if s.Expired(a.now()) {
		return auth.Session{}, fmt.Errorf("%w: token expired", errs.ErrNotAuthenticated)
	}
	if err := a.Sessions.Save(s); err != nil {
		return auth.Session{}, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// Logout removes the stored session.
func (a *App) Logout() error { return a.Sessions.Clear() }

// SessionContext attaches the stored session to ctx.
func (a *App) SessionContext(ctx context.Context) (context.Context, error) {
	s, err := a.Sessions.Load(a.now())
	if err != nil {
		return ctx, err
	}
	return auth.WithSession(ctx, s), nil
}

// OptionalSessionContext attaches the stored session when one is available.
func (a *App) OptionalSessionContext(ctx context.Context) context.Context {
	if sctx, err := a.SessionContext(ctx); err == nil {
		return sctx
	}
	return ctx
}

// Close releases the database pool.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
