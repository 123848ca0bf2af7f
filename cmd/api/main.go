package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/config"
	"github.com/ammonsd/activitytracking/internal/httpapi"
	"github.com/ammonsd/activitytracking/internal/obs"
	"github.com/ammonsd/activitytracking/internal/ratelimit"
	"github.com/ammonsd/activitytracking/internal/store/memory"
	"github.com/ammonsd/activitytracking/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is the union of store interfaces the services need.
type backend interface {
	auth.UserStore
	auth.RoleStore
	auth.PasswordHistoryStore
	auth.RevokedTokenStore
	httpapi.ReadyProbe
}

func main() {
	var cfgFile string
	root := &cobra.Command{
		Use:           "activitytracking-api",
		Short:         "Authentication and access control API for activity tracking",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	root.Flags().StringVarP(&cfgFile, "config", "c", "", "optional YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	// a missing or weak signing secret stops the process before anything listens
	if err := cfg.ValidateSecret(); err != nil {
		return fmt.Errorf("jwt secret: %w", err)
	}

	logger, err := obs.InitLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := obs.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, version); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer obs.FlushSentry()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, closeStore, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.NewTokenService(cfg.JWT.Secret,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithAccessTTL(cfg.JWT.AccessTTL),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL),
	)
	if err != nil {
		return err
	}
	revocations, err := auth.NewRevocationService(tokens, store)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store, tokens, revocations,
		auth.WithMaxFailedLogins(cfg.Auth.MaxFailedLogins),
		auth.WithLoginHashCost(cfg.Password.BcryptCost),
	)
	if err != nil {
		return err
	}
	enforcer, err := auth.NewEnforcer(store)
	if err != nil {
		return err
	}
	passwords, err := auth.NewPasswordService(store, store, store,
		auth.WithPolicy(cfg.PasswordPolicy()),
		auth.WithHashCost(cfg.Password.BcryptCost),
	)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, cfg, passwords, logger); err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:              svc,
		Enforcer:          enforcer,
		Passwords:         passwords,
		Limiter:           ratelimit.New(cfg.RateLimiter()),
		Ready:             store,
		Logger:            logger,
		Version:           version,
		DebugAccessDenied: cfg.Auth.DebugAccessDenied,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		return err
	}

	sweeper := auth.NewRevocationSweeper(revocations, cfg.Auth.CleanupInterval, logger.Named("revocations"), obs.ObservePurged)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweeper.Run(sweepCtx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func openBackend(cfg *config.Config, logger *zap.Logger) (backend, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory store; data is lost on restart")
		return memory.NewSeeded(), func() {}, nil
	}
	store, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func bootstrapAdmin(ctx context.Context, cfg *config.Config, passwords *auth.PasswordService, logger *zap.Logger) error {
	if cfg.Auth.BootstrapAdmin == "" {
		return nil
	}
	_, err := passwords.CreateUser(ctx, auth.NewUser{
		Username: cfg.Auth.BootstrapAdmin,
		Password: cfg.Auth.BootstrapPassword,
		Role:     auth.RoleAdmin,
	})
	switch {
	case err == nil:
		logger.Info("bootstrap admin created", zap.String("username", cfg.Auth.BootstrapAdmin))
	case errors.Is(err, auth.ErrAlreadyExists):
	default:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}
