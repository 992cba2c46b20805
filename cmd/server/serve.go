package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gsarma/portier/internal/api"
	"github.com/gsarma/portier/internal/attempt"
	"github.com/gsarma/portier/internal/audit"
	"github.com/gsarma/portier/internal/config"
	"github.com/gsarma/portier/internal/crypto"
	"github.com/gsarma/portier/internal/logger"
	"github.com/gsarma/portier/internal/login"
	"github.com/gsarma/portier/internal/metrics"
	"github.com/gsarma/portier/internal/oauth"
	"github.com/gsarma/portier/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the login HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	creds := cfg.CredentialStore()
	registry := oauth.DefaultRegistry()
	for _, d := range registry.List() {
		if _, err := creds.CredentialsFor(d.ID); err != nil {
			log.Warn("provider not configured; its logins will be refused", map[string]any{
				logger.FieldProvider: string(d.ID),
				"reason":             err.Error(),
			})
		}
	}

	sealer, err := crypto.NewSealer(cfg.SessionEncryptionKey.Reveal())
	if err != nil {
		return err
	}
	sessions, err := session.NewIssuer(session.Options{
		SigningSecret: []byte(cfg.SessionSigningSecret.Reveal()),
		Sealer:        sealer,
		TTL:           cfg.SessionTTL,
		Secure:        cfg.CookieSecure,
	})
	if err != nil {
		return err
	}

	attempts, closeAttempts, err := openAttemptStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAttempts()

	recorder, closeAudit, err := openAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc := login.NewService(login.Deps{
		Registry:    registry,
		Credentials: creds,
		Attempts:    attempts,
		Exchanger:   oauth.NewExchanger(http.DefaultTransport, cfg.OutboundTimeout),
		Normalizer:  oauth.NewNormalizer(registry, http.DefaultTransport, cfg.OutboundTimeout),
		Sessions:    sessions,
		Audit:       recorder,
		Logger:      log,
		BaseURL:     cfg.ApplicationURL,
		AttemptTTL:  cfg.LoginAttemptTTL,
	})
	h := api.NewHandler(svc, sessions, log, api.Options{
		CookieSecure: cfg.CookieSecure,
		SuccessPath:  cfg.LoginSuccessPath,
		FailurePath:  cfg.LoginFailurePath,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), log.Middleware())
	api.RegisterRoutes(router, h, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", map[string]any{"addr": srv.Addr, "application_url": cfg.ApplicationURL})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openAttemptStore uses Redis when REDIS_ADDR is set so attempts survive
// across instances, and process memory otherwise.
func openAttemptStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (attempt.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("login attempts kept in memory")
		return attempt.NewMemoryStore(cfg.LoginAttemptTTL, time.Minute), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword.Reveal(),
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	log.Info("login attempts kept in redis", map[string]any{"addr": cfg.RedisAddr})
	return attempt.NewRedisStore(client), func() { client.Close() }, nil
}

// openAudit connects the login audit log when DATABASE_URL is set.
func openAudit(ctx context.Context, cfg *config.Config, log *logger.Logger) (audit.Recorder, func(), error) {
	if cfg.DatabaseURL == "" {
		return audit.Nop{}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL.Reveal())
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit database: %w", err)
	}
	rec := audit.NewPostgresRecorder(pool)
	if err := rec.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("login audit enabled")
	return rec, pool.Close, nil
}
