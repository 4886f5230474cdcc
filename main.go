package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	accountsapp "plant-console/internal/accounts/application"
	apihttp "plant-console/internal/api/http"
	"plant-console/internal/audit"
	"plant-console/internal/auth"
	"plant-console/internal/config"
	"plant-console/internal/export"
	listingapp "plant-console/internal/listing/application"
	"plant-console/internal/listing/infrastructure/upstream"
	"plant-console/internal/observability/metrics"
	"plant-console/internal/qbits"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("console stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, auditLogger, err := openAudit(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	client, err := qbits.NewClient(cfg.Upstream.BaseURL,
		qbits.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		qbits.WithRateLimit(cfg.Upstream.RateLimit, cfg.Upstream.RateBurst),
		qbits.WithLogger(logger.Named("qbits")),
	)
	if err != nil {
		return fmt.Errorf("qbits client: %w", err)
	}

	screens, err := listingapp.LoadScreens(cfg.ScreensFile)
	if err != nil {
		return err
	}
	views, err := listingapp.NewViewService(screens, upstream.NewSource(client, logger.Named("source")),
		listingapp.WithLogger(logger.Named("views")),
	)
	if err != nil {
		return fmt.Errorf("view service: %w", err)
	}
	accountService, err := accountsapp.NewService(client, views, auditLogger, logger.Named("accounts"))
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	exportService := export.NewService(client, logger.Named("export"))

	sessions := auth.NewSessionStore(auth.WithSessionTTL(cfg.Auth.SessionTTL))
	secret := []byte(cfg.Auth.JWTSecret)
	handler, err := apihttp.NewHandler(apihttp.Deps{
		Views:     views,
		Accounts:  accountService,
		Exports:   exportService,
		Upstream:  client,
		Sessions:  sessions,
		JWTSecret: secret,
		Audit:     auditLogger,
		Logger:    logger.Named("api"),
	})
	if err != nil {
		return fmt.Errorf("api handler: %w", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/api/v1/login"}, nil)
	router := apihttp.Routes(handler, auth.NewMiddleware(secret, policy, sessions), logger.Named("http"))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.String("upstream", client.BaseURL()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepSessions(gctx, sessions, views, cfg.SweepInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("http shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openAudit connects the audit store when a database is configured and falls
// back to logging entries otherwise.
func openAudit(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, audit.Logger, error) {
	if databaseURL == "" {
		logger.Info("DATABASE_URL not set, audit entries go to the log")
		return nil, audit.NewZapLogger(logger), nil
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	repo := audit.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("audit schema: %w", err)
	}
	return db, repo, nil
}

// sweepSessions drops expired sessions and the views they held.
func sweepSessions(ctx context.Context, sessions *auth.SessionStore, views *listingapp.ViewService, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := sessions.Sweep()
			closed := 0
			for _, id := range expired {
				closed += views.Close(id)
			}
			if len(expired) > 0 {
				logger.Info("sessions expired", zap.Int("sessions", len(expired)), zap.Int("views", closed))
			}
		}
	}
}
