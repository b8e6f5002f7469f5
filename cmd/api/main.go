package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/biometric"
	"attendtrack/internal/config"
	"attendtrack/internal/httpapi"
	"attendtrack/internal/marks"
	"attendtrack/internal/metrics"
	"attendtrack/internal/queue"
	"attendtrack/internal/store"
	"attendtrack/internal/store/memstore"
	"attendtrack/internal/student"
	"attendtrack/internal/subject"
)

func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

// stores groups the persistence of every service.
type stores struct {
	students   student.Store
	attendance attendance.Store
	marks      marks.Store
	biometric  biometric.Store
	audit      audit.Store
}

func openStores(ctx context.Context, cfg config.App, logger *slog.Logger) (stores, *store.DB, error) {
	if cfg.StorageBackend == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		m := memstore.New()
		return stores{m.Students(), m.Attendance(), m.Marks(), m.Biometric(), m.Audit()}, nil, nil
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return stores{}, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return stores{
		students:   student.NewRepository(db.Client),
		attendance: attendance.NewRepository(db.Client),
		marks:      marks.NewRepository(db.Client),
		biometric:  biometric.NewRepository(db.Client),
		audit:      audit.NewRepository(db.Client),
	}, db, nil
}

func loadClassifier(cfg config.App, logger *slog.Logger) (*subject.Classifier, error) {
	if cfg.CategoryRulesPath == "" {
		return subject.NewClassifier(subject.DefaultRules), nil
	}
	rules, err := subject.LoadRules(cfg.CategoryRulesPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded category rules", "path", cfg.CategoryRulesPath, "rules", len(rules))
	return subject.NewClassifier(rules), nil
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	classifier, err := loadClassifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("category rules: %w", err)
	}

	var redisClient *store.Redis
	if cfg.ChallengeBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
	}

	var challenges biometric.ChallengeStore
	if cfg.ChallengeBackend == "memory" {
		challenges = biometric.NewMemoryChallenges()
	} else {
		challenges = biometric.NewRedisChallenges(redisClient.Client, "")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// Nothing else can drain a process-local queue.
		consumer := audit.NewConsumer(q, st.audit, logger.With("component", "audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "err", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	validate := validator.New()
	health := map[string]httpapi.HealthCheck{}
	if db != nil {
		health["db"] = db.Healthy
	}
	if redisClient != nil {
		health["redis"] = redisClient.Healthy
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Students:   student.NewService(st.students, validate),
		Attendance: attendance.NewService(st.attendance, classifier, cfg.Location()),
		Marks:      marks.NewService(st.marks),
		Biometric:  biometric.NewService(st.biometric, challenges, cfg.ChallengeTTL),
		Audit:      audit.NewPublisher(q, logger.With("component", "audit")),
		AuditLog:   st.audit,
		Metrics:    metrics.New(),
		Issuer:     auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Validate:   validate,
		Logger:     logger,
		Health:     health,
	}, httpapi.Options{
		SessionSecret:        cfg.SessionSecret,
		SessionMaxAge:        cfg.SessionMaxAge,
		SecureCookies:        cfg.Production(),
		AllowedOrigins:       cfg.AllowedOrigins,
		RateLimitPerMin:      cfg.RateLimitPerMin,
		LoginRateLimitPerMin: cfg.LoginRateLimitPerMin,
		AdminUsername:        cfg.AdminUsername,
		AdminPasswordHash:    cfg.AdminPasswordHash,
	})
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin login is disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "storage", cfg.StorageBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "err", err)
	}
	logger.Info("server exited")
	return nil
}
