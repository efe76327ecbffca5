// Package server собирает HTTP API: хранилище, сервисы, обработчики, middleware и маршруты.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iudanet/pmtool/internal/crypto"
	"github.com/iudanet/pmtool/internal/server/auth"
	"github.com/iudanet/pmtool/internal/server/config"
	"github.com/iudanet/pmtool/internal/server/handlers"
	"github.com/iudanet/pmtool/internal/server/middleware"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/internal/server/storage/redisstore"
	"github.com/iudanet/pmtool/internal/server/storage/sqlstore"
	"github.com/iudanet/pmtool/internal/server/token"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	revocationCleanupInterval = time.Hour
)

// Store хранилище, которое нужно серверу: все агрегаты плюс проверка доступности
type Store interface {
	storage.UserStorage
	storage.ProjectStorage
	storage.MemberStorage
	storage.TaskStorage
	storage.CommentStorage
	storage.TagStorage
	storage.ActivityStorage
	storage.NotificationStorage
	storage.RevocationStorage
	handlers.Pinger
}

// revocationPruner удаляет истекшие отзывы токенов (только для отзывов в БД)
type revocationPruner interface {
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int, error)
}

var _ Store = (*sqlstore.Storage)(nil)

// Server HTTP сервер приложения
type Server struct {
	logger      *slog.Logger
	cfg         *config.Config
	store       Store
	revocations storage.RevocationStorage
	limiter     *middleware.PathRateLimiter
	handler     http.Handler
	closers     []func() error
}

// Open открывает хранилище по конфигурации и собирает сервер.
// Отзыв токенов хранится в Redis, если задан REDIS_ADDR, иначе в базе данных.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	store, err := sqlstore.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	logger.InfoContext(ctx, "storage opened", slog.String("dialect", string(store.Dialect())))

	closers := []func() error{store.Close}
	var revocations storage.RevocationStorage = store

	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.InfoContext(ctx, "token revocation backed by redis", slog.String("addr", cfg.RedisAddr))
		revocations = rs
		closers = append(closers, rs.Close)
	}

	srv, err := New(cfg, logger, store, revocations, version)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	srv.closers = closers
	return srv, nil
}

// New собирает сервер поверх готового хранилища. revocations может совпадать со store.
func New(cfg *config.Config, logger *slog.Logger, store Store, revocations storage.RevocationStorage, version string) (*Server, error) {
	tokens, err := token.NewService(cfg.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	hasher := crypto.NewPasswordHasher(cfg.PasswordConfig())
	resolver := auth.NewResolver(tokens, store, revocations)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(registry)

	var limits []middleware.PathRateLimit
	if cfg.LoginRateLimit > 0 {
		limits = []middleware.PathRateLimit{
			{Method: http.MethodPost, Path: "/users/login", Rate: cfg.LoginRateLimit, Window: time.Minute},
			{Method: http.MethodPost, Path: "/users", Rate: cfg.LoginRateLimit, Window: time.Minute},
		}
	}
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	limiter := middleware.NewPathRateLimiter(limits, logger, middleware.WithTrustedProxies(proxies))

	r := &routes{
		auth:          handlers.NewAuthHandler(logger, store, hasher, tokens, revocations),
		projects:      handlers.NewProjectHandler(logger, store, store, store, store, store),
		tasks:         handlers.NewTaskHandler(logger, taskDeps(store)),
		tags:          handlers.NewTagHandler(logger, store),
		notifications: handlers.NewNotificationHandler(logger, store),
		health:        handlers.NewHealthHandler(logger, store, version),
		metrics:       middleware.MetricsHandler(registry),
		protect:       middleware.AuthMiddleware(logger, resolver),
	}

	// Metrics читает r.Pattern после ServeMux, поэтому стоит ближе всех к нему
	// среди middleware, подменяющих запрос
	handler := chain(r.mux(),
		middleware.RecoveryMiddleware(logger),
		middleware.RequestIDMiddleware(),
		middleware.LoggingWithSkip(logger, []string{"/health", "/metrics"}),
		metrics.Middleware,
		middleware.CORSMiddleware(cfg.AllowedOrigins()),
		limiter.Middleware,
	)

	return &Server{
		logger:      logger,
		cfg:         cfg,
		store:       store,
		revocations: revocations,
		limiter:     limiter,
		handler:     handler,
	}, nil
}

func taskDeps(store Store) handlers.TaskHandlerDeps {
	return handlers.TaskHandlerDeps{
		Tasks:         store,
		Projects:      store,
		Members:       store,
		Users:         store,
		Comments:      store,
		Tags:          store,
		Activities:    store,
		Notifications: store,
	}
}

// Handler корневой http.Handler со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run слушает cfg.HTTPAddr до отмены ctx, затем корректно завершает работу
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	if pruner, ok := s.revocations.(revocationPruner); ok {
		go s.pruneRevocations(ctx, pruner)
	}

	s.logger.InfoContext(ctx, "server starting", slog.String("addr", s.cfg.HTTPAddr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	s.Close()

	s.logger.Info("server stopped")
	return err
}

// Close освобождает ресурсы: лимитеры, хранилище, Redis
func (s *Server) Close() {
	s.limiter.Stop()
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("failed to close resource", slog.Any("error", err))
		}
	}
	s.closers = nil
}

func (s *Server) pruneRevocations(ctx context.Context, pruner revocationPruner) {
	ticker := time.NewTicker(revocationCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := pruner.DeleteExpiredRevocations(ctx, now)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to prune revoked tokens", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "pruned revoked tokens", slog.Int("count", n))
			}
		}
	}
}

// chain оборачивает h так, что первый middleware в списке становится внешним
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
