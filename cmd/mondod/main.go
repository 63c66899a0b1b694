package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mondo-io/mondo/internal/backend"
	"github.com/mondo-io/mondo/internal/config"
	"github.com/mondo-io/mondo/internal/cursor"
	dbRedis "github.com/mondo-io/mondo/internal/db/redis"
	logpkg "github.com/mondo-io/mondo/internal/logger"
	"github.com/mondo-io/mondo/internal/metrics"
	collectionrepo "github.com/mondo-io/mondo/internal/repository/collection"
	"github.com/mondo-io/mondo/internal/store"
	rpcTransport "github.com/mondo-io/mondo/internal/transport/rpc"
	"github.com/mondo-io/mondo/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting mondod server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx := context.Background()

	// Snapshot persistence is optional: without database addrs the server
	// runs purely in memory.
	var persister backend.Persister
	var repo *collectionrepo.Repo
	if len(cfg.Database.Addrs) > 0 {
		kv, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer kv.Close()

		if err := kv.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		repo = collectionrepo.New(kv, cfg.Storage.KeyPrefix)
		persister = repo
	}

	metrics.RegisterRPCMetrics()

	cursors, err := cursor.NewRegistry(cfg.Cursor.Capacity, cfg.Cursor.BatchSize)
	if err != nil {
		logger.Fatal("Failed to create cursor registry", zap.Error(err))
	}

	docStore := store.New()
	be, err := backend.New(backend.Options{
		Store:     docStore,
		Cursors:   cursors,
		Persister: persister,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create backend", zap.Error(err))
	}

	// Hydrate collections from stored snapshots
	if repo != nil {
		hydrate(ctx, repo, docStore, logger)
	}

	server, err := rpcTransport.NewServer(be, logger, rpcTransport.Options{
		BatchWorkers: cfg.RPC.BatchWorkers,
		MaxBatchSize: cfg.RPC.MaxBatchSize,
	})
	if err != nil {
		logger.Fatal("Failed to create RPC server", zap.Error(err))
	}
	defer server.Close()

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(rpcTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// hydrate restores collection snapshots from the KV store. Failures skip
// the namespace: a bad snapshot should not stop the server from coming up.
func hydrate(ctx context.Context, repo *collectionrepo.Repo, docStore *store.Store, logger *zap.Logger) {
	namespaces, err := repo.List(ctx)
	if err != nil {
		logger.Warn("Failed to list snapshots", zap.Error(err))
		return
	}
	for _, ns := range namespaces {
		db, coll, ok := splitNamespace(ns)
		if !ok {
			logger.Warn("Skipping malformed snapshot namespace", zap.String("namespace", ns))
			continue
		}
		docs, err := repo.Load(ctx, ns)
		if err != nil {
			logger.Warn("Failed to load snapshot", zap.String("namespace", ns), zap.Error(err))
			continue
		}
		docStore.Collection(db, coll).Restore(docs)
		logger.Info("Hydrated collection",
			zap.String("namespace", ns),
			zap.Int("documents", len(docs)))
	}
}

func splitNamespace(ns string) (db, coll string, ok bool) {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[:i], ns[i+1:], i > 0 && i < len(ns)-1
		}
	}
	return "", "", false
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
