package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Giozar/distributed-systems/database"
	"github.com/Giozar/distributed-systems/internal/config"
	"github.com/Giozar/distributed-systems/internal/microservices/http-api/router"
	"github.com/Giozar/distributed-systems/internal/microservices/tcp"
	"github.com/Giozar/distributed-systems/internal/transactions/handler"
	"github.com/Giozar/distributed-systems/internal/transactions/repository"
	"github.com/Giozar/distributed-systems/internal/transactions/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// Setup structured logging
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx := context.Background()

	// Persistence: postgres when configured, memory otherwise
	repo, closeDB, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("repository_init_failed", "error", err.Error())
		os.Exit(1)
	}
	defer closeDB()

	// TCP server
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := tcp.NewServer(tcp.Options{
		Host:            cfg.TCPHost,
		Port:            cfg.TCPPort,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxConnections:  cfg.MaxConnections,
		MaxMessageSize:  cfg.MaxMessageSize,
		IdleTimeout:     cfg.IdleTimeout,
		WriteTimeout:    disabledIfZero(cfg.WriteTimeout),
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		Logger:          logger,
		Metrics:         tcp.NewMetrics(reg),
	})
	if err != nil {
		logger.Error("tcp_server_init_failed", "error", err.Error())
		os.Exit(1)
	}

	server.RegisterHandler("PING", func(ctx context.Context, s *tcp.Session, msg *tcp.Message) (*tcp.Message, error) {
		return tcp.NewSuccessMessage("PING", "pong").With("client_id", s.ID()), nil
	})
	handler.Register(server, service.NewTransactionService(repo), logger)

	logger.Info("starting_tcp_server",
		"tcp_addr", cfg.TCPAddr(),
		"database", cfg.DatabaseURL != "",
		"cache", cfg.RedisURL != "",
	)
	if err := server.Start(); err != nil {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}

	// Admin API
	var httpServer *http.Server
	errChan := make(chan error, 1)
	if cfg.HTTPPort > 0 {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		httpServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.TCPHost, cfg.HTTPPort),
			Handler:           router.New(server, reg, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin_api_started", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("received_shutdown_signal", "signal", sig.String())
	case err := <-errChan:
		logger.Error("admin_api_error", "error", err.Error())
		exitCode = 1
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin_api_shutdown_failed", "error", err.Error())
		}
		cancel()
	}
	if err := server.Stop(); err != nil && !errors.Is(err, tcp.ErrServerStopped) {
		logger.Warn("server_stop_failed", "error", err.Error())
	}
	logger.Info("server_stopped_gracefully")

	if exitCode != 0 {
		closeDB()
		os.Exit(exitCode)
	}
}

// openRepository picks the transaction store from config and returns a cleanup func.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.TransactionRepository, func(), error) {
	var (
		repo    repository.TransactionRepository
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("database_not_configured", "store", "memory")
		repo = repository.NewMemoryRepository()
	} else {
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)

		gdb, err := database.OpenGorm(pool, logger)
		if err != nil {
			cleanup()
			return nil, cleanup, err
		}
		repo = repository.NewTransactionRepository(gdb)
	}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg, logger)
		if err != nil {
			// the cache is optional, serve from the store alone
			logger.Warn("redis_unavailable", "error", err.Error())
		} else {
			closers = append(closers, func() { client.Close() })
			repo = repository.NewCachedRepository(repo, client, cfg.CacheTTL, logger)
		}
	}
	return repo, cleanup, nil
}

// zero in the environment means "no deadline", the server treats negative as disabled
func disabledIfZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
