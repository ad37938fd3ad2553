package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/rowstore/internal/adapter/handler"
	"github.com/rl1809/rowstore/internal/adapter/storage"
	"github.com/rl1809/rowstore/internal/config"
	"github.com/rl1809/rowstore/internal/core/service"
	"github.com/rl1809/rowstore/internal/logger"
	"github.com/rl1809/rowstore/internal/metrics"
	"github.com/rl1809/rowstore/internal/port"
)

const serviceName = "rowstore"

func main() {
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(os.Getenv("ROWSTORE_LOG_LEVEL")),
	})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormatOrDefault(),
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var closers []io.Closer
	defer func() {
		var closeErr error
		for i := len(closers) - 1; i >= 0; i-- {
			closeErr = multierr.Append(closeErr, closers[i].Close())
		}
		if closeErr != nil {
			logg.Error(ctx, "error closing connections", closeErr)
		} else {
			logg.Info(ctx, "connections closed")
		}
		err = multierr.Append(err, closeErr)
	}()

	// Initialize MySQL journal
	var journal port.JournalRepository
	queueSize := 0
	if cfg.JournalEnabled() {
		db, openErr := storage.OpenMySQL(ctx, cfg.MySQL)
		if openErr != nil {
			return fmt.Errorf("bootstrap mysql: %w", openErr)
		}
		closers = append(closers, db)

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if schemaErr := mysqlAdapter.EnsureSchema(ctx); schemaErr != nil {
			return schemaErr
		}
		journal = mysqlAdapter
		queueSize = cfg.Journal.QueueSize
		logg.Info(ctx, "connected to mysql")
	} else {
		logg.Info(ctx, "mysql dsn not set, change journal disabled")
	}

	// Initialize Redis idempotency store
	var idempotency port.IdempotencyStore
	if cfg.IdempotencyEnabled() {
		rdb, openErr := storage.OpenRedis(ctx, cfg.Redis)
		if openErr != nil {
			return fmt.Errorf("bootstrap redis: %w", openErr)
		}
		closers = append(closers, rdb)
		idempotency = storage.NewRedisAdapter(rdb)
		logg.Info(ctx, "connected to redis")
	} else {
		logg.Info(ctx, "redis not configured, idempotency keys ignored")
	}

	rowService := service.NewRowService(queueSize, m)

	// Start journal workers
	journalDone := make(chan struct{})
	if journal != nil {
		go func() {
			defer close(journalDone)
			service.RunJournal(rowService.GetChangeQueue(), journal, cfg.Journal.Workers, logg, m)
		}()
		logg.Info(logg.WithField(ctx, "workers", cfg.Journal.Workers), "started journal workers")
	} else {
		close(journalDone)
	}

	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handler.NewRouter(handler.RouterParams{
			Handler:        handler.NewHTTPHandler(rowService, logg),
			Logger:         logg,
			Metrics:        m,
			Gatherer:       registry,
			Idempotency:    idempotency,
			IdempotencyTTL: cfg.Redis.IdempotencyTTL,
			CORSOrigins:    cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if cfg.GRPC.Addr != "" {
		grpcListener, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			rowService.Close()
			<-journalDone
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(logg)))
		handler.RegisterRowServiceServer(grpcServer, handler.NewGRPCHandler(rowService))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logg.Info(logg.WithField(ctx, "addr", cfg.HTTP.Addr), "HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			logg.Info(logg.WithField(ctx, "addr", cfg.GRPC.Addr), "gRPC server listening")
			if serveErr := grpcServer.Serve(grpcListener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", serveErr)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		logg.Info(ctx, "HTTP server stopped")

		if grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutdownCtx.Done():
				grpcServer.Stop()
			}
			logg.Info(ctx, "gRPC server stopped")
		}
		return shutdownErr
	})

	err = g.Wait()

	// Close change queue and wait for workers
	rowService.Close()
	<-journalDone
	logg.Info(ctx, "journal workers stopped")

	return err
}
