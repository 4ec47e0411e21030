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

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/crowdpay/internal/archive"
	s3archive "github.com/mmynk/crowdpay/internal/archive/s3"
	"github.com/mmynk/crowdpay/internal/auth"
	"github.com/mmynk/crowdpay/internal/config"
	"github.com/mmynk/crowdpay/internal/escrow"
	"github.com/mmynk/crowdpay/internal/idempotency"
	idemredis "github.com/mmynk/crowdpay/internal/idempotency/redis"
	"github.com/mmynk/crowdpay/internal/metrics"
	"github.com/mmynk/crowdpay/internal/middleware"
	"github.com/mmynk/crowdpay/internal/service"
	"github.com/mmynk/crowdpay/internal/storage"
	"github.com/mmynk/crowdpay/internal/storage/memory"
	"github.com/mmynk/crowdpay/internal/storage/postgres"
	"github.com/mmynk/crowdpay/internal/storage/sqlite"
	"github.com/mmynk/crowdpay/pkg/escrowv1"
	"github.com/mmynk/crowdpay/pkg/logging"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// pinger is anything /healthz checks.
type pinger interface {
	Ping(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "backend", cfg.Store)

	g, ctx := errgroup.WithContext(ctx)
	checks := map[string]pinger{"store": store}

	var keys idempotency.KeyStore
	if cfg.Redis.Enabled() {
		rdb, err := idemredis.New(ctx, idemredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLS,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		keys = rdb
		checks["redis"] = rdb
		slog.Info("Idempotency keys in redis", "addr", cfg.Redis.Addr)
	} else {
		mem := idempotency.NewMemoryKeyStore()
		keys = mem
		g.Go(func() error {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					mem.Cleanup()
				}
			}
		})
		slog.Info("Idempotency keys in memory")
	}

	var archiver archive.Archiver = archive.Discard{}
	if cfg.S3.Enabled() {
		a, err := s3archive.New(ctx, s3archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		archiver = a
		slog.Info("Archiving settlements", "bucket", cfg.S3.Bucket)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ops := escrow.NewOperations(store,
		escrow.WithPolicy(cfg.Policy()),
		escrow.WithArchiver(archiver),
		escrow.WithRecorder(metrics.New(reg)),
		escrow.WithLogger(slog.Default()),
	)
	slog.Info("Escrow policy", "payout", cfg.Policy().Payout, "reject_overfunding", cfg.Policy().RejectOverfunding)

	svc := service.NewEscrowService(ops, idempotency.NewGuard(keys, cfg.IdempotencyTTL))
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	mux := http.NewServeMux()
	path, handler := escrowv1.NewEscrowServiceHandler(svc,
		connect.WithInterceptors(middleware.RequireAuth(jwtManager), middleware.LoggingInterceptor(slog.Default())),
	)
	mux.Handle(path, handler)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	mux.HandleFunc("GET /healthz", healthHandler(checks))

	server := &http.Server{
		Addr: cfg.Addr,
		// Wrap with h2c for HTTP/2 without TLS (required for Connect)
		Handler:           h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("Connect server starting", "address", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := postgres.New(ctx, postgres.ClientConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
