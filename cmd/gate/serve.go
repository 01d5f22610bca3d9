package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/catalog"
	"github.com/alfredjeanlab/gatepass/internal/config"
	"github.com/alfredjeanlab/gatepass/internal/events"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/gateway/sandbox"
	"github.com/alfredjeanlab/gatepass/internal/lock"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/server"
	"github.com/alfredjeanlab/gatepass/internal/session"
	"github.com/alfredjeanlab/gatepass/internal/store"
	"github.com/alfredjeanlab/gatepass/internal/store/memory"
	"github.com/alfredjeanlab/gatepass/internal/store/postgres"
	gatesync "github.com/alfredjeanlab/gatepass/internal/sync"
)

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("register is in memory (GATE_DATABASE_URL not set)")
		return memory.New(), nil
	}
	pg, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func restoreRegister(ctx context.Context, st store.Store, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	stats, err := gatesync.ImportJSONL(ctx, st, f)
	if err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	logger.Info("register restored", "file", path, "entries", stats.Entries, "events", stats.Events, "roles", stats.Roles)
	return nil
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the gate entry server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// The server does not talk to another server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		useSandbox, _ := cmd.Flags().GetBool("sandbox")
		restore, _ := cmd.Flags().GetString("restore")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		slog.SetDefault(logger)
		model.PhoneRegion = cfg.PhoneRegion

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}()

		if restore != "" {
			if err := restoreRegister(cmd.Context(), st, restore, logger); err != nil {
				return err
			}
		}

		var policy *access.Policy
		if cfg.RolesFile != "" {
			policy, err = access.NewFromFile(cfg.RolesFile, st)
		} else {
			policy, err = access.New(st)
		}
		if err != nil {
			return err
		}
		if err := policy.Load(cmd.Context()); err != nil {
			return fmt.Errorf("loading custom roles: %w", err)
		}

		sessions, err := session.NewManager(session.Config{
			Secret:      []byte(cfg.JWTSecret),
			IdleTimeout: cfg.SessionIdle,
			ValidRole:   policy.Exists,
		})
		if err != nil {
			return err
		}
		sessions.StartReaper(time.Minute)
		defer sessions.Stop()

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (GATE_NATS_URL not set)")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		var gw gateway.Gateway
		if useSandbox {
			gw = sandbox.NewSeeded()
			logger.Warn("using the sandbox system of record")
		} else {
			if cfg.GatewayURL == "" {
				return fmt.Errorf("GATE_GATEWAY_URL is required (or use --sandbox)")
			}
			gw = gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayToken,
				gateway.WithTimeout(cfg.GatewayTimeout),
				gateway.WithTracer(otel.Tracer("github.com/alfredjeanlab/gatepass/cmd/gate")),
			)
		}

		var cache catalog.Cache
		var locker lock.Locker
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
			defer rdb.Close()
			cache = catalog.NewRedisCache(rdb)
			locker = lock.NewRedisLocker(rdb)
			logger.Info("redis enabled", "addr", cfg.RedisAddr)
		}

		gateServer, err := server.New(server.Options{
			Store:     st,
			Publisher: publisher,
			Sessions:  sessions,
			Policy:    policy,
			Gateway:   gw,
			Catalog:   catalog.New(gw, cache, cfg.CatalogTTL),
			Locker:    locker,
			LockTTL:   cfg.LockTTL,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer gateServer.Close()

		grpcServer, healthServer := server.NewGRPCServer(sessions)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           gateServer.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *gatesync.Scheduler
		if cfg.SyncInterval > 0 {
			var dests []gatesync.Destination
			if cfg.SyncS3Bucket != "" {
				s3Dest, err := gatesync.NewS3Destination(cmd.Context(),
					cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
				if err != nil {
					logger.Error("failed to create S3 sync destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
				}
			}
			if cfg.SyncGitRepo != "" {
				dests = append(dests, gatesync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
				logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
			}
			if len(dests) > 0 {
				scheduler = gatesync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("gate server started", "grpc_addr", cfg.GRPCAddr, "http_addr", cfg.HTTPAddr)

		// SIGHUP asks for an immediate register backup.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		sig := <-sigCh
		for sig == syscall.SIGHUP {
			if scheduler != nil {
				logger.Info("backup requested")
				scheduler.Trigger()
			}
			sig = <-sigCh
		}
		logger.Info("received signal, shutting down", "signal", sig)

		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("sandbox", false, "use the built-in sandbox system of record with demo data")
	serveCmd.Flags().String("restore", "", "restore the register from a JSONL backup before serving")
}
