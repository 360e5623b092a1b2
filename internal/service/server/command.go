package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/release-mirror/internal/api/http/hooks"
	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/common"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Options controls the mirror-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the HTTP listen address from the configuration.
	ListenAddress string
	// HealthAddress overrides the gRPC health listen address from the configuration.
	HealthAddress string
}

// listeners are the sockets the server accepts connections on.
type listeners struct {
	http net.Listener
	// health is nil when the health endpoint is disabled.
	health net.Listener
}

// Run starts the server and blocks until ctx is canceled or a listener fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "mirror-server")

	// Command line addresses override the configuration before it is validated.
	settings, err := common.LoadSettings(opts.ConfigPath, func(cfg *config.Config) {
		if opts.ListenAddress != "" {
			cfg.ListenAddress = opts.ListenAddress
		}

		if opts.HealthAddress != "" {
			cfg.HealthAddress = opts.HealthAddress
		}
	})
	if err != nil {
		return err
	}

	stack, err := common.NewStack(settings)
	if err != nil {
		return err
	}
	defer stack.Close()

	lc := net.ListenConfig{}

	var lis listeners

	lis.http, err = lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	if settings.HealthAddress != "" {
		lis.health, err = lc.Listen(ctx, "tcp", settings.HealthAddress)
		if err != nil {
			_ = lis.http.Close()

			return fmt.Errorf("listen on %s: %w", settings.HealthAddress, err)
		}
	}

	logger.InfoKV(ctx, "Mirror server listening",
		"listen_address", lis.http.Addr().String(),
		"health_address", settings.HealthAddress,
		"repository", settings.Repository,
		"download_directory", stack.Root,
		"sync_interval", settings.SyncInterval)

	return serve(ctx, stack.Mirror, lis, settings.SyncInterval)
}

// serve runs the HTTP server, the scheduler and the health endpoint until ctx is
// done, then shuts them down gracefully.
func serve(ctx context.Context, syncer Syncer, lis listeners, interval time.Duration) error {
	var (
		healthServer = health.NewServer()
		svc          = newService(syncer, healthServer)
		httpServer   = &http.Server{
			Handler:           hooks.NewHandler(svc),
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext: func(net.Listener) context.Context {
				return ctx
			},
		}
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}

		return nil
	})

	if lis.health != nil {
		grpcServer := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		g.Go(func() error {
			if err := grpcServer.Serve(lis.health); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC health: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			logger.Info(ctx, "Shutting down gRPC health server")
			healthServer.Shutdown()
			grpcServer.GracefulStop()

			return nil
		})
	}

	g.Go(func() error {
		runScheduler(gctx, svc, interval)

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Mirror server stopped")

	return nil
}
