package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/common"
)

// Options configures the health query.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// HealthAddress overrides the health endpoint address from config when specified.
	HealthAddress string
	// Timeout bounds the health call.
	Timeout time.Duration
}

var (
	// errNoHealthAddress is returned when neither the config nor the command line name an endpoint.
	errNoHealthAddress = errors.New("no health address configured")
	// ErrNotServing is returned when the server reports that its last pass failed.
	ErrNotServing = errors.New("mirror server is not serving")
)

// Run queries the health endpoint and fails unless the server reports SERVING.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "mirror-health")

	// An explicit address needs no configuration at all.
	if opts.HealthAddress != "" {
		return Check(ctx, opts.HealthAddress, opts.Timeout)
	}

	// Load settings from configuration file.
	settings, err := common.LoadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	if settings.HealthAddress == "" {
		return errNoHealthAddress
	}

	return Check(ctx, settings.HealthAddress, opts.Timeout)
}

// Check dials address and reports its serving status.
func Check(ctx context.Context, address string, timeout time.Duration) error {
	client, err := common.Dial(ctx, address, common.WithCallTimeout(timeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	status, err := client.Check(ctx)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Mirror server health", "address", address, "status", status.String())

	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s: %w", status, ErrNotServing)
	}

	return nil
}
