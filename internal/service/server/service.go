package server

import (
	"context"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/release-mirror/internal/service/common"
	"github.com/oshokin/release-mirror/internal/service/mirror"
)

// Syncer runs sync passes and remembers the last outcome.
type Syncer interface {
	Sync(ctx context.Context) (*mirror.Result, error)
	LastStatus() mirror.Status
}

// service reports the outcome of every pass to the health server,
// whichever trigger started it.
type service struct {
	// syncer runs the passes.
	syncer Syncer
	// health publishes the serving status.
	health *health.Server
}

// newService wraps syncer; the server reports NOT_SERVING until a pass succeeds.
func newService(syncer Syncer, healthServer *health.Server) *service {
	healthServer.SetServingStatus(common.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &service{
		syncer: syncer,
		health: healthServer,
	}
}

// Sync runs one pass and updates the serving status.
func (s *service) Sync(ctx context.Context) (*mirror.Result, error) {
	result, err := s.syncer.Sync(ctx)

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus(common.HealthService, status)

	return result, err
}

// LastStatus returns the outcome of the most recent pass.
func (s *service) LastStatus() mirror.Status {
	return s.syncer.LastStatus()
}
