package grpc

import (
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// IntentServiceName is the health service name reported for intent issuance.
const IntentServiceName = "checkout.IntentService"

type configuredChecker interface {
	Configured() bool
}

// HealthServer reports overall liveness plus whether intents can be issued.
type HealthServer struct {
	*health.Server
	intents configuredChecker
	logger  logrus.FieldLogger
}

func NewHealthServer(intents configuredChecker) *HealthServer {
	s := &HealthServer{
		Server:  health.NewServer(),
		intents: intents,
		logger:  factory.NewModuleLogger("grpc-health"),
	}
	s.Refresh()
	return s
}

// Refresh re-evaluates provider configuration and publishes the result.
func (s *HealthServer) Refresh() {
	s.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	intentStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if s.intents != nil && s.intents.Configured() {
		intentStatus = healthpb.HealthCheckResponse_SERVING
	}
	s.SetServingStatus(IntentServiceName, intentStatus)
	s.logger.WithField("intent_status", intentStatus.String()).Debug("health_refreshed")
}

// NewServer builds the gRPC server with the standard interceptor chain and registers health.
func NewServer(healthServer *HealthServer) *grpc.Server {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryInterceptor(),
		RequestIDInterceptor(),
		LoggingInterceptor(),
	))
	healthpb.RegisterHealthServer(server, healthServer)
	return server
}
