package grpc

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"gearlend-backend/internal/logger"
)

// BookingServiceName is the health service name probes ask for. The empty
// name reports overall server health.
const BookingServiceName = "gearlend.booking.v1.BookingService"

// Probe reports whether one dependency (database, broker) is usable.
type Probe func(ctx context.Context) error

// HealthServer serves grpc.health.v1 and flips the booking service between
// SERVING and NOT_SERVING as its probes pass or fail.
type HealthServer struct {
	Server *grpc.Server

	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
	timeout  time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

func NewHealthServer(probes map[string]Probe, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(BookingServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		Server:   s,
		health:   hs,
		probes:   probes,
		interval: interval,
		timeout:  interval / 2,
		done:     make(chan struct{}),
	}
}

// Check runs every probe once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			logger.Warn("Health probe failed", "probe", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus(BookingServiceName, status)
	return status == healthpb.HealthCheckResponse_SERVING
}

// Run checks the probes on every tick until ctx is done or Stop is called.
func (h *HealthServer) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Stop marks every service NOT_SERVING and drains the gRPC server.
func (h *HealthServer) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.health.Shutdown()
		h.Server.GracefulStop()
	})
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Debug("gRPC request", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	return resp, err
}
