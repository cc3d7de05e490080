// Command placement-server serves geoplace.v1.PlacementService over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/altitude"
	"github.com/signalsfoundry/geoplace/internal/config"
	"github.com/signalsfoundry/geoplace/internal/logging"
	"github.com/signalsfoundry/geoplace/internal/observability"
	"github.com/signalsfoundry/geoplace/internal/placementsvc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON config file (optional)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Build(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingOptions("geoplace-placement-server"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(runCtx, cfg, log, lis, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "placement server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves on lis until ctx is cancelled, then stops gracefully.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener, reg prometheus.Registerer) error {
	collector, err := observability.NewPlacementCollector(reg)
	if err != nil {
		return err
	}

	resolver, err := cfg.NewResolver(
		altitude.WithLogger(log),
		altitude.WithMetricsRecorder(collector),
	)
	if err != nil {
		return err
	}
	pipeline := core.NewPipeline(
		core.NewTransformer(core.WithAltitudeSource(resolver)),
		cfg.OrientationOptions(),
	)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			placementsvc.RequestIDUnaryServerInterceptor(log),
			placementsvc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	placementsvc.RegisterPlacementServiceServer(server, placementsvc.NewService(pipeline, resolver,
		placementsvc.WithLogger(log),
		placementsvc.WithPlacementRecorder(collector),
	))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(placementsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthSrv)
	reflection.Register(server)

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	log.Info(ctx, "starting placement gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("geoid_model", cfg.Geoid.Model),
		logging.String("orientation_strategy", cfg.Orientation.Strategy),
	)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	log.Info(context.Background(), "shutting down placement server")
	healthSrv.Shutdown()
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.PlacementCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
