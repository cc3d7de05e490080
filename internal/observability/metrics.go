package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// PlacementCollector bundles Prometheus metrics for the placement service and
// the altitude resolver, and provides helpers to wire them into gRPC servers
// and HTTP handlers.
type PlacementCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Placements              *prometheus.CounterVec
	AltitudeLookups         *prometheus.CounterVec
	AltitudeLookupDurations *prometheus.HistogramVec
	GeoidFallbacks          prometheus.Counter
}

// NewPlacementCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewPlacementCollector(reg prometheus.Registerer) (*PlacementCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoplace_requests_total",
		Help: "Total number of handled placement RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "geoplace_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoplace_request_duration_seconds",
		Help:    "Placement RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "geoplace_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	placements, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoplace_placements_total",
		Help: "Placements computed, labeled by altitude mode (anchor|precise) and result.",
	}, []string{"mode", "result"}), "geoplace_placements_total")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoplace_altitude_lookups_total",
		Help: "Elevation and geoid lookups, labeled by source and outcome.",
	}, []string{"source", "outcome"}), "geoplace_altitude_lookups_total")
	if err != nil {
		return nil, err
	}

	lookupDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoplace_altitude_lookup_duration_seconds",
		Help:    "Latency of individual elevation and geoid lookups in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"}), "geoplace_altitude_lookup_duration_seconds")
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoplace_geoid_fallbacks_total",
		Help: "Precise altitude resolutions that substituted zero for a missing geoid undulation.",
	}), "geoplace_geoid_fallbacks_total")
	if err != nil {
		return nil, err
	}

	return &PlacementCollector{
		gatherer:                gatherer,
		RPCRequests:             requests,
		RPCDurations:            durations,
		Placements:              placements,
		AltitudeLookups:         lookups,
		AltitudeLookupDurations: lookupDurations,
		GeoidFallbacks:          fallbacks,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *PlacementCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlacementCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePlacement counts one placement attempt.
func (c *PlacementCollector) ObservePlacement(mode, result string) {
	if c == nil || c.Placements == nil {
		return
	}
	c.Placements.WithLabelValues(mode, result).Inc()
}

// ObserveAltitudeLookup satisfies altitude.MetricsRecorder.
func (c *PlacementCollector) ObserveAltitudeLookup(source, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.AltitudeLookups != nil {
		c.AltitudeLookups.WithLabelValues(source, outcome).Inc()
	}
	if c.AltitudeLookupDurations != nil {
		c.AltitudeLookupDurations.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncGeoidFallback satisfies altitude.MetricsRecorder.
func (c *PlacementCollector) IncGeoidFallback() {
	if c == nil || c.GeoidFallbacks == nil {
		return
	}
	c.GeoidFallbacks.Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
