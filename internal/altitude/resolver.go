package altitude

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/logging"
	"github.com/signalsfoundry/geoplace/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/signalsfoundry/geoplace/internal/altitude"

// Lookup sources and outcomes reported to the MetricsRecorder.
const (
	SourceElevation = "elevation"
	SourceGeoid     = "geoid"

	OutcomeOK     = "ok"
	OutcomeNoData = "no_data"
	OutcomeError  = "error"
)

// MetricsRecorder receives lookup timings and geoid fallbacks.
type MetricsRecorder interface {
	ObserveAltitudeLookup(source, outcome string, d time.Duration)
	IncGeoidFallback()
}

// FidelityWarning describes a resolution that succeeded with reduced
// accuracy because the geoid undulation was unavailable.
type FidelityWarning struct {
	Location model.LatLng
	Reason   string
	Err      error
}

// WarningHandler is notified of every FidelityWarning.
type WarningHandler func(ctx context.Context, w FidelityWarning)

// Resolver combines ground elevation and geoid undulation into an
// ellipsoidal altitude. It is safe for concurrent use.
type Resolver struct {
	elevation ElevationLookup
	geoid     GeoidLookup

	log     logging.Logger
	metrics MetricsRecorder
	warn    WarningHandler
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for fidelity warnings.
func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetricsRecorder wires lookup metrics.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithWarningHandler registers a callback for geoid fallbacks.
func WithWarningHandler(h WarningHandler) Option {
	return func(r *Resolver) { r.warn = h }
}

// NewResolver builds a Resolver. The elevation handle is kept for the
// lifetime of the Resolver; a nil geoid lookup always degrades to zero
// undulation.
func NewResolver(elevation ElevationLookup, geoid GeoidLookup, opts ...Option) *Resolver {
	r := &Resolver{
		elevation: elevation,
		geoid:     geoid,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePreciseAltitude returns elevation + undulation at the given point.
//
// The two lookups run concurrently. A failed elevation lookup fails the
// resolution with core.ErrAltitudeUnavailable. A missing undulation is
// replaced by zero and reported as a fidelity warning; it never fails the
// resolution.
func (r *Resolver) ResolvePreciseAltitude(ctx context.Context, latDeg, lngDeg float64) (model.AltitudeSample, error) {
	if err := core.ValidatePosition(model.GeographicPosition{LatitudeDeg: latDeg, LongitudeDeg: lngDeg}); err != nil {
		return model.AltitudeSample{}, err
	}
	if r.elevation == nil {
		return model.AltitudeSample{}, fmt.Errorf("%w: no elevation lookup configured", core.ErrAltitudeUnavailable)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "altitude.ResolvePreciseAltitude",
		trace.WithAttributes(
			attribute.Float64("geo.lat", latDeg),
			attribute.Float64("geo.lng", lngDeg),
		))
	defer span.End()

	loc := model.LatLng{Lat: latDeg, Lng: lngDeg}

	var (
		elevation float64
		geoid     GeoidSample
		geoidErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		elevation, err = r.fetchElevation(gctx, loc)
		return err
	})
	g.Go(func() error {
		geoid, geoidErr = r.fetchGeoid(gctx, loc)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.AltitudeSample{}, err
	}

	sample := model.AltitudeSample{
		Source:                model.AltitudeSourcePrecise,
		GroundElevationMeters: elevation,
	}
	if geoidErr != nil || !geoid.Found {
		sample.GeoidMissing = true
		r.reportFallback(ctx, loc, geoidErr)
	} else {
		sample.GeoidUndulationMeters = geoid.Meters
	}
	sample.EllipsoidalMeters = sample.GroundElevationMeters + sample.GeoidUndulationMeters

	span.SetAttributes(
		attribute.Float64("altitude.elevation_m", sample.GroundElevationMeters),
		attribute.Float64("altitude.undulation_m", sample.GeoidUndulationMeters),
		attribute.Bool("altitude.geoid_missing", sample.GeoidMissing),
	)
	return sample, nil
}

func (r *Resolver) fetchElevation(ctx context.Context, loc model.LatLng) (float64, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "altitude.elevation")
	defer span.End()

	start := time.Now()
	results, err := r.elevation.Elevations(ctx, []model.LatLng{loc})
	if err == nil {
		err = checkElevation(results)
	}
	if err != nil {
		r.observe(SourceElevation, OutcomeError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: elevation at (%.6f, %.6f): %w", core.ErrAltitudeUnavailable, loc.Lat, loc.Lng, err)
	}
	r.observe(SourceElevation, OutcomeOK, time.Since(start))
	return results[0].ElevationMeters, nil
}

func checkElevation(results []ElevationResult) error {
	if len(results) == 0 {
		return errors.New("no results")
	}
	res := results[0]
	if res.Status != StatusOK {
		return fmt.Errorf("status %s", res.Status)
	}
	if math.IsNaN(res.ElevationMeters) || math.IsInf(res.ElevationMeters, 0) {
		return fmt.Errorf("non-finite elevation %g", res.ElevationMeters)
	}
	return nil
}

func (r *Resolver) fetchGeoid(ctx context.Context, loc model.LatLng) (GeoidSample, error) {
	if r.geoid == nil {
		return GeoidSample{}, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "altitude.geoid")
	defer span.End()

	start := time.Now()
	sample, err := r.geoid.Undulation(ctx, loc.Lat, loc.Lng)
	switch {
	case err != nil:
		r.observe(SourceGeoid, OutcomeError, time.Since(start))
		span.RecordError(err)
		return GeoidSample{}, err
	case !sample.Found || math.IsNaN(sample.Meters) || math.IsInf(sample.Meters, 0):
		r.observe(SourceGeoid, OutcomeNoData, time.Since(start))
		return GeoidSample{}, nil
	default:
		r.observe(SourceGeoid, OutcomeOK, time.Since(start))
		return sample, nil
	}
}

func (r *Resolver) observe(source, outcome string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveAltitudeLookup(source, outcome, d)
	}
}

func (r *Resolver) reportFallback(ctx context.Context, loc model.LatLng, cause error) {
	w := FidelityWarning{
		Location: loc,
		Reason:   "geoid undulation unavailable; using 0",
		Err:      cause,
	}

	fields := []logging.Field{
		logging.Float64("lat", loc.Lat),
		logging.Float64("lng", loc.Lng),
	}
	if cause != nil {
		fields = append(fields, logging.Err(cause))
	}
	logging.FromContext(ctx, r.log).Warn(ctx, w.Reason, fields...)

	trace.SpanFromContext(ctx).AddEvent("geoid_fallback")
	if r.metrics != nil {
		r.metrics.IncGeoidFallback()
	}
	if r.warn != nil {
		r.warn(ctx, w)
	}
}
