// Package placementsvc exposes the placement pipeline as the
// geoplace.v1.PlacementService gRPC service.
package placementsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/logging"
	"github.com/signalsfoundry/geoplace/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlacementRecorder counts placement attempts by altitude mode and result.
type PlacementRecorder interface {
	ObservePlacement(mode, result string)
}

// Service implements PlacementServiceServer on top of a core.Pipeline.
type Service struct {
	pipeline *core.Pipeline
	altitude core.AltitudeSource

	log     logging.Logger
	metrics PlacementRecorder
}

var _ PlacementServiceServer = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the fallback logger used when the request context carries
// none.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPlacementRecorder wires placement counters.
func WithPlacementRecorder(r PlacementRecorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService wires a Service. altitude backs ResolveAltitude and should be
// the same source the pipeline's transformer uses; it may be nil, in which
// case ResolveAltitude reports the altitude as unavailable.
func NewService(pipeline *core.Pipeline, altitude core.AltitudeSource, opts ...Option) *Service {
	if pipeline == nil {
		pipeline = core.NewPipeline(nil, core.OrientationOptions{})
	}
	s := &Service{
		pipeline: pipeline,
		altitude: altitude,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceObject computes position, orientation and world transform for an
// object at offset from anchor.
func (s *Service) PlaceObject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	anchor, offset, err := decodeAnchorOffset(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	precise, err := boolField(req, "precise_altitude")
	if err != nil {
		return nil, ToStatusError(err)
	}
	orientation, err := decodeOrientationOptions(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "placement.PlaceObject",
		attribute.Float64("geo.lat", anchor.LatitudeDeg),
		attribute.Float64("geo.lng", anchor.LongitudeDeg),
		attribute.Bool("precise_altitude", precise),
	)
	defer span.End()

	pl, err := s.pipeline.PlaceObject(ctx, anchor, offset, core.PlacementOptions{
		PreciseAltitude: precise,
		Orientation:     orientation,
	})
	s.observe(precise, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.FromContext(ctx, s.log).Warn(ctx, "placement failed",
			logging.Float64("lat", anchor.LatitudeDeg),
			logging.Float64("lng", anchor.LongitudeDeg),
			logging.Bool("precise", precise),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	if pl.Altitude.GeoidMissing {
		span.AddEvent("geoid_missing")
	}
	return newStruct(placementValue(pl))
}

// ToECEF converts an anchor-relative offset into ECEF without computing an
// orientation.
func (s *Service) ToECEF(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	anchor, offset, err := decodeAnchorOffset(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	precise, err := boolField(req, "precise_altitude")
	if err != nil {
		return nil, ToStatusError(err)
	}

	pos, sample, err := s.pipeline.Transformer().ToECEF(ctx, anchor, offset, precise)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return newStruct(map[string]interface{}{
		"position": ecefValue(pos),
		"altitude": altitudeValue(sample),
	})
}

// LocalToGeographic converts an ECEF vector back to geographic coordinates.
// The default is the coarse spherical inverse; "ellipsoidal": true selects
// the WGS84 inverse.
func (s *Service) LocalToGeographic(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	posMsg, err := structField(req, "position", true)
	if err != nil {
		return nil, ToStatusError(err)
	}
	x, y, z, err := decodeXYZ(posMsg, "position")
	if err != nil {
		return nil, ToStatusError(err)
	}
	ellipsoidal, err := boolField(req, "ellipsoidal")
	if err != nil {
		return nil, ToStatusError(err)
	}

	var geo model.GeographicPosition
	if ellipsoidal {
		geo, err = core.ECEFToGeodetic(model.EcefPosition{X: x, Y: y, Z: z})
		if err != nil {
			return nil, ToStatusError(err)
		}
	} else {
		v := core.Vector3{X: x, Y: y, Z: z}
		if !v.IsFinite() {
			return nil, ToStatusError(fmt.Errorf("%w: position must be finite", core.ErrInvalidPosition))
		}
		geo = core.LocalToGeographic(v)
	}
	return newStruct(geographicValue(geo))
}

// ResolveAltitude returns the precise altitude sample at a point.
func (s *Service) ResolveAltitude(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pos, err := decodeGeographic(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if s.altitude == nil {
		return nil, ToStatusError(fmt.Errorf("%w: no altitude source configured", core.ErrAltitudeUnavailable))
	}
	sample, err := s.altitude.ResolvePreciseAltitude(ctx, pos.LatitudeDeg, pos.LongitudeDeg)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return newStruct(altitudeValue(sample))
}

func (s *Service) observe(precise bool, err error) {
	if s.metrics == nil {
		return
	}
	mode := model.AltitudeSourceAnchor.String()
	if precise {
		mode = model.AltitudeSourcePrecise.String()
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, core.ErrAltitudeUnavailable):
		result = "altitude_unavailable"
	case errors.Is(err, core.ErrDegenerateOrientation):
		result = "degenerate"
	case errors.Is(err, core.ErrInvalidPosition), errors.Is(err, core.ErrInvalidOffset):
		result = "invalid"
	default:
		result = "error"
	}
	s.metrics.ObservePlacement(mode, result)
}

func newStruct(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}
