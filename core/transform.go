package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/geoplace/model"
)

// AltitudeSource resolves the precise ellipsoidal altitude of a point, in
// practice ground elevation plus geoid undulation.
type AltitudeSource interface {
	ResolvePreciseAltitude(ctx context.Context, latDeg, lngDeg float64) (model.AltitudeSample, error)
}

// Transformer converts anchor-relative local offsets into ECEF positions.
type Transformer struct {
	ellipsoid Ellipsoid
	altitude  AltitudeSource
}

// TransformerOption configures a Transformer.
type TransformerOption func(*Transformer)

// WithEllipsoid overrides the reference ellipsoid (WGS84 by default).
func WithEllipsoid(e Ellipsoid) TransformerOption {
	return func(t *Transformer) { t.ellipsoid = e }
}

// WithAltitudeSource sets the resolver used when precise altitude is
// requested. Without one, precise requests fail with ErrAltitudeUnavailable.
func WithAltitudeSource(src AltitudeSource) TransformerOption {
	return func(t *Transformer) { t.altitude = src }
}

// NewTransformer builds a Transformer.
func NewTransformer(opts ...TransformerOption) *Transformer {
	t := &Transformer{ellipsoid: WGS84}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ellipsoid returns the reference ellipsoid in use.
func (t *Transformer) Ellipsoid() Ellipsoid {
	return t.ellipsoid
}

// ToECEF converts offset, expressed relative to anchor, into ECEF metres.
//
// The offset is added to the anchor's ECEF position as-is: its axes are
// treated as already aligned with ECEF. Orientation must be applied to the
// placed object, not to this step.
//
// When usePreciseAltitude is set the anchor's altitude is replaced by the
// resolved ground elevation plus geoid undulation.
func (t *Transformer) ToECEF(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset, usePreciseAltitude bool) (model.EcefPosition, model.AltitudeSample, error) {
	if err := ValidatePosition(anchor); err != nil {
		return model.EcefPosition{}, model.AltitudeSample{}, err
	}
	if err := ValidateOffset(offset); err != nil {
		return model.EcefPosition{}, model.AltitudeSample{}, err
	}

	sample := model.AltitudeSample{
		EllipsoidalMeters: anchor.AltitudeMeters,
		Source:            model.AltitudeSourceAnchor,
	}
	if usePreciseAltitude {
		if t.altitude == nil {
			return model.EcefPosition{}, model.AltitudeSample{}, fmt.Errorf("%w: no altitude source configured", ErrAltitudeUnavailable)
		}
		resolved, err := t.altitude.ResolvePreciseAltitude(ctx, anchor.LatitudeDeg, anchor.LongitudeDeg)
		if err != nil {
			return model.EcefPosition{}, model.AltitudeSample{}, err
		}
		if !isFinite(resolved.EllipsoidalMeters) {
			return model.EcefPosition{}, model.AltitudeSample{}, fmt.Errorf("%w: resolved altitude %g is not finite", ErrAltitudeUnavailable, resolved.EllipsoidalMeters)
		}
		sample = resolved
		sample.Source = model.AltitudeSourcePrecise
	}

	origin := GeodeticToECEF(t.ellipsoid, anchor.WithAltitude(sample.EllipsoidalMeters))
	return model.EcefPosition{
		X: origin.X + offset.X,
		Y: origin.Y + offset.Y,
		Z: origin.Z + offset.Z,
	}, sample, nil
}

// GeodeticToECEF converts a geodetic position (degrees, ellipsoidal metres)
// into ECEF metres on ellipsoid e.
func GeodeticToECEF(e Ellipsoid, pos model.GeographicPosition) Vector3 {
	phi := pos.LatitudeDeg * math.Pi / 180.0
	lambda := pos.LongitudeDeg * math.Pi / 180.0
	h := pos.AltitudeMeters

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)

	n := e.PrimeVerticalRadius(phi)
	return Vector3{
		X: (n + h) * cosPhi * math.Cos(lambda),
		Y: (n + h) * cosPhi * math.Sin(lambda),
		Z: ((1-e.E2())*n + h) * sinPhi,
	}
}

// ValidatePosition checks that pos is finite and within the geographic range.
func ValidatePosition(pos model.GeographicPosition) error {
	if !isFinite(pos.LatitudeDeg) || !isFinite(pos.LongitudeDeg) || !isFinite(pos.AltitudeMeters) {
		return fmt.Errorf("%w: non-finite component in %+v", ErrInvalidPosition, pos)
	}
	if pos.LatitudeDeg < -90 || pos.LatitudeDeg > 90 {
		return fmt.Errorf("%w: latitude %g outside [-90, 90]", ErrInvalidPosition, pos.LatitudeDeg)
	}
	if pos.LongitudeDeg < -180 || pos.LongitudeDeg > 180 {
		return fmt.Errorf("%w: longitude %g outside [-180, 180]", ErrInvalidPosition, pos.LongitudeDeg)
	}
	return nil
}

// ValidateOffset checks that every offset component is finite.
func ValidateOffset(offset model.LocalOffset) error {
	if !isFinite(offset.X) || !isFinite(offset.Y) || !isFinite(offset.Z) {
		return fmt.Errorf("%w: non-finite component in %+v", ErrInvalidOffset, offset)
	}
	return nil
}

func toVector(p model.EcefPosition) Vector3 {
	return Vector3{X: p.X, Y: p.Y, Z: p.Z}
}
