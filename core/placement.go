package core

import (
	"context"

	"github.com/signalsfoundry/geoplace/model"
)

// Placement is the world-space pose of a placed object.
type Placement struct {
	Position    model.EcefPosition
	Orientation Orientation
	Altitude    model.AltitudeSample
}

// PlacementOptions selects the altitude mode and orientation options for a
// single placement.
type PlacementOptions struct {
	PreciseAltitude bool
	Orientation     OrientationOptions
}

// Pipeline composes the ECEF transform and the surface orientation.
type Pipeline struct {
	transformer *Transformer
	orienter    *Orienter
}

// NewPipeline wires a Pipeline. defaults apply to every placement that does
// not override them.
func NewPipeline(t *Transformer, defaults OrientationOptions) *Pipeline {
	if t == nil {
		t = NewTransformer()
	}
	return &Pipeline{
		transformer: t,
		orienter:    NewOrienter(t, defaults),
	}
}

// Transformer exposes the underlying transform.
func (p *Pipeline) Transformer() *Transformer { return p.transformer }

// Orienter exposes the underlying orientation builder.
func (p *Pipeline) Orienter() *Orienter { return p.orienter }

// PlaceObject computes the ECEF position of offset relative to anchor and the
// orientation the object must be given there. Nothing is returned unless
// both steps succeed.
func (p *Pipeline) PlaceObject(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset, opts PlacementOptions) (Placement, error) {
	pos, sample, err := p.transformer.ToECEF(ctx, anchor, offset, opts.PreciseAltitude)
	if err != nil {
		return Placement{}, err
	}
	orient, err := p.orienter.ComputeOrientationWith(ctx, anchor, offset, opts.Orientation)
	if err != nil {
		return Placement{}, err
	}
	return Placement{
		Position:    pos,
		Orientation: orient,
		Altitude:    sample,
	}, nil
}

// BakeTransform returns the column-major 4x4 world matrix for pl, as an
// exporter writes it into an asset's node transform.
func BakeTransform(pl Placement) [16]float64 {
	q := pl.Orientation.Quaternion
	x := q.Rotate(Vector3{X: 1})
	y := q.Rotate(Vector3{Y: 1})
	z := q.Rotate(Vector3{Z: 1})
	return [16]float64{
		x.X, x.Y, x.Z, 0,
		y.X, y.Y, y.Z, 0,
		z.X, z.Y, z.Z, 0,
		pl.Position.X, pl.Position.Y, pl.Position.Z, 1,
	}
}
