package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/geoplace/model"
)

// DefaultSampleHeightMeters is the vertical step used to sample the local
// up direction by finite difference.
const DefaultSampleHeightMeters = 100.0

// degenerateCrossNorm bounds |PolarAxis × up| below which east is undefined.
const degenerateCrossNorm = 1e-9

// unitTolerance is the allowed deviation of a returned quaternion's norm.
const unitTolerance = 1e-6

// OrientationStrategy selects how the local rotation is derived.
type OrientationStrategy string

const (
	// StrategyTangentFrame builds east/north/up from the ellipsoidal surface
	// normal. This is the default.
	StrategyTangentFrame OrientationStrategy = "tangent-frame"

	// StrategyAxisAngle rotates +Z onto the geocentric direction of the
	// placed position. It matches the surface normal only on a sphere.
	StrategyAxisAngle OrientationStrategy = "axis-angle"
)

// ParseOrientationStrategy maps a configuration string onto a strategy. The
// empty string selects StrategyTangentFrame.
func ParseOrientationStrategy(s string) (OrientationStrategy, error) {
	switch OrientationStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyTangentFrame:
		return StrategyTangentFrame, nil
	case StrategyAxisAngle:
		return StrategyAxisAngle, nil
	default:
		return "", fmt.Errorf("unknown orientation strategy %q", s)
	}
}

// ReferenceFrame names the object's own up axis.
type ReferenceFrame string

const (
	// ReferenceZUp treats the object's +Z as up.
	ReferenceZUp ReferenceFrame = "z-up"
	// ReferenceYUp treats the object's +Y as up, as glTF assets do. A
	// quarter turn about +X is appended to the surface rotation.
	ReferenceYUp ReferenceFrame = "y-up"
)

// ParseReferenceFrame maps a configuration string onto a reference frame. The
// empty string selects ReferenceZUp.
func ParseReferenceFrame(s string) (ReferenceFrame, error) {
	switch ReferenceFrame(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReferenceZUp:
		return ReferenceZUp, nil
	case ReferenceYUp:
		return ReferenceYUp, nil
	default:
		return "", fmt.Errorf("unknown reference frame %q", s)
	}
}

// SurfaceFrame is an orthonormal right-handed basis at a point near the
// ellipsoid surface, expressed in ECEF.
type SurfaceFrame struct {
	East  Vector3
	North Vector3
	Up    Vector3
}

// Matrix returns the 3x3 rotation matrix with columns [east, north, up].
func (f SurfaceFrame) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		f.East.X, f.North.X, f.Up.X,
		f.East.Y, f.North.Y, f.Up.Y,
		f.East.Z, f.North.Z, f.Up.Z,
	})
}

// Orthonormal reports whether the frame is orthonormal and right-handed
// within tol.
func (f SurfaceFrame) Orthonormal(tol float64) bool {
	m := f.Matrix()
	var rtr mat.Dense
	rtr.Mul(m.T(), m)
	if !mat.EqualApprox(&rtr, mat.NewDiagDense(3, []float64{1, 1, 1}), tol) {
		return false
	}
	return math.Abs(mat.Det(m)-1) <= tol
}

// Orientation is the rotation from the object's reference frame to the local
// surface frame, together with the frame it was derived from.
type Orientation struct {
	Quaternion Quaternion
	Frame      SurfaceFrame
}

// OrientationOptions tunes ComputeOrientation. Zero values select defaults.
type OrientationOptions struct {
	Strategy           OrientationStrategy
	Reference          ReferenceFrame
	SampleHeightMeters float64
}

func (o OrientationOptions) withDefaults() OrientationOptions {
	if o.Strategy == "" {
		o.Strategy = StrategyTangentFrame
	}
	if o.Reference == "" {
		o.Reference = ReferenceZUp
	}
	if o.SampleHeightMeters <= 0 || !isFinite(o.SampleHeightMeters) {
		o.SampleHeightMeters = DefaultSampleHeightMeters
	}
	return o
}

// Orienter derives object orientations from repeated ECEF conversions.
type Orienter struct {
	transformer *Transformer
	defaults    OrientationOptions
}

// NewOrienter builds an Orienter on top of t using defaults for requests
// that leave options unset.
func NewOrienter(t *Transformer, defaults OrientationOptions) *Orienter {
	if t == nil {
		t = NewTransformer()
	}
	return &Orienter{transformer: t, defaults: defaults.withDefaults()}
}

// ComputeOrientation derives the orientation for an object at offset from
// anchor using the Orienter's default options.
func (o *Orienter) ComputeOrientation(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset) (Orientation, error) {
	return o.ComputeOrientationWith(ctx, anchor, offset, OrientationOptions{})
}

// ComputeOrientationWith is ComputeOrientation with per-call overrides.
//
// The tangent frame is undefined at the geographic poles, where up is
// parallel to the polar axis; those inputs fail with ErrDegenerateOrientation
// rather than being corrected.
func (o *Orienter) ComputeOrientationWith(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset, overrides OrientationOptions) (Orientation, error) {
	opts := o.merge(overrides)

	var (
		orient Orientation
		err    error
	)
	switch opts.Strategy {
	case StrategyTangentFrame:
		orient, err = o.tangentFrame(ctx, anchor, offset, opts.SampleHeightMeters)
	case StrategyAxisAngle:
		orient, err = o.axisAngle(ctx, anchor, offset)
	default:
		return Orientation{}, fmt.Errorf("unknown orientation strategy %q", opts.Strategy)
	}
	if err != nil {
		return Orientation{}, err
	}

	if opts.Reference == ReferenceYUp {
		orient.Quaternion = orient.Quaternion.Multiply(yUpToZUp)
	}
	if err := checkUnit(orient.Quaternion); err != nil {
		return Orientation{}, err
	}
	orient.Quaternion = orient.Quaternion.Normalize()
	return orient, nil
}

// yUpToZUp is a quarter turn about +X, taking +Y onto +Z.
var yUpToZUp = Quaternion{X: math.Sin(math.Pi / 4), W: math.Cos(math.Pi / 4)}

func (o *Orienter) merge(overrides OrientationOptions) OrientationOptions {
	opts := o.defaults
	if overrides.Strategy != "" {
		opts.Strategy = overrides.Strategy
	}
	if overrides.Reference != "" {
		opts.Reference = overrides.Reference
	}
	if overrides.SampleHeightMeters > 0 {
		opts.SampleHeightMeters = overrides.SampleHeightMeters
	}
	return opts
}

func (o *Orienter) tangentFrame(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset, dh float64) (Orientation, error) {
	if err := ValidateOffset(offset); err != nil {
		return Orientation{}, err
	}

	var zero model.LocalOffset
	low, _, err := o.transformer.ToECEF(ctx, anchor, zero, false)
	if err != nil {
		return Orientation{}, err
	}
	high, _, err := o.transformer.ToECEF(ctx, anchor.WithAltitude(anchor.AltitudeMeters+dh), zero, false)
	if err != nil {
		return Orientation{}, err
	}

	up, err := toVector(high).Sub(toVector(low)).Normalize()
	if err != nil {
		return Orientation{}, fmt.Errorf("%w: up direction: %v", ErrDegenerateOrientation, err)
	}

	eastRaw := PolarAxis.Cross(up)
	if eastRaw.Norm() < degenerateCrossNorm {
		return Orientation{}, fmt.Errorf("%w: up is parallel to the polar axis at latitude %g", ErrDegenerateOrientation, anchor.LatitudeDeg)
	}
	east, err := eastRaw.Normalize()
	if err != nil {
		return Orientation{}, fmt.Errorf("%w: east direction: %v", ErrDegenerateOrientation, err)
	}
	north, err := up.Cross(east).Normalize()
	if err != nil {
		return Orientation{}, fmt.Errorf("%w: north direction: %v", ErrDegenerateOrientation, err)
	}

	return Orientation{
		Quaternion: QuaternionFromBasis(east, north, up),
		Frame:      SurfaceFrame{East: east, North: north, Up: up},
	}, nil
}

func (o *Orienter) axisAngle(ctx context.Context, anchor model.GeographicPosition, offset model.LocalOffset) (Orientation, error) {
	pos, _, err := o.transformer.ToECEF(ctx, anchor, offset, false)
	if err != nil {
		return Orientation{}, err
	}
	radial, err := toVector(pos).Normalize()
	if err != nil {
		return Orientation{}, fmt.Errorf("%w: radial direction: %v", ErrDegenerateOrientation, err)
	}

	ref := Vector3{Z: 1}
	axis := ref.Cross(radial)
	cosAngle := math.Max(-1, math.Min(1, ref.Dot(radial)))

	var rot r3.Rotation
	switch {
	case axis.Norm() >= degenerateCrossNorm:
		rot = r3.NewRotation(math.Acos(cosAngle), r3.Vec{X: axis.X, Y: axis.Y, Z: axis.Z})
	case cosAngle > 0:
		rot = r3.NewRotation(0, r3.Vec{X: 1})
	default:
		rot = r3.NewRotation(math.Pi, r3.Vec{X: 1})
	}

	return Orientation{
		Quaternion: Quaternion{X: rot.Imag, Y: rot.Jmag, Z: rot.Kmag, W: rot.Real},
		Frame: SurfaceFrame{
			East:  fromR3(rot.Rotate(r3.Vec{X: 1})),
			North: fromR3(rot.Rotate(r3.Vec{Y: 1})),
			Up:    fromR3(rot.Rotate(r3.Vec{Z: 1})),
		},
	}, nil
}

func checkUnit(q Quaternion) error {
	if !q.IsFinite() {
		return fmt.Errorf("%w: non-finite quaternion %+v", ErrDegenerateOrientation, q)
	}
	if math.Abs(q.Norm()-1) > unitTolerance {
		return fmt.Errorf("%w: quaternion norm %g is not unit", ErrDegenerateOrientation, q.Norm())
	}
	return nil
}

func fromR3(v r3.Vec) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}
