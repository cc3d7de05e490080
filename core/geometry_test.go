package core

import (
	"math"
	"testing"
)

func TestVector3Cross_RightHanded(t *testing.T) {
	x := Vector3{X: 1}
	y := Vector3{Y: 1}

	if got := x.Cross(y); got != (Vector3{Z: 1}) {
		t.Fatalf("X × Y = %+v, want +Z", got)
	}
	if got := y.Cross(x); got != (Vector3{Z: -1}) {
		t.Fatalf("Y × X = %+v, want -Z", got)
	}
}

func TestVector3Normalize(t *testing.T) {
	v, err := Vector3{X: 3, Y: 4}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if math.Abs(v.Norm()-1) > 1e-12 {
		t.Errorf("norm = %v, want 1", v.Norm())
	}
	if math.Abs(v.X-0.6) > 1e-12 || math.Abs(v.Y-0.8) > 1e-12 {
		t.Errorf("Normalize = %+v, want (0.6, 0.8, 0)", v)
	}

	if _, err := (Vector3{}).Normalize(); err == nil {
		t.Errorf("expected error normalizing the zero vector")
	}
	if _, err := (Vector3{X: math.NaN()}).Normalize(); err == nil {
		t.Errorf("expected error normalizing a NaN vector")
	}
}

func TestQuaternionFromBasis_Identity(t *testing.T) {
	q := QuaternionFromBasis(Vector3{X: 1}, Vector3{Y: 1}, Vector3{Z: 1})
	if !quatNear(q, IdentityQuaternion, 1e-12) {
		t.Fatalf("QuaternionFromBasis(I) = %+v, want identity", q)
	}
}

func TestQuaternionFromBasis_AllBranches(t *testing.T) {
	t.Parallel()

	// Each case lands in a different branch of the trace/diagonal selection.
	tests := []struct {
		name  string
		axis  Vector3
		angle float64
	}{
		{name: "trace positive", axis: Vector3{X: 1, Y: 2, Z: 3}, angle: 0.4},
		{name: "x pivot", axis: Vector3{X: 1}, angle: math.Pi},
		{name: "y pivot", axis: Vector3{Y: 1, X: 0.1}, angle: 3.0},
		{name: "z pivot", axis: Vector3{Z: 1, Y: 0.2}, angle: 3.1},
		{name: "cyclic permutation", axis: Vector3{X: 1, Y: 1, Z: 1}, angle: 2 * math.Pi / 3},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			want, err := AxisAngle(tc.axis, tc.angle)
			if err != nil {
				t.Fatalf("AxisAngle: %v", err)
			}
			got := QuaternionFromBasis(
				want.Rotate(Vector3{X: 1}),
				want.Rotate(Vector3{Y: 1}),
				want.Rotate(Vector3{Z: 1}),
			)
			if math.Abs(got.Norm()-1) > 1e-9 {
				t.Fatalf("norm = %v, want 1", got.Norm())
			}
			// q and -q encode the same rotation.
			if !quatNear(got, want, 1e-9) && !quatNear(got, negate(want), 1e-9) {
				t.Fatalf("QuaternionFromBasis = %+v, want ±%+v", got, want)
			}
		})
	}
}

func TestQuaternionMultiply_ComposesRotations(t *testing.T) {
	rz, _ := AxisAngle(Vector3{Z: 1}, math.Pi/2)
	rx, _ := AxisAngle(Vector3{X: 1}, math.Pi/2)

	// rz ⊗ rx applies rx first: +Y -> +Z -> +Z.
	got := rz.Multiply(rx).Rotate(Vector3{Y: 1})
	if !vecNear(got, Vector3{Z: 1}, 1e-12) {
		t.Fatalf("(rz ⊗ rx)·Y = %+v, want +Z", got)
	}
	// rx ⊗ rz applies rz first: +Y -> -X -> -X.
	got = rx.Multiply(rz).Rotate(Vector3{Y: 1})
	if !vecNear(got, Vector3{X: -1}, 1e-12) {
		t.Fatalf("(rx ⊗ rz)·Y = %+v, want -X", got)
	}
}

func quatNear(a, b Quaternion, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol && math.Abs(a.W-b.W) <= tol
}

func negate(q Quaternion) Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

func vecNear(a, b Vector3, tol float64) bool {
	return a.Sub(b).Norm() <= tol
}
