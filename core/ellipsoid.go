package core

import "math"

// Ellipsoid is a reference ellipsoid described by its equatorial radius A
// (metres) and flattening F.
type Ellipsoid struct {
	A float64
	F float64
}

// WGS84 is the reference ellipsoid used throughout the package.
var WGS84 = Ellipsoid{
	A: 6378137.0,
	F: 1.0 / 298.257223563,
}

// B returns the polar radius in metres.
func (e Ellipsoid) B() float64 {
	return e.A * (1 - e.F)
}

// E2 returns the first eccentricity squared, (a²-b²)/a².
func (e Ellipsoid) E2() float64 {
	b := e.B()
	return (e.A*e.A - b*b) / (e.A * e.A)
}

// PrimeVerticalRadius returns N(φ), the radius of curvature in the prime
// vertical at geodetic latitude phi (radians).
func (e Ellipsoid) PrimeVerticalRadius(phi float64) float64 {
	sinPhi := math.Sin(phi)
	return e.A / math.Sqrt(1-e.E2()*sinPhi*sinPhi)
}
