package model

// GeographicPosition is a geodetic point. Altitude is height above the
// reference ellipsoid unless a caller documents it as orthometric.
type GeographicPosition struct {
	LatitudeDeg    float64 // [-90, 90]
	LongitudeDeg   float64 // [-180, 180]
	AltitudeMeters float64
}

// WithAltitude returns a copy of p at the given altitude.
func (p GeographicPosition) WithAltitude(meters float64) GeographicPosition {
	p.AltitudeMeters = meters
	return p
}

// LatLng returns the horizontal component of p.
func (p GeographicPosition) LatLng() LatLng {
	return LatLng{Lat: p.LatitudeDeg, Lng: p.LongitudeDeg}
}

// LatLng is a horizontal location in degrees, used when querying altitude
// collaborators.
type LatLng struct {
	Lat float64
	Lng float64
}

// LocalOffset is a displacement in metres in the right-handed Cartesian frame
// whose origin is a GeographicPosition anchor.
type LocalOffset struct {
	X float64
	Y float64
	Z float64
}

// EcefPosition is a position in Earth-Centered-Earth-Fixed metres.
type EcefPosition struct {
	X float64
	Y float64
	Z float64
}
