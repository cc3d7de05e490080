package core

import (
	"fmt"
	"math"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/geoplace/model"
)

// SphericalEarthRadius is the radius used by LocalToGeographic (metres).
const SphericalEarthRadius = 6378137.0

// LocalToGeographic reads v as an Earth-centred vector and returns its
// latitude, longitude and height above a sphere of SphericalEarthRadius.
//
// This is a display approximation: geocentric rather than geodetic latitude,
// and altitude off by up to ~21 km towards the poles. Never feed the result
// back into a precise placement.
func LocalToGeographic(v Vector3) model.GeographicPosition {
	lat := math.Atan2(v.Z, math.Sqrt(v.X*v.X+v.Y*v.Y)) * 180.0 / math.Pi
	lng := math.Atan2(v.Y, v.X) * 180.0 / math.Pi
	return model.GeographicPosition{
		LatitudeDeg:    lat,
		LongitudeDeg:   lng,
		AltitudeMeters: v.Norm() - SphericalEarthRadius,
	}
}

// ECEFToGeodetic inverts GeodeticToECEF on the WGS84 ellipsoid.
//
// go-satellite solves the ECI case; with a Greenwich sidereal angle of zero
// the ECI and ECEF frames coincide. It works in kilometres. Points on the
// polar axis have no defined longitude and are rejected.
func ECEFToGeodetic(p model.EcefPosition) (model.GeographicPosition, error) {
	v := toVector(p)
	if !v.IsFinite() {
		return model.GeographicPosition{}, fmt.Errorf("%w: non-finite ECEF position %+v", ErrInvalidPosition, p)
	}
	if math.Hypot(v.X, v.Y) < 1e-3 {
		return model.GeographicPosition{}, fmt.Errorf("%w: ECEF position %+v lies on the polar axis", ErrInvalidPosition, p)
	}

	const kmToM = 1000.0
	altKm, _, ll := satellite.ECIToLLA(satellite.Vector3{
		X: v.X / kmToM,
		Y: v.Y / kmToM,
		Z: v.Z / kmToM,
	}, 0)

	return model.GeographicPosition{
		LatitudeDeg:    ll.Latitude * 180.0 / math.Pi,
		LongitudeDeg:   wrapLongitude(ll.Longitude * 180.0 / math.Pi),
		AltitudeMeters: altKm * kmToM,
	}, nil
}

func wrapLongitude(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
