package altitude

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/westphae/geomag/pkg/egm96"
)

// EGM96Geoid computes undulation offline from the EGM96 geopotential model.
type EGM96Geoid struct{}

// Undulation returns N such that ellipsoidal height = orthometric height + N.
// lngDeg is in [-180, 180]; the model grid is indexed by east longitude in
// [0, 360) and the conversion happens here.
func (EGM96Geoid) Undulation(ctx context.Context, latDeg, lngDeg float64) (GeoidSample, error) {
	if err := ctx.Err(); err != nil {
		return GeoidSample{}, err
	}
	// At zero ellipsoidal height the height above MSL is exactly -N.
	loc := egm96.NewLocationGeodetic(latDeg, eastLongitude(lngDeg), 0)
	msl, err := loc.HeightAboveMSL()
	if err != nil {
		return GeoidSample{}, fmt.Errorf("egm96 undulation at (%.6f, %.6f): %w", latDeg, lngDeg, err)
	}
	if math.IsNaN(msl) || math.IsInf(msl, 0) {
		return GeoidSample{}, nil
	}
	return GeoidSample{Meters: -msl, Found: true}, nil
}

// eastLongitude maps a longitude in degrees onto [0, 360).
func eastLongitude(lngDeg float64) float64 {
	lng := math.Mod(lngDeg, 360)
	if lng < 0 {
		lng += 360
	}
	// -1e-20 + 360 rounds to 360.
	if lng >= 360 {
		lng = 0
	}
	return lng
}

// Geoid model names accepted by NewGeoidLookup.
const (
	GeoidModelRemote      = "remote"
	GeoidModelEGM96       = "egm96"
	GeoidModelRemoteEGM96 = "remote+egm96"
	GeoidModelNone        = "none"
)

// NewGeoidLookup builds the geoid collaborator for model. remoteURL is only
// consulted by the remote variants.
func NewGeoidLookup(model, remoteURL string, opts ...HTTPOption) (GeoidLookup, error) {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case GeoidModelRemote:
		if remoteURL == "" {
			return nil, fmt.Errorf("geoid model %q requires a service url", model)
		}
		return NewHTTPGeoid(remoteURL, opts...), nil
	case GeoidModelEGM96:
		return EGM96Geoid{}, nil
	case "", GeoidModelRemoteEGM96:
		if remoteURL == "" {
			return EGM96Geoid{}, nil
		}
		return GeoidChain{NewHTTPGeoid(remoteURL, opts...), EGM96Geoid{}}, nil
	case GeoidModelNone:
		return StaticGeoid{Missing: true}, nil
	default:
		return nil, fmt.Errorf("unknown geoid model %q", model)
	}
}
