package model

// AltitudeSource records where the altitude used for a conversion came from.
type AltitudeSource int

const (
	AltitudeSourceAnchor  AltitudeSource = iota // anchor altitude used verbatim
	AltitudeSourcePrecise                       // ground elevation + geoid undulation
)

func (s AltitudeSource) String() string {
	switch s {
	case AltitudeSourcePrecise:
		return "precise"
	default:
		return "anchor"
	}
}

// AltitudeSample is the ellipsoidal altitude fed into an ECEF conversion.
// The elevation and undulation components are only populated for
// AltitudeSourcePrecise samples.
type AltitudeSample struct {
	EllipsoidalMeters float64
	Source            AltitudeSource

	GroundElevationMeters float64
	GeoidUndulationMeters float64

	// GeoidMissing is set when no undulation was available and zero was
	// substituted. The sample is still usable but less accurate.
	GeoidMissing bool
}
