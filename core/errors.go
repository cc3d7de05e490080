package core

import "errors"

var (
	// ErrAltitudeUnavailable is returned when precise altitude was requested
	// but no ground elevation could be obtained. Callers must not fall back to
	// a zero altitude on this path.
	ErrAltitudeUnavailable = errors.New("altitude unavailable")

	// ErrDegenerateOrientation is returned when the tangent frame cannot be
	// built, e.g. at the geographic poles, or when a non-finite value would
	// otherwise leak into the orientation.
	ErrDegenerateOrientation = errors.New("degenerate orientation")

	// ErrInvalidPosition marks a geographic position that is non-finite or
	// outside the valid latitude/longitude range.
	ErrInvalidPosition = errors.New("invalid geographic position")

	// ErrInvalidOffset marks a local offset with a non-finite component.
	ErrInvalidOffset = errors.New("invalid local offset")
)
