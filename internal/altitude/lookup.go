// Package altitude resolves the precise ellipsoidal altitude of a surface
// point from two independent collaborators: a ground elevation lookup and a
// geoid undulation lookup.
package altitude

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/geoplace/model"
)

// StatusOK is the only elevation status treated as success.
const StatusOK = "OK"

// ElevationResult is one entry of an elevation lookup.
type ElevationResult struct {
	Location        model.LatLng
	Status          string
	ElevationMeters float64
}

// ElevationLookup returns ground elevation (height above the geoid) for a
// batch of locations. Results are positional.
type ElevationLookup interface {
	Elevations(ctx context.Context, locations []model.LatLng) ([]ElevationResult, error)
}

// GeoidSample is the undulation of the geoid above the ellipsoid at a point.
// Found is false when the collaborator has no data there.
type GeoidSample struct {
	Meters float64
	Found  bool
}

// GeoidLookup returns the geoid undulation at a point.
type GeoidLookup interface {
	Undulation(ctx context.Context, latDeg, lngDeg float64) (GeoidSample, error)
}

// StaticElevation reports the same elevation for every location.
type StaticElevation struct {
	Meters float64
	// Status defaults to StatusOK when empty.
	Status string
}

func (s StaticElevation) Elevations(ctx context.Context, locations []model.LatLng) ([]ElevationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := s.Status
	if status == "" {
		status = StatusOK
	}
	out := make([]ElevationResult, len(locations))
	for i, loc := range locations {
		out[i] = ElevationResult{Location: loc, Status: status, ElevationMeters: s.Meters}
	}
	return out, nil
}

// StaticGeoid reports the same undulation everywhere, or no data at all when
// Missing is set.
type StaticGeoid struct {
	Meters  float64
	Missing bool
}

func (s StaticGeoid) Undulation(ctx context.Context, _, _ float64) (GeoidSample, error) {
	if err := ctx.Err(); err != nil {
		return GeoidSample{}, err
	}
	if s.Missing {
		return GeoidSample{}, nil
	}
	return GeoidSample{Meters: s.Meters, Found: true}, nil
}

// GeoidChain consults each lookup in order and returns the first sample that
// was found. Errors from earlier links are only reported when no link found
// data.
type GeoidChain []GeoidLookup

func (c GeoidChain) Undulation(ctx context.Context, latDeg, lngDeg float64) (GeoidSample, error) {
	var errs []error
	for _, g := range c {
		if g == nil {
			continue
		}
		sample, err := g.Undulation(ctx, latDeg, lngDeg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sample.Found {
			return sample, nil
		}
	}
	return GeoidSample{}, errors.Join(errs...)
}

// LazyElevation defers construction of an expensive elevation handle until
// first use. The factory runs at most once; a construction failure is
// remembered and returned on every call.
type LazyElevation struct {
	factory func() (ElevationLookup, error)

	once   sync.Once
	lookup ElevationLookup
	err    error
}

// NewLazyElevation wraps factory in a LazyElevation.
func NewLazyElevation(factory func() (ElevationLookup, error)) *LazyElevation {
	return &LazyElevation{factory: factory}
}

func (l *LazyElevation) get() (ElevationLookup, error) {
	l.once.Do(func() {
		if l.factory == nil {
			l.err = errors.New("altitude: nil elevation factory")
			return
		}
		l.lookup, l.err = l.factory()
		if l.err == nil && l.lookup == nil {
			l.err = errors.New("altitude: elevation factory returned nil lookup")
		}
	})
	return l.lookup, l.err
}

func (l *LazyElevation) Elevations(ctx context.Context, locations []model.LatLng) ([]ElevationResult, error) {
	lookup, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("init elevation lookup: %w", err)
	}
	return lookup.Elevations(ctx, locations)
}
