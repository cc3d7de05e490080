package config

import (
	"errors"

	"github.com/signalsfoundry/geoplace/internal/altitude"
)

// ErrMissingAPIKey is returned on first elevation lookup when the Google
// endpoint is configured without a key.
var ErrMissingAPIKey = errors.New("elevation api key is required for " + altitude.DefaultElevationURL)

// NewElevationLookup builds the elevation collaborator. Remote lookups are
// wrapped in a LazyElevation so the client is constructed on first use and
// shared afterwards.
func (c Config) NewElevationLookup() altitude.ElevationLookup {
	if c.Elevation.StaticMeters != nil {
		return altitude.StaticElevation{Meters: *c.Elevation.StaticMeters}
	}
	url, key, timeout := c.Elevation.URL, c.Elevation.APIKey, c.ElevationTimeout()
	return altitude.NewLazyElevation(func() (altitude.ElevationLookup, error) {
		if url == altitude.DefaultElevationURL && key == "" {
			return nil, ErrMissingAPIKey
		}
		return altitude.NewHTTPElevation(url, key, altitude.WithTimeout(timeout)), nil
	})
}

// NewGeoidLookup builds the geoid collaborator for the configured model.
func (c Config) NewGeoidLookup() (altitude.GeoidLookup, error) {
	return altitude.NewGeoidLookup(c.Geoid.Model, c.Geoid.URL, altitude.WithTimeout(c.GeoidTimeout()))
}

// NewResolver wires both collaborators into an altitude.Resolver.
func (c Config) NewResolver(opts ...altitude.Option) (*altitude.Resolver, error) {
	geoid, err := c.NewGeoidLookup()
	if err != nil {
		return nil, err
	}
	return altitude.NewResolver(c.NewElevationLookup(), geoid, opts...), nil
}
