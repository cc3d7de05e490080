package altitude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/signalsfoundry/geoplace/model"
)

const (
	// DefaultElevationURL is the Google Maps Elevation API endpoint.
	DefaultElevationURL = "https://maps.googleapis.com/maps/api/elevation/json"

	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPElevation queries a Google-Elevation-style JSON endpoint.
type HTTPElevation struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPOption configures the HTTP collaborators.
type HTTPOption func(*http.Client)

// WithHTTPClient replaces the underlying client wholesale.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(dst *http.Client) {
		if c != nil {
			*dst = *c
		}
	}
}

// WithTimeout sets the per-request client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *http.Client) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func newHTTPClient(opts []HTTPOption) *http.Client {
	c := &http.Client{Timeout: defaultHTTPTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPElevation creates an elevation client for baseURL, falling back to
// DefaultElevationURL when empty.
func NewHTTPElevation(baseURL, apiKey string, opts ...HTTPOption) *HTTPElevation {
	if baseURL == "" {
		baseURL = DefaultElevationURL
	}
	return &HTTPElevation{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: newHTTPClient(opts),
	}
}

type elevationResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		Elevation float64 `json:"elevation"`
		Location  struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"results"`
}

// Elevations looks up every location in a single request. A non-OK overall
// status is reported on each result rather than as an error; transport and
// decoding failures are errors.
func (e *HTTPElevation) Elevations(ctx context.Context, locations []model.LatLng) ([]ElevationResult, error) {
	if len(locations) == 0 {
		return nil, nil
	}

	reqURL, err := e.requestURL(locations)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating elevation request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching elevation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from elevation service", resp.StatusCode)
	}

	var body elevationResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding elevation response: %w", err)
	}

	if body.Status != StatusOK {
		status := body.Status
		if status == "" {
			status = "UNKNOWN_ERROR"
		}
		out := make([]ElevationResult, len(locations))
		for i, loc := range locations {
			out[i] = ElevationResult{Location: loc, Status: status}
		}
		return out, nil
	}

	out := make([]ElevationResult, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, ElevationResult{
			Location:        model.LatLng{Lat: r.Location.Lat, Lng: r.Location.Lng},
			Status:          StatusOK,
			ElevationMeters: r.Elevation,
		})
	}
	return out, nil
}

func (e *HTTPElevation) requestURL(locations []model.LatLng) (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing elevation url: %w", err)
	}
	parts := make([]string, len(locations))
	for i, loc := range locations {
		parts[i] = fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)
	}
	q := u.Query()
	q.Set("locations", strings.Join(parts, "|"))
	if e.apiKey != "" {
		q.Set("key", e.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
