package altitude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPGeoid queries a geoid-height service of the form
// GET base?lat=<deg>&lng=<deg> -> {"geoidHeight": <meters>}.
type HTTPGeoid struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGeoid creates a geoid client for baseURL.
func NewHTTPGeoid(baseURL string, opts ...HTTPOption) *HTTPGeoid {
	return &HTTPGeoid{
		baseURL:    baseURL,
		httpClient: newHTTPClient(opts),
	}
}

type geoidResponse struct {
	GeoidHeight *float64 `json:"geoidHeight"`
}

// Undulation returns Found=false without an error when the service answers
// with a non-200 status or omits geoidHeight. Transport and decoding
// failures are errors.
func (g *HTTPGeoid) Undulation(ctx context.Context, latDeg, lngDeg float64) (GeoidSample, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return GeoidSample{}, fmt.Errorf("parsing geoid url: %w", err)
	}
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%.6f", latDeg))
	q.Set("lng", fmt.Sprintf("%.6f", lngDeg))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return GeoidSample{}, fmt.Errorf("creating geoid request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return GeoidSample{}, fmt.Errorf("fetching geoid height: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GeoidSample{}, nil
	}

	var body geoidResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return GeoidSample{}, fmt.Errorf("decoding geoid response: %w", err)
	}
	if body.GeoidHeight == nil {
		return GeoidSample{}, nil
	}
	return GeoidSample{Meters: *body.GeoidHeight, Found: true}, nil
}
