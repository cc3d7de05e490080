package altitude

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/signalsfoundry/geoplace/model"
)

func TestHTTPElevation_Success(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"elevation":28.5,"location":{"lat":37.423651,"lng":-122.092138}}]}`))
	}))
	defer srv.Close()

	e := NewHTTPElevation(srv.URL, "secret")
	got, err := e.Elevations(context.Background(), []model.LatLng{{Lat: 37.42365071290318, Lng: -122.09213813335974}})
	if err != nil {
		t.Fatalf("Elevations: %v", err)
	}
	if len(got) != 1 || got[0].Status != StatusOK || got[0].ElevationMeters != 28.5 {
		t.Fatalf("Elevations = %+v, want one OK result at 28.5", got)
	}
	for _, want := range []string{"locations=37.423651%2C-122.092138", "key=secret"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestHTTPElevation_BatchesLocations(t *testing.T) {
	t.Parallel()

	var locations string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locations = r.URL.Query().Get("locations")
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"elevation":1},{"elevation":2}]}`))
	}))
	defer srv.Close()

	got, err := NewHTTPElevation(srv.URL, "").Elevations(context.Background(), []model.LatLng{{Lat: 1, Lng: 2}, {Lat: -3.5, Lng: 4.25}})
	if err != nil {
		t.Fatalf("Elevations: %v", err)
	}
	if want := "1.000000,2.000000|-3.500000,4.250000"; locations != want {
		t.Fatalf("locations = %q, want %q", locations, want)
	}
	if len(got) != 2 || got[1].ElevationMeters != 2 {
		t.Fatalf("Elevations = %+v", got)
	}
}

func TestHTTPElevation_NonOKStatusIsPerResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`))
	}))
	defer srv.Close()

	got, err := NewHTTPElevation(srv.URL, "bad").Elevations(context.Background(), []model.LatLng{{Lat: 1, Lng: 1}})
	if err != nil {
		t.Fatalf("Elevations: %v", err)
	}
	if len(got) != 1 || got[0].Status != "REQUEST_DENIED" {
		t.Fatalf("Elevations = %+v, want REQUEST_DENIED result", got)
	}
}

func TestHTTPElevation_TransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"status":`)) }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			if _, err := NewHTTPElevation(srv.URL, "").Elevations(context.Background(), []model.LatLng{{}}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHTTPGeoid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantFound bool
		wantM     float64
	}{
		{"found", http.StatusOK, `{"geoidHeight":-32.15}`, true, -32.15},
		{"zero is data", http.StatusOK, `{"geoidHeight":0}`, true, 0},
		{"missing field", http.StatusOK, `{}`, false, 0},
		{"not found", http.StatusNotFound, `{"geoidHeight":12}`, false, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var lat, lng string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				lat, lng = r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := NewHTTPGeoid(srv.URL).Undulation(context.Background(), 37.42365071290318, -122.09213813335974)
			if err != nil {
				t.Fatalf("Undulation: %v", err)
			}
			if got.Found != tc.wantFound || got.Meters != tc.wantM {
				t.Fatalf("Undulation = %+v, want found=%v meters=%v", got, tc.wantFound, tc.wantM)
			}
			if lat != "37.423651" || lng != "-122.092138" {
				t.Fatalf("query lat=%q lng=%q", lat, lng)
			}
		})
	}
}

func TestHTTPGeoid_NetworkFailureIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewHTTPGeoid(url).Undulation(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error from closed server")
	}
}

func TestGeoidChain(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	chain := GeoidChain{errGeoid{boom}, StaticGeoid{Missing: true}, StaticGeoid{Meters: 7}}
	got, err := chain.Undulation(context.Background(), 0, 0)
	if err != nil || !got.Found || got.Meters != 7 {
		t.Fatalf("Undulation = %+v, %v; want 7 found", got, err)
	}

	_, err = GeoidChain{errGeoid{boom}, StaticGeoid{Missing: true}}.Undulation(context.Background(), 0, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("Undulation error = %v, want boom", err)
	}

	got, err = GeoidChain{}.Undulation(context.Background(), 0, 0)
	if err != nil || got.Found {
		t.Fatalf("empty chain = %+v, %v", got, err)
	}
}

func TestLazyElevation_BuildsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	lazy := NewLazyElevation(func() (ElevationLookup, error) {
		calls.Add(1)
		return StaticElevation{Meters: 3}, nil
	})
	if calls.Load() != 0 {
		t.Fatalf("factory ran before first use")
	}

	for i := 0; i < 5; i++ {
		res, err := lazy.Elevations(context.Background(), []model.LatLng{{}})
		if err != nil || res[0].ElevationMeters != 3 {
			t.Fatalf("Elevations = %+v, %v", res, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory calls = %d, want 1", n)
	}
}

func TestLazyElevation_RemembersFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	boom := errors.New("no credentials")
	lazy := NewLazyElevation(func() (ElevationLookup, error) {
		calls.Add(1)
		return nil, boom
	})
	for i := 0; i < 3; i++ {
		if _, err := lazy.Elevations(context.Background(), nil); !errors.Is(err, boom) {
			t.Fatalf("Elevations error = %v, want %v", err, boom)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory calls = %d, want 1", n)
	}
}

func TestNewGeoidLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model   string
		url     string
		want    string
		wantErr bool
	}{
		{model: "remote", url: "http://geoid.invalid", want: "*altitude.HTTPGeoid"},
		{model: "remote", wantErr: true},
		{model: "egm96", want: "altitude.EGM96Geoid"},
		{model: "", want: "altitude.EGM96Geoid"},
		{model: "remote+egm96", url: "http://geoid.invalid", want: "altitude.GeoidChain"},
		{model: "NONE", want: "altitude.StaticGeoid"},
		{model: "geoid18", wantErr: true},
	}

	for _, tc := range tests {
		got, err := NewGeoidLookup(tc.model, tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NewGeoidLookup(%q, %q) expected error", tc.model, tc.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewGeoidLookup(%q, %q): %v", tc.model, tc.url, err)
			continue
		}
		if name := typeName(got); name != tc.want {
			t.Errorf("NewGeoidLookup(%q, %q) = %s, want %s", tc.model, tc.url, name, tc.want)
		}
	}
}

func TestEGM96Geoid_GulfOfGuinea(t *testing.T) {
	t.Parallel()

	// EGM96 undulation at (0, 0) is about +17 m.
	got, err := EGM96Geoid{}.Undulation(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Undulation: %v", err)
	}
	if !got.Found || got.Meters < 10 || got.Meters > 25 {
		t.Fatalf("Undulation(0, 0) = %+v, want ~17 m", got)
	}
}

func TestEGM96Geoid_WesternHemisphere(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// New York harbour sits on a geoid low of about -33 m.
	got, err := EGM96Geoid{}.Undulation(ctx, 40.7, -74)
	if err != nil {
		t.Fatalf("Undulation(40.7, -74): %v", err)
	}
	if !got.Found || got.Meters < -36 || got.Meters > -30 {
		t.Fatalf("Undulation(40.7, -74) = %+v, want ~-32.8 m", got)
	}

	east, err := EGM96Geoid{}.Undulation(ctx, 40.7, 286)
	if err != nil {
		t.Fatalf("Undulation(40.7, 286): %v", err)
	}
	if east != got {
		t.Fatalf("Undulation(40.7, 286) = %+v, want %+v", east, got)
	}
}

func TestEastLongitude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{78, 78},
		{-74, 286},
		{-180, 180},
		{180, 180},
		{359.5, 359.5},
		{-1e-20, 0},
	}
	for _, tc := range tests {
		if got := eastLongitude(tc.in); got != tc.want {
			t.Errorf("eastLongitude(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResolver_EGM96WesternHemisphereHasNoFallback(t *testing.T) {
	t.Parallel()

	var warned atomic.Int32
	r := NewResolver(StaticElevation{Meters: 10}, EGM96Geoid{},
		WithWarningHandler(func(context.Context, FidelityWarning) { warned.Add(1) }))
	got, err := r.ResolvePreciseAltitude(context.Background(), 40.7, -74)
	if err != nil {
		t.Fatalf("ResolvePreciseAltitude: %v", err)
	}
	if got.GeoidMissing || warned.Load() != 0 {
		t.Fatalf("ResolvePreciseAltitude(40.7, -74) fell back to zero undulation: %+v", got)
	}
	if want := 10 + got.GeoidUndulationMeters; got.EllipsoidalMeters != want || got.GeoidUndulationMeters > -30 {
		t.Fatalf("ResolvePreciseAltitude(40.7, -74) = %+v, want elevation + ~-32.8 m", got)
	}
}

type errGeoid struct{ err error }

func (g errGeoid) Undulation(context.Context, float64, float64) (GeoidSample, error) {
	return GeoidSample{}, g.err
}
