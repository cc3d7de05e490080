package placementsvc

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/altitude"
	"github.com/signalsfoundry/geoplace/internal/logging"
	"github.com/signalsfoundry/geoplace/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type svcTestEnv struct {
	client   *Client
	recorder *placementCounts
}

func newTestEnv(t *testing.T, elevation altitude.ElevationLookup, geoid altitude.GeoidLookup) *svcTestEnv {
	t.Helper()

	resolver := altitude.NewResolver(elevation, geoid)
	pipeline := core.NewPipeline(core.NewTransformer(core.WithAltitudeSource(resolver)), core.OrientationOptions{})
	recorder := &placementCounts{}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(logging.Noop()),
		TracingUnaryServerInterceptor(),
	))
	RegisterPlacementServiceServer(srv, NewService(pipeline, resolver, WithPlacementRecorder(recorder)))
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})

	return &svcTestEnv{client: NewClient(conn), recorder: recorder}
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	return s
}

func number(t *testing.T, s *structpb.Struct, path ...string) float64 {
	t.Helper()
	for _, key := range path[:len(path)-1] {
		s = s.GetFields()[key].GetStructValue()
		if s == nil {
			t.Fatalf("missing object %q in %v", key, path)
		}
	}
	v, ok := s.GetFields()[path[len(path)-1]]
	if !ok {
		t.Fatalf("missing field %v", path)
	}
	return v.GetNumberValue()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPlaceObject_EquatorPrimeMeridian(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{}, altitude.StaticGeoid{})
	ctx := testContext(t)

	resp, err := env.client.PlaceObject(ctx, mustStruct(t, map[string]interface{}{
		"anchor": map[string]interface{}{"latitude_deg": 0.0, "longitude_deg": 0.0},
		"offset": map[string]interface{}{"z": 10.0},
	}))
	if err != nil {
		t.Fatalf("PlaceObject: %v", err)
	}

	if x := number(t, resp, "position", "x"); math.Abs(x-core.WGS84.A) > 1e-6 {
		t.Errorf("position.x = %v, want %v", x, core.WGS84.A)
	}
	if z := number(t, resp, "position", "z"); math.Abs(z-10) > 1e-9 {
		t.Errorf("position.z = %v, want 10", z)
	}
	for _, key := range []string{"x", "y", "z", "w"} {
		if q := number(t, resp, "orientation", key); math.Abs(q-0.5) > 1e-9 {
			t.Errorf("orientation.%s = %v, want 0.5", key, q)
		}
	}
	if up := number(t, resp, "frame", "up", "x"); math.Abs(up-1) > 1e-12 {
		t.Errorf("frame.up.x = %v, want 1", up)
	}
	transform := resp.GetFields()["transform"].GetListValue().GetValues()
	if len(transform) != 16 || transform[15].GetNumberValue() != 1 {
		t.Errorf("transform = %v, want 16 entries ending in 1", transform)
	}
	if src := resp.GetFields()["altitude"].GetStructValue().GetFields()["source"].GetStringValue(); src != "anchor" {
		t.Errorf("altitude.source = %q, want anchor", src)
	}
	if got := env.recorder.get("anchor", "ok"); got != 1 {
		t.Errorf("placements anchor/ok = %d, want 1", got)
	}
}

func TestPlaceObject_PreciseAltitudeWithMissingGeoid(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{Meters: 250}, altitude.StaticGeoid{Missing: true})
	ctx := testContext(t)

	resp, err := env.client.PlaceObject(ctx, mustStruct(t, map[string]interface{}{
		"anchor":           map[string]interface{}{"latitude_deg": 0.0, "longitude_deg": 0.0, "altitude_meters": 9999.0},
		"precise_altitude": true,
	}))
	if err != nil {
		t.Fatalf("PlaceObject: %v", err)
	}
	alt := resp.GetFields()["altitude"].GetStructValue()
	if got := number(t, alt, "ellipsoidal_meters"); got != 250 {
		t.Errorf("ellipsoidal_meters = %v, want 250", got)
	}
	if !alt.GetFields()["geoid_missing"].GetBoolValue() {
		t.Errorf("geoid_missing = false, want true")
	}
	if x := number(t, resp, "position", "x"); math.Abs(x-(core.WGS84.A+250)) > 1e-6 {
		t.Errorf("position.x = %v, want a+250", x)
	}
	if got := env.recorder.get("precise", "ok"); got != 1 {
		t.Errorf("placements precise/ok = %d, want 1", got)
	}
}

func TestPlaceObject_YUpReferenceFrame(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{}, altitude.StaticGeoid{})
	ctx := testContext(t)

	resp, err := env.client.PlaceObject(ctx, mustStruct(t, map[string]interface{}{
		"anchor":          map[string]interface{}{"latitude_deg": 0.0, "longitude_deg": 0.0},
		"reference_frame": "y-up",
	}))
	if err != nil {
		t.Fatalf("PlaceObject: %v", err)
	}
	q := core.Quaternion{
		X: number(t, resp, "orientation", "x"),
		Y: number(t, resp, "orientation", "y"),
		Z: number(t, resp, "orientation", "z"),
		W: number(t, resp, "orientation", "w"),
	}
	up := q.Rotate(core.Vector3{Y: 1})
	if math.Abs(up.X-1) > 1e-9 || math.Abs(up.Y) > 1e-9 || math.Abs(up.Z) > 1e-9 {
		t.Fatalf("y-up q·Y = %+v, want +X", up)
	}
}

func TestPlaceObject_Errors(t *testing.T) {
	tests := []struct {
		name      string
		elevation altitude.ElevationLookup
		req       map[string]interface{}
		code      codes.Code
		result    string
	}{
		{
			name: "missing anchor",
			req:  map[string]interface{}{},
			code: codes.InvalidArgument,
		},
		{
			name: "latitude out of range",
			req:  map[string]interface{}{"anchor": map[string]interface{}{"latitude_deg": 91.0, "longitude_deg": 0.0}},
			code: codes.InvalidArgument, result: "invalid",
		},
		{
			name: "wrong kind",
			req:  map[string]interface{}{"anchor": map[string]interface{}{"latitude_deg": "north", "longitude_deg": 0.0}},
			code: codes.InvalidArgument,
		},
		{
			name: "unknown strategy",
			req: map[string]interface{}{
				"anchor":   map[string]interface{}{"latitude_deg": 0.0, "longitude_deg": 0.0},
				"strategy": "slerp",
			},
			code: codes.InvalidArgument,
		},
		{
			name:      "elevation non-OK",
			elevation: altitude.StaticElevation{Status: "OVER_QUERY_LIMIT"},
			req: map[string]interface{}{
				"anchor":           map[string]interface{}{"latitude_deg": 10.0, "longitude_deg": 10.0},
				"precise_altitude": true,
			},
			code: codes.Unavailable, result: "altitude_unavailable",
		},
		{
			name: "pole",
			req:  map[string]interface{}{"anchor": map[string]interface{}{"latitude_deg": 90.0, "longitude_deg": 0.0}},
			code: codes.FailedPrecondition, result: "degenerate",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			elevation := tc.elevation
			if elevation == nil {
				elevation = altitude.StaticElevation{}
			}
			env := newTestEnv(t, elevation, altitude.StaticGeoid{})

			resp, err := env.client.PlaceObject(testContext(t), mustStruct(t, tc.req))
			if code := status.Code(err); code != tc.code {
				t.Fatalf("PlaceObject code = %v (%v), want %v", code, err, tc.code)
			}
			if resp != nil {
				t.Fatalf("PlaceObject returned %v alongside an error", resp)
			}
			if tc.result != "" && env.recorder.total(tc.result) != 1 {
				t.Fatalf("placements with result %q = %d, want 1", tc.result, env.recorder.total(tc.result))
			}
		})
	}
}

func TestToECEF_OffsetIsAdditive(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{}, altitude.StaticGeoid{})
	ctx := testContext(t)
	anchor := map[string]interface{}{"latitude_deg": 48.8584, "longitude_deg": 2.2945, "altitude_meters": 35.0}

	base, err := env.client.ToECEF(ctx, mustStruct(t, map[string]interface{}{"anchor": anchor}))
	if err != nil {
		t.Fatalf("ToECEF base: %v", err)
	}
	moved, err := env.client.ToECEF(ctx, mustStruct(t, map[string]interface{}{
		"anchor": anchor,
		"offset": map[string]interface{}{"x": 1.5, "y": -2.0, "z": 3.25},
	}))
	if err != nil {
		t.Fatalf("ToECEF offset: %v", err)
	}

	want := map[string]float64{"x": 1.5, "y": -2.0, "z": 3.25}
	for key, d := range want {
		got := number(t, moved, "position", key) - number(t, base, "position", key)
		if math.Abs(got-d) > 1e-6 {
			t.Errorf("Δ%s = %v, want %v", key, got, d)
		}
	}
}

func TestLocalToGeographic(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{}, altitude.StaticGeoid{})
	ctx := testContext(t)

	pos := core.GeodeticToECEF(core.WGS84, geoPos(37.4, -122.1, 15))
	req := map[string]interface{}{"position": map[string]interface{}{"x": pos.X, "y": pos.Y, "z": pos.Z}}

	coarse, err := env.client.LocalToGeographic(ctx, mustStruct(t, req))
	if err != nil {
		t.Fatalf("LocalToGeographic spherical: %v", err)
	}
	if lng := number(t, coarse, "longitude_deg"); math.Abs(lng+122.1) > 1e-9 {
		t.Errorf("spherical longitude = %v, want -122.1", lng)
	}
	if lat := number(t, coarse, "latitude_deg"); math.Abs(lat-37.4) < 1e-3 || math.Abs(lat-37.4) > 0.5 {
		t.Errorf("spherical latitude = %v, want geocentric latitude slightly below 37.4", lat)
	}

	req["ellipsoidal"] = true
	precise, err := env.client.LocalToGeographic(ctx, mustStruct(t, req))
	if err != nil {
		t.Fatalf("LocalToGeographic ellipsoidal: %v", err)
	}
	if lat := number(t, precise, "latitude_deg"); math.Abs(lat-37.4) > 1e-6 {
		t.Errorf("ellipsoidal latitude = %v, want 37.4", lat)
	}
	if alt := number(t, precise, "altitude_meters"); math.Abs(alt-15) > 0.01 {
		t.Errorf("ellipsoidal altitude = %v, want 15", alt)
	}

	_, err = env.client.LocalToGeographic(ctx, mustStruct(t, map[string]interface{}{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing position code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestResolveAltitude(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{Meters: 28}, altitude.StaticGeoid{Meters: -32})
	ctx := testContext(t)

	resp, err := env.client.ResolveAltitude(ctx, mustStruct(t, map[string]interface{}{
		"latitude_deg": 37.4, "longitude_deg": -122.1,
	}))
	if err != nil {
		t.Fatalf("ResolveAltitude: %v", err)
	}
	if got := number(t, resp, "ellipsoidal_meters"); got != -4 {
		t.Errorf("ellipsoidal_meters = %v, want -4", got)
	}
	if got := resp.GetFields()["source"].GetStringValue(); got != "precise" {
		t.Errorf("source = %q, want precise", got)
	}

	_, err = env.client.ResolveAltitude(ctx, mustStruct(t, map[string]interface{}{"latitude_deg": 37.4}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing longitude code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestResolveAltitude_NoSource(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, nil).ResolveAltitude(context.Background(), mustStruct(t, map[string]interface{}{
		"latitude_deg": 1.0, "longitude_deg": 1.0,
	}))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("ResolveAltitude code = %v, want Unavailable", status.Code(err))
	}
}

func TestRequestIDEchoedInHeader(t *testing.T) {
	env := newTestEnv(t, altitude.StaticElevation{}, altitude.StaticGeoid{})
	ctx := metadata.AppendToOutgoingContext(testContext(t), requestIDMetadataKey, "req-123")

	var header metadata.MD
	_, err := env.client.ToECEF(ctx, mustStruct(t, map[string]interface{}{
		"anchor": map[string]interface{}{"latitude_deg": 0.0, "longitude_deg": 0.0},
	}), grpc.Header(&header))
	if err != nil {
		t.Fatalf("ToECEF: %v", err)
	}
	if got := header.Get(requestIDMetadataKey); len(got) != 1 || got[0] != "req-123" {
		t.Fatalf("x-request-id header = %v, want [req-123]", got)
	}
}

func geoPos(lat, lng, alt float64) model.GeographicPosition {
	return model.GeographicPosition{LatitudeDeg: lat, LongitudeDeg: lng, AltitudeMeters: alt}
}

type placementCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (p *placementCounts) ObservePlacement(mode, result string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = map[string]int{}
	}
	p.counts[mode+"/"+result]++
}

func (p *placementCounts) get(mode, result string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[mode+"/"+result]
}

func (p *placementCounts) total(result string) int {
	return p.get("anchor", result) + p.get("precise", result)
}
