// Command placer computes a single placement and prints it as JSON. It runs
// the pipeline in-process, or against a placement-server with -server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/altitude"
	"github.com/signalsfoundry/geoplace/internal/config"
	"github.com/signalsfoundry/geoplace/internal/logging"
	"github.com/signalsfoundry/geoplace/internal/placementsvc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logging.NewFromEnv()
	if err := run(ctx, os.Args[1:], os.Stdout, log); err != nil {
		log.Error(ctx, "placer failed", logging.Err(err))
		os.Exit(1)
	}
}

type options struct {
	op         string
	lat, lng   float64
	alt        float64
	x, y, z    float64
	precise    bool
	strategy   string
	reference  string
	configPath string
	server     string
	timeout    time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("placer", flag.ContinueOnError)
	fs.StringVar(&o.op, "op", "place", "operation: place | ecef | altitude")
	fs.Float64Var(&o.lat, "lat", 0, "anchor latitude in degrees")
	fs.Float64Var(&o.lng, "lng", 0, "anchor longitude in degrees")
	fs.Float64Var(&o.alt, "alt", 0, "anchor ellipsoidal altitude in metres")
	fs.Float64Var(&o.x, "x", 0, "local offset x in metres")
	fs.Float64Var(&o.y, "y", 0, "local offset y in metres")
	fs.Float64Var(&o.z, "z", 0, "local offset z in metres")
	fs.BoolVar(&o.precise, "precise", false, "replace the anchor altitude with ground elevation + geoid undulation")
	fs.StringVar(&o.strategy, "strategy", "", "orientation strategy: tangent-frame | axis-angle")
	fs.StringVar(&o.reference, "reference", "", "object up axis: z-up | y-up")
	fs.StringVar(&o.configPath, "config", "", "path to a JSON config file (in-process mode)")
	fs.StringVar(&o.server, "server", "", "placement-server address; empty runs in-process")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.op = strings.ToLower(o.op)
	switch o.op {
	case "place", "ecef", "altitude":
	default:
		return options{}, fmt.Errorf("unknown -op %q", o.op)
	}
	return o, nil
}

func (o options) request() (*structpb.Struct, error) {
	if o.op == "altitude" {
		return structpb.NewStruct(map[string]interface{}{
			"latitude_deg":  o.lat,
			"longitude_deg": o.lng,
		})
	}
	req := map[string]interface{}{
		"anchor": map[string]interface{}{
			"latitude_deg":    o.lat,
			"longitude_deg":   o.lng,
			"altitude_meters": o.alt,
		},
		"offset":           map[string]interface{}{"x": o.x, "y": o.y, "z": o.z},
		"precise_altitude": o.precise,
	}
	if o.op == "place" {
		if o.strategy != "" {
			req["strategy"] = o.strategy
		}
		if o.reference != "" {
			req["reference_frame"] = o.reference
		}
	}
	return structpb.NewStruct(req)
}

type call func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	req, err := o.request()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var invoke call
	if o.server != "" {
		conn, err := grpc.NewClient(o.server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connect %s: %w", o.server, err)
		}
		defer conn.Close()
		invoke = remoteCall(placementsvc.NewClient(conn), o.op)
	} else {
		svc, err := localService(o.configPath, log)
		if err != nil {
			return err
		}
		invoke = localCall(svc, o.op)
	}

	resp, err := invoke(ctx, req)
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func localService(configPath string, log logging.Logger) (*placementsvc.Service, error) {
	cfg, err := config.Build(configPath)
	if err != nil {
		return nil, err
	}

	resolver, err := cfg.NewResolver(
		altitude.WithLogger(log),
		altitude.WithWarningHandler(func(ctx context.Context, w altitude.FidelityWarning) {
			fmt.Fprintf(os.Stderr, "warning: %s at (%.6f, %.6f)\n", w.Reason, w.Location.Lat, w.Location.Lng)
		}),
	)
	if err != nil {
		return nil, err
	}
	pipeline := core.NewPipeline(core.NewTransformer(core.WithAltitudeSource(resolver)), cfg.OrientationOptions())
	return placementsvc.NewService(pipeline, resolver, placementsvc.WithLogger(log)), nil
}

func localCall(svc *placementsvc.Service, op string) call {
	switch op {
	case "ecef":
		return svc.ToECEF
	case "altitude":
		return svc.ResolveAltitude
	default:
		return svc.PlaceObject
	}
}

func remoteCall(c *placementsvc.Client, op string) call {
	var method func(context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)
	switch op {
	case "ecef":
		method = c.ToECEF
	case "altitude":
		method = c.ResolveAltitude
	default:
		method = c.PlaceObject
	}
	return func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		return method(ctx, req, grpc.WaitForReady(true))
	}
}
