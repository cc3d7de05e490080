package placementsvc

import (
	"fmt"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// Conversions between Struct messages and domain types. Missing optional
// numbers decode as zero; a present field of the wrong kind is an error.

func fieldValue(s *structpb.Struct, key string) (*structpb.Value, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func numberField(s *structpb.Struct, key string, required bool) (float64, error) {
	v, ok := fieldValue(s, key)
	if !ok {
		if required {
			return 0, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
		}
		return 0, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, nil
}

func boolField(s *structpb.Struct, key string) (bool, error) {
	v, ok := fieldValue(s, key)
	if !ok {
		return false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, fmt.Errorf("%w: %s must be a bool", ErrInvalidRequest, key)
	}
	return b.BoolValue, nil
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := fieldValue(s, key)
	if !ok {
		return "", nil
	}
	str, isStr := v.GetKind().(*structpb.Value_StringValue)
	if !isStr {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return str.StringValue, nil
}

func structField(s *structpb.Struct, key string, required bool) (*structpb.Struct, error) {
	v, ok := fieldValue(s, key)
	if !ok {
		if required {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
		}
		return nil, nil
	}
	st, isStruct := v.GetKind().(*structpb.Value_StructValue)
	if !isStruct {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidRequest, key)
	}
	return st.StructValue, nil
}

func decodeGeographic(s *structpb.Struct) (model.GeographicPosition, error) {
	lat, err := numberField(s, "latitude_deg", true)
	if err != nil {
		return model.GeographicPosition{}, err
	}
	lng, err := numberField(s, "longitude_deg", true)
	if err != nil {
		return model.GeographicPosition{}, err
	}
	alt, err := numberField(s, "altitude_meters", false)
	if err != nil {
		return model.GeographicPosition{}, err
	}
	return model.GeographicPosition{LatitudeDeg: lat, LongitudeDeg: lng, AltitudeMeters: alt}, nil
}

func decodeXYZ(s *structpb.Struct, prefix string) (x, y, z float64, err error) {
	if x, err = numberField(s, "x", false); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", prefix, err)
	}
	if y, err = numberField(s, "y", false); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", prefix, err)
	}
	if z, err = numberField(s, "z", false); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", prefix, err)
	}
	return x, y, z, nil
}

// decodeAnchorOffset reads the "anchor" (required) and "offset" (optional)
// members shared by PlaceObject and ToECEF.
func decodeAnchorOffset(req *structpb.Struct) (model.GeographicPosition, model.LocalOffset, error) {
	anchorMsg, err := structField(req, "anchor", true)
	if err != nil {
		return model.GeographicPosition{}, model.LocalOffset{}, err
	}
	anchor, err := decodeGeographic(anchorMsg)
	if err != nil {
		return model.GeographicPosition{}, model.LocalOffset{}, fmt.Errorf("anchor: %w", err)
	}
	offsetMsg, err := structField(req, "offset", false)
	if err != nil {
		return model.GeographicPosition{}, model.LocalOffset{}, err
	}
	x, y, z, err := decodeXYZ(offsetMsg, "offset")
	if err != nil {
		return model.GeographicPosition{}, model.LocalOffset{}, err
	}
	return anchor, model.LocalOffset{X: x, Y: y, Z: z}, nil
}

func decodeOrientationOptions(req *structpb.Struct) (core.OrientationOptions, error) {
	var opts core.OrientationOptions

	raw, err := stringField(req, "strategy")
	if err != nil {
		return opts, err
	}
	if raw != "" {
		if opts.Strategy, err = core.ParseOrientationStrategy(raw); err != nil {
			return opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	raw, err = stringField(req, "reference_frame")
	if err != nil {
		return opts, err
	}
	if raw != "" {
		if opts.Reference, err = core.ParseReferenceFrame(raw); err != nil {
			return opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if opts.SampleHeightMeters, err = numberField(req, "sample_height_meters", false); err != nil {
		return opts, err
	}
	if opts.SampleHeightMeters < 0 {
		return opts, fmt.Errorf("%w: sample_height_meters must not be negative", ErrInvalidRequest)
	}
	return opts, nil
}

func xyzValue(x, y, z float64) map[string]interface{} {
	return map[string]interface{}{"x": x, "y": y, "z": z}
}

func vectorValue(v core.Vector3) map[string]interface{} {
	return xyzValue(v.X, v.Y, v.Z)
}

func ecefValue(p model.EcefPosition) map[string]interface{} {
	return xyzValue(p.X, p.Y, p.Z)
}

func quaternionValue(q core.Quaternion) map[string]interface{} {
	return map[string]interface{}{"x": q.X, "y": q.Y, "z": q.Z, "w": q.W}
}

func frameValue(f core.SurfaceFrame) map[string]interface{} {
	return map[string]interface{}{
		"east":  vectorValue(f.East),
		"north": vectorValue(f.North),
		"up":    vectorValue(f.Up),
	}
}

func altitudeValue(a model.AltitudeSample) map[string]interface{} {
	return map[string]interface{}{
		"ellipsoidal_meters":      a.EllipsoidalMeters,
		"source":                  a.Source.String(),
		"ground_elevation_meters": a.GroundElevationMeters,
		"geoid_undulation_meters": a.GeoidUndulationMeters,
		"geoid_missing":           a.GeoidMissing,
	}
}

func geographicValue(p model.GeographicPosition) map[string]interface{} {
	return map[string]interface{}{
		"latitude_deg":    p.LatitudeDeg,
		"longitude_deg":   p.LongitudeDeg,
		"altitude_meters": p.AltitudeMeters,
	}
}

func placementValue(pl core.Placement) map[string]interface{} {
	m := core.BakeTransform(pl)
	transform := make([]interface{}, len(m))
	for i, v := range m {
		transform[i] = v
	}
	return map[string]interface{}{
		"position":    ecefValue(pl.Position),
		"orientation": quaternionValue(pl.Orientation.Quaternion),
		"frame":       frameValue(pl.Orientation.Frame),
		"altitude":    altitudeValue(pl.Altitude),
		"transform":   transform,
	}
}
