// Package config holds the runtime configuration of the geoplace binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/geoplace/core"
	"github.com/signalsfoundry/geoplace/internal/altitude"
	"github.com/signalsfoundry/geoplace/internal/observability"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Environment variables consulted by ApplyEnv.
const (
	EnvElevationURL        = "GEOPLACE_ELEVATION_URL"
	EnvElevationAPIKey     = "GEOPLACE_ELEVATION_API_KEY"
	EnvGeoidURL            = "GEOPLACE_GEOID_URL"
	EnvGeoidModel          = "GEOPLACE_GEOID_MODEL"
	EnvOrientationStrategy = "GEOPLACE_ORIENTATION_STRATEGY"

	EnvTracingEnabled     = "GEOPLACE_TRACING_ENABLED"
	EnvTracingExporter    = "GEOPLACE_TRACING_EXPORTER"
	EnvTracingServiceName = "GEOPLACE_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "GEOPLACE_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "GEOPLACE_OTLP_ENDPOINT"
)

// Config is the root configuration. Durations are strings such as "10s".
type Config struct {
	GRPCAddr    string `json:"grpc_addr"`
	MetricsAddr string `json:"metrics_addr"`

	Elevation   ElevationConfig   `json:"elevation"`
	Geoid       GeoidConfig       `json:"geoid"`
	Orientation OrientationConfig `json:"orientation"`
	Tracing     TracingConfig     `json:"tracing"`
}

// ElevationConfig selects the ground elevation collaborator. An empty URL
// with no API key and a StaticMeters value runs fully offline.
type ElevationConfig struct {
	URL     string `json:"url"`
	APIKey  string `json:"api_key"`
	Timeout string `json:"timeout"`

	// StaticMeters, when set, replaces the remote lookup with a constant.
	StaticMeters *float64 `json:"static_meters,omitempty"`
}

// GeoidConfig selects the geoid undulation collaborator.
type GeoidConfig struct {
	Model   string `json:"model"` // remote | egm96 | remote+egm96 | none
	URL     string `json:"url"`
	Timeout string `json:"timeout"`
}

// OrientationConfig holds orientation defaults applied to every request that
// does not override them.
type OrientationConfig struct {
	Strategy           string  `json:"strategy"`
	ReferenceFrame     string  `json:"reference_frame"`
	SampleHeightMeters float64 `json:"sample_height_meters"`
}

// TracingConfig controls span export. It is off unless Enabled is set.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"` // stdout | otlp
	ServiceName string  `json:"service_name"`
	Endpoint    string  `json:"endpoint"` // otlp collector, host:port
	SampleRatio float64 `json:"sample_ratio"`
}

// Default returns a configuration that serves on :50051, exposes metrics on
// :9090 and resolves the geoid offline.
func Default() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		Elevation: ElevationConfig{
			URL:     altitude.DefaultElevationURL,
			Timeout: "10s",
		},
		Geoid: GeoidConfig{
			Model:   altitude.GeoidModelEGM96,
			Timeout: "5s",
		},
		Orientation: OrientationConfig{
			Strategy:           string(core.StrategyTangentFrame),
			ReferenceFrame:     string(core.ReferenceZUp),
			SampleHeightMeters: core.DefaultSampleHeightMeters,
		},
		Tracing: TracingConfig{
			Exporter:    observability.ExporterStdout,
			SampleRatio: 1,
		},
	}
}

// Build returns the effective configuration: Default, overlaid by the file
// at path when path is non-empty, then by the environment, then validated.
func Build(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load reads a JSON config file on top of Default. The file must have a
// .json extension and be at most 1MB. Fields omitted from the file keep their
// defaults. The result is not validated, since environment overrides may
// still complete it; use Build for the full sequence.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GEOPLACE_* environment variables. Unset or
// empty variables leave the field untouched.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Elevation.URL, EnvElevationURL)
	setFromEnv(&c.Elevation.APIKey, EnvElevationAPIKey)
	setFromEnv(&c.Geoid.URL, EnvGeoidURL)
	setFromEnv(&c.Geoid.Model, EnvGeoidModel)
	setFromEnv(&c.Orientation.Strategy, EnvOrientationStrategy)

	if v := strings.TrimSpace(os.Getenv(EnvTracingEnabled)); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
	setFromEnv(&c.Tracing.Exporter, EnvTracingExporter)
	setFromEnv(&c.Tracing.ServiceName, EnvTracingServiceName)
	setFromEnv(&c.Tracing.Endpoint, EnvOTLPEndpoint)
	if v := strings.TrimSpace(os.Getenv(EnvTracingSampleRatio)); v != "" {
		// Unparsable ratios are ignored; out-of-range ones fail Validate.
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = ratio
		}
	}
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := parseTimeout(c.Elevation.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("elevation.timeout: %w", err))
	}
	if _, err := parseTimeout(c.Geoid.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("geoid.timeout: %w", err))
	}
	if m := c.Elevation.StaticMeters; m != nil && (math.IsNaN(*m) || math.IsInf(*m, 0)) {
		errs = append(errs, errors.New("elevation.static_meters must be finite"))
	}
	if c.Elevation.StaticMeters == nil && c.Elevation.URL == "" {
		errs = append(errs, errors.New("elevation.url is required unless elevation.static_meters is set"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Geoid.Model)) {
	case altitude.GeoidModelRemote:
		if c.Geoid.URL == "" {
			errs = append(errs, errors.New("geoid.url is required for the remote model"))
		}
	case "", altitude.GeoidModelEGM96, altitude.GeoidModelRemoteEGM96, altitude.GeoidModelNone:
	default:
		errs = append(errs, fmt.Errorf("geoid.model %q is not one of remote, egm96, remote+egm96, none", c.Geoid.Model))
	}

	if _, err := core.ParseOrientationStrategy(c.Orientation.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("orientation.strategy: %w", err))
	}
	if _, err := core.ParseReferenceFrame(c.Orientation.ReferenceFrame); err != nil {
		errs = append(errs, fmt.Errorf("orientation.reference_frame: %w", err))
	}
	if h := c.Orientation.SampleHeightMeters; h < 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		errs = append(errs, fmt.Errorf("orientation.sample_height_meters must be a non-negative finite number, got %v", h))
	}

	switch strings.ToLower(strings.TrimSpace(c.Tracing.Exporter)) {
	case "", observability.ExporterStdout, observability.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not one of stdout, otlp", c.Tracing.Exporter))
	}
	if r := c.Tracing.SampleRatio; !(r >= 0 && r <= 1) {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", r))
	}

	return errors.Join(errs...)
}

// ElevationTimeout returns the parsed elevation client timeout.
func (c Config) ElevationTimeout() time.Duration {
	d, _ := parseTimeout(c.Elevation.Timeout)
	return d
}

// GeoidTimeout returns the parsed geoid client timeout.
func (c Config) GeoidTimeout() time.Duration {
	d, _ := parseTimeout(c.Geoid.Timeout)
	return d
}

// OrientationOptions converts the orientation section into core options.
// It assumes Validate has passed.
func (c Config) OrientationOptions() core.OrientationOptions {
	strategy, _ := core.ParseOrientationStrategy(c.Orientation.Strategy)
	ref, _ := core.ParseReferenceFrame(c.Orientation.ReferenceFrame)
	return core.OrientationOptions{
		Strategy:           strategy,
		Reference:          ref,
		SampleHeightMeters: c.Orientation.SampleHeightMeters,
	}
}

// TracingOptions converts the tracing section for observability.InitTracing.
// defaultService names the binary when no service name is configured.
func (c Config) TracingOptions(defaultService string) observability.TracingConfig {
	service := c.Tracing.ServiceName
	if service == "" {
		service = defaultService
	}
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: service,
		Exporter:    strings.ToLower(strings.TrimSpace(c.Tracing.Exporter)),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
