package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BASINMATCH_"

// Config holds all user-facing configuration for basinmatch.
type Config struct {
	Data      DataConfig      `toml:"data"`
	Server    ServerConfig    `toml:"server"`
	Assign    AssignConfig    `toml:"assign"`
	Columns   ColumnConfig    `toml:"columns"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

type DataConfig struct {
	Dir string `toml:"dir"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type AssignConfig struct {
	MaxHops        int     `toml:"max_hops"`
	PhysicalWeight float64 `toml:"physical_weight"`
	Workers        int     `toml:"workers"`
	SpatialMetric  string  `toml:"spatial_metric"`
}

// ColumnConfig names the columns read from input tables.
type ColumnConfig struct {
	Mid           string `toml:"mid"`
	DownstreamMid string `toml:"downstream_mid"`
	StreamOrder   string `toml:"stream_order"`
	DrainageArea  string `toml:"drainage_area"`
	GaugeID       string `toml:"gauge_id"`
	X             string `toml:"x"`
	Y             string `toml:"y"`
	ClusterLabel  string `toml:"cluster_label"`
}

type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns a Config populated with built-in default values.
func Defaults() *Config {
	return &Config{
		Data:   DataConfig{Dir: "data"},
		Server: ServerConfig{Host: "localhost", Port: 8080},
		Assign: AssignConfig{
			MaxHops:        5,
			PhysicalWeight: 0.5,
			Workers:        4,
			SpatialMetric:  "euclidean",
		},
		Columns: ColumnConfig{
			Mid:           "LINKNO",
			DownstreamMid: "DSLINKNO",
			StreamOrder:   "strmOrder",
			DrainageArea:  "DSContArea",
			GaugeID:       "gauge_id",
			X:             "x",
			Y:             "y",
			ClusterLabel:  "cluster_label",
		},
		Telemetry: TelemetryConfig{ServiceName: "basinmatch"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a TOML config file, then applies BASINMATCH_* environment
// overrides (a .env file in the working directory is honoured). If the file
// does not exist, built-in defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: %w", err)
	}

	_ = godotenv.Load() // .env is optional
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Data.Dir = envStr("DATA_DIR", c.Data.Dir)
	c.Server.Host = envStr("HOST", c.Server.Host)
	c.Assign.SpatialMetric = envStr("SPATIAL_METRIC", c.Assign.SpatialMetric)
	c.Telemetry.Endpoint = envStr("OTEL_ENDPOINT", c.Telemetry.Endpoint)
	c.Log.Level = envStr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("LOG_FORMAT", c.Log.Format)

	var errs []error
	var err error
	if c.Server.Port, err = envInt("PORT", c.Server.Port); err != nil {
		errs = append(errs, err)
	}
	if c.Assign.MaxHops, err = envInt("MAX_HOPS", c.Assign.MaxHops); err != nil {
		errs = append(errs, err)
	}
	if c.Assign.Workers, err = envInt("WORKERS", c.Assign.Workers); err != nil {
		errs = append(errs, err)
	}
	if c.Assign.PhysicalWeight, err = envFloat("PHYSICAL_WEIGHT", c.Assign.PhysicalWeight); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if c.Assign.MaxHops < 1 {
		return fmt.Errorf("config: assign.max_hops must be at least 1, got %d", c.Assign.MaxHops)
	}
	if c.Assign.PhysicalWeight < 0 || c.Assign.PhysicalWeight > 1 {
		return fmt.Errorf("config: assign.physical_weight must be within [0, 1], got %g", c.Assign.PhysicalWeight)
	}
	if c.Assign.Workers < 1 {
		return fmt.Errorf("config: assign.workers must be positive, got %d", c.Assign.Workers)
	}
	switch c.Assign.SpatialMetric {
	case "euclidean", "haversine":
	default:
		return fmt.Errorf("config: unknown assign.spatial_metric %q", c.Assign.SpatialMetric)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Columns.Mid == "" || c.Columns.DownstreamMid == "" || c.Columns.GaugeID == "" {
		return errors.New("config: columns.mid, columns.downstream_mid and columns.gauge_id are required")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s%s=%q is not a valid integer", EnvPrefix, key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s%s=%q is not a valid number", EnvPrefix, key, v)
	}
	return f, nil
}
