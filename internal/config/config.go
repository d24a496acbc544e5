// Package config loads the server configuration: defaults suitable for a
// local dev run, optionally overlaid with a YAML file, with secrets taken
// from the environment. Zone profiles live in a separate JSON file so
// operators can edit the monitored blocks without touching server config.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"energysense/internal/model"
)

// Fallback secret for dev runs. Production deployments set JWT_SECRET.
const defaultJWTSecret = "dev-change-this-secret"

// Config is the full server configuration tree.
type Config struct {
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
	Auth     Auth     `yaml:"auth"`
	Data     Data     `yaml:"data"`
	MQTT     MQTT     `yaml:"mqtt"`
	Pipeline Pipeline `yaml:"pipeline"`
	Twin     Twin     `yaml:"twin"`
	Schedule Schedule `yaml:"schedule"`
}

type Server struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Log struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	// File tees logs to a path in addition to stdout when set.
	File string `yaml:"file"`
}

type Auth struct {
	UsersFile string `yaml:"users_file"`
	// JWTSecret is overridden by the JWT_SECRET environment variable.
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

type Data struct {
	ZonesFile  string `yaml:"zones_file"`
	StreamFile string `yaml:"stream_file"`
	// WeatherFile wins over WeatherAPIURL; both empty means simulated weather.
	WeatherFile   string `yaml:"weather_file"`
	WeatherAPIURL string `yaml:"weather_api_url"`
	TariffFile    string `yaml:"tariff_file"`
	CarbonFile    string `yaml:"carbon_file"`
}

// MQTT is optional; an empty broker disables the source.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type Pipeline struct {
	QueueSize int `yaml:"queue_size"`
}

type Twin struct {
	OverlayEnabled bool `yaml:"overlay_enabled"`
	SourceEnabled  bool `yaml:"source_enabled"`
}

type Schedule struct {
	TrainSeconds  int `yaml:"train_seconds"`
	ReportSeconds int `yaml:"report_seconds"`
	PushSeconds   int `yaml:"push_seconds"`
}

// Default returns the dev configuration the server runs with when no
// config file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        ":8000",
			CORSOrigins: []string{"*"},
		},
		Log: Log{
			Format: "text",
			Level:  "info",
		},
		Auth: Auth{
			UsersFile:       "data/users.json",
			TokenTTLMinutes: 720,
		},
		Data: Data{
			ZonesFile:  "data/blocks.json",
			StreamFile: "data/sensor_stream.csv",
		},
		MQTT: MQTT{
			Topic:    "energysense/telemetry",
			ClientID: "energysense-server",
		},
		Pipeline: Pipeline{
			QueueSize: 1024,
		},
		Twin: Twin{
			OverlayEnabled: true,
			SourceEnabled:  true,
		},
		Schedule: Schedule{
			TrainSeconds:  20,
			ReportSeconds: 300,
			PushSeconds:   2,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips
// the file and returns the defaults. The JWT_SECRET environment variable
// overrides the configured secret either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = defaultJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	_, portStr, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server addr %q: %w", c.Server.Addr, err)
	}
	if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port %q (must be between 1 and 65535)", portStr)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", c.Log.Level)
	}
	if c.Auth.UsersFile == "" {
		return fmt.Errorf("auth users_file cannot be empty")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth token_ttl_minutes must be positive, got %d", c.Auth.TokenTTLMinutes)
	}
	if c.Data.ZonesFile == "" {
		return fmt.Errorf("data zones_file cannot be empty")
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt topic cannot be empty when a broker is set")
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}
	if c.Schedule.TrainSeconds <= 0 || c.Schedule.ReportSeconds <= 0 || c.Schedule.PushSeconds <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	return nil
}

// SlogLevel maps the configured level name onto slog's scale.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadZones reads zone profiles from a JSON list. A missing or unreadable
// file yields an empty set with a warning; malformed entries are skipped
// individually so one bad profile cannot take down the rest.
func LoadZones(path string, log *slog.Logger) []model.ZoneProfile {
	if log == nil {
		log = slog.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("zone profiles file missing", "path", path, "error", err)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn("zone profiles file is not a JSON list", "path", path, "error", err)
		return nil
	}
	var profiles []model.ZoneProfile
	for i, item := range items {
		var p model.ZoneProfile
		if err := json.Unmarshal(item, &p); err != nil {
			log.Warn("skipping invalid zone profile", "index", i, "error", err)
			continue
		}
		if p.ID == "" || p.Label == "" || p.BaselineKWh <= 0 {
			log.Warn("skipping invalid zone profile", "index", i, "id", p.ID)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}
