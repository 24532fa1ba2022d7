package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the engine configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	API      APIConfig      `mapstructure:"api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

type EngineConfig struct {
	WorkerThreads       int     `mapstructure:"worker_threads"`
	PosePoolPrealloc    int     `mapstructure:"pose_pool_prealloc"`
	MaxTransitionPasses int     `mapstructure:"max_transition_passes"`
	FPS                 float64 `mapstructure:"fps"`
}

// AssetsConfig names the graph and motion set the serve command loads.
type AssetsConfig struct {
	Graph     string `mapstructure:"graph"`
	Motions   string `mapstructure:"motions"`
	Instances int    `mapstructure:"instances"`
}

type APIConfig struct {
	Port         int    `mapstructure:"port"`
	AdminUser    string `mapstructure:"admin_user"`
	AdminPass    string `mapstructure:"admin_pass"`
	OperatorUser string `mapstructure:"operator_user"`
	OperatorPass string `mapstructure:"operator_pass"`
	TLSCert      string `mapstructure:"tls_cert"`
	TLSKey       string `mapstructure:"tls_key"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.worker_threads", 4)
	v.SetDefault("engine.pose_pool_prealloc", 16)
	v.SetDefault("engine.max_transition_passes", 10)
	v.SetDefault("engine.fps", 60.0)

	v.SetDefault("assets.graph", "")
	v.SetDefault("assets.motions", "")
	v.SetDefault("assets.instances", 1)

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.admin_user", "")
	v.SetDefault("api.admin_pass", "")
	v.SetDefault("api.operator_user", "")
	v.SetDefault("api.operator_pass", "")
	v.SetDefault("api.tls_cert", "")
	v.SetDefault("api.tls_key", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.url", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "animgraph")
	v.SetDefault("mqtt.client_id", "animgraph-engine")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "animgraph")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Engine.WorkerThreads < 1 {
		warnings = append(warnings, fmt.Sprintf("engine.worker_threads %d is below 1, using 1", c.Engine.WorkerThreads))
	}
	if c.Engine.FPS <= 0 || c.Engine.FPS > 1000 {
		warnings = append(warnings, fmt.Sprintf("engine.fps %.2f is outside (0, 1000]", c.Engine.FPS))
	}
	if c.Engine.MaxTransitionPasses < 1 {
		warnings = append(warnings, fmt.Sprintf("engine.max_transition_passes %d is below 1", c.Engine.MaxTransitionPasses))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		warnings = append(warnings, "tracing is enabled but tracing.endpoint is empty")
	}
	if c.API.AdminUser != "" && c.API.AdminPass == "" {
		warnings = append(warnings, "api.admin_user is set but api.admin_pass is empty, auth stays disabled")
	}
	if (c.API.TLSCert == "") != (c.API.TLSKey == "") {
		warnings = append(warnings, "api.tls_cert and api.tls_key must be set together, serving plain HTTP")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	return warnings
}

// FrameInterval returns the duration of one frame in seconds.
func (c *EngineConfig) FrameInterval() float64 {
	if c.FPS <= 0 {
		return 1.0 / 60
	}
	return 1 / c.FPS
}

// Load reads configuration from an optional file and the environment.
// Environment keys use the ANIMGRAPH prefix, e.g. ANIMGRAPH_API_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ANIMGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Logger builds the process logger described by the log section.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel parses the configured level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
