package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the early-warning engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Actuators  ActuatorsConfig  `yaml:"actuators"`
	Redis      RedisConfig      `yaml:"redis"`
	Bus        BusConfig        `yaml:"bus"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gte=0"`
}

// HTTPConfig controls the REST, websocket and /metrics listener.
type HTTPConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	ReadTimeout     time.Duration `yaml:"readTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gte=0"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text console"`
}

// StoreConfig bounds the in-memory signal history.
type StoreConfig struct {
	MaxSignals int `yaml:"maxSignals" validate:"gte=0"`
}

// GuardrailsConfig holds the band thresholds and action parameters.
type GuardrailsConfig struct {
	AutoscaleBelow float64       `yaml:"autoscaleBelow" validate:"gte=0,lte=100"`
	RateLimitBelow float64       `yaml:"rateLimitBelow" validate:"gte=0,ltefield=AutoscaleBelow"`
	BrownoutBelow  float64       `yaml:"brownoutBelow" validate:"gte=0,ltefield=RateLimitBelow"`
	ScaleFactor    float64       `yaml:"scaleFactor" validate:"gt=1"`
	MaxPerMinute   int           `yaml:"maxPerMinute" validate:"gt=0"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
	Cooldown       time.Duration `yaml:"cooldown" validate:"gte=0"`
	// ObserveTimeout bounds a whole guardrail evaluation for one signal.
	ObserveTimeout time.Duration `yaml:"observeTimeout" validate:"gte=0"`
}

// ActuatorsConfig points at the systems guardrails drive. Empty URLs select
// the no-op implementations.
type ActuatorsConfig struct {
	Autoscaler  EndpointConfig   `yaml:"autoscaler"`
	RateLimiter EndpointConfig   `yaml:"rateLimiter"`
	KillSwitch  KillSwitchConfig `yaml:"killSwitch"`
}

// EndpointConfig configures an HTTP actuator.
type EndpointConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// KillSwitchConfig configures the Redis-backed global kill switch.
type KillSwitchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key" validate:"required_if=Enabled true"`
	Channel string `yaml:"channel"`
}

// RedisConfig describes the shared Redis connection.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// BusConfig controls the notification bus and its outbound transports.
type BusConfig struct {
	RecentSize int    `yaml:"recentSize" validate:"gte=0"`
	QueueSize  int    `yaml:"queueSize" validate:"gte=0"`
	Channel    string `yaml:"channel"`
	// WebhookURL, when set, receives every notification as a JSON POST.
	WebhookURL     string        `yaml:"webhookURL" validate:"omitempty,url"`
	WebhookRate    float64       `yaml:"webhookRate" validate:"gte=0"`
	WebhookBurst   int           `yaml:"webhookBurst" validate:"gte=0"`
	WebhookTimeout time.Duration `yaml:"webhookTimeout" validate:"gte=0"`
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// RedisRequired reports whether any enabled component needs a Redis connection.
func (c *Config) RedisRequired() bool {
	return c.Actuators.KillSwitch.Enabled || c.Bus.Channel != ""
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_EWS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RedisRequired() && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required when the kill switch or bus channel is enabled")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			GracefulTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{MaxSignals: 10000},
		Guardrails: GuardrailsConfig{
			AutoscaleBelow: 50,
			RateLimitBelow: 30,
			BrownoutBelow:  20,
			ScaleFactor:    1.5,
			MaxPerMinute:   100,
			Timeout:        5 * time.Second,
			ObserveTimeout: 15 * time.Second,
		},
		Actuators: ActuatorsConfig{
			Autoscaler:  EndpointConfig{Timeout: 5 * time.Second},
			RateLimiter: EndpointConfig{Timeout: 5 * time.Second},
			KillSwitch: KillSwitchConfig{
				Key:     "mirador:ews:killswitch",
				Channel: "mirador:ews:control",
			},
		},
		Redis: RedisConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Bus: BusConfig{
			RecentSize:     100,
			QueueSize:      256,
			WebhookTimeout: 5 * time.Second,
		},
		Tracing: TracingConfig{ServiceName: "mirador-ews", SampleRatio: 1},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_EWS_GRPC_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_EWS_HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("MIRADOR_EWS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_EWS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MIRADOR_EWS_STORE_MAX_SIGNALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxSignals = n
		}
	}
	if v := os.Getenv("MIRADOR_EWS_GUARDRAIL_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Guardrails.Cooldown = d
		}
	}
	if v := os.Getenv("MIRADOR_EWS_GUARDRAIL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Guardrails.Timeout = d
		}
	}
	if v := os.Getenv("MIRADOR_EWS_AUTOSCALER_URL"); v != "" {
		cfg.Actuators.Autoscaler.URL = v
	}
	if v := os.Getenv("MIRADOR_EWS_RATE_LIMITER_URL"); v != "" {
		cfg.Actuators.RateLimiter.URL = v
	}
	if v := os.Getenv("MIRADOR_EWS_KILL_SWITCH_ENABLED"); v != "" {
		cfg.Actuators.KillSwitch.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_EWS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MIRADOR_EWS_REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}
	if v := os.Getenv("MIRADOR_EWS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MIRADOR_EWS_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_EWS_REDIS_TLS"); v != "" {
		cfg.Redis.TLS = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_EWS_BUS_CHANNEL"); v != "" {
		cfg.Bus.Channel = v
	}
	if v := os.Getenv("MIRADOR_EWS_BUS_WEBHOOK_URL"); v != "" {
		cfg.Bus.WebhookURL = v
	}
	if v := os.Getenv("MIRADOR_EWS_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("MIRADOR_EWS_TRACING_INSECURE"); v != "" {
		cfg.Tracing.Insecure = parseBool(v)
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
