// Package config loads and validates application configuration from an
// optional YAML file overlaid with SENTRY_-prefixed environment variables.
// Nested keys use double underscores in env vars, e.g. SENTRY_DATABASE__URL.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SENTRY_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Vercel        VercelConfig        `koanf:"vercel"`
	Diagnosis     DiagnosisConfig     `koanf:"diagnosis"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Agent         AgentConfig         `koanf:"agent"`
	Operator      OperatorConfig      `koanf:"operator"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// VercelConfig holds deployment provider settings.
type VercelConfig struct {
	APIToken          string        `koanf:"api_token" validate:"required"`
	ProjectID         string        `koanf:"project_id" validate:"required"`
	TeamID            string        `koanf:"team_id"`
	BaseURL           string        `koanf:"base_url" validate:"url"`
	DeployHookURL     string        `koanf:"deploy_hook_url" validate:"omitempty,url"`
	MaxStreamEvents   int           `koanf:"max_stream_events" validate:"gt=0"`
	MaxStreamDuration time.Duration `koanf:"max_stream_duration"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// DiagnosisConfig holds diagnosis collaborator settings.
type DiagnosisConfig struct {
	Provider string        `koanf:"provider" validate:"oneof=openai mock"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Model    string        `koanf:"model"`
	Timeout  time.Duration `koanf:"timeout"`
}

// NotificationsConfig holds email notification settings.
type NotificationsConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
	ToAddress    string `koanf:"to_address"`
	// BaseURL is the externally reachable URL embedded in approve/dismiss links.
	BaseURL string `koanf:"base_url" validate:"url"`
}

// AgentConfig holds scheduler settings for the poll-process-notify loop.
type AgentConfig struct {
	// PollInterval between scheduled runs. Zero disables the scheduler;
	// runs can still be triggered via POST /api/v1/poll.
	PollInterval time.Duration `koanf:"poll_interval"`
	// ManualPollsPerMinute rate-limits the manual poll endpoint.
	ManualPollsPerMinute int `koanf:"manual_polls_per_minute" validate:"gt=0"`
}

// OperatorConfig guards the direct incident action endpoint.
type OperatorConfig struct {
	// Token is the static bearer token for the operator surface.
	// When empty the action endpoint rejects all requests.
	Token string `koanf:"token"`
}

// Load reads configuration from the optional YAML file at path (empty path
// skips the file) and SENTRY_ environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := defaults()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Diagnosis.Provider == "openai" && cfg.Diagnosis.APIKey == "" {
		return nil, fmt.Errorf("diagnosis.api_key is required when diagnosis.provider is openai")
	}
	if cfg.Notifications.Enabled {
		if cfg.Notifications.SMTPHost == "" {
			return nil, fmt.Errorf("notifications.smtp_host is required when notifications are enabled")
		}
		if cfg.Notifications.FromAddress == "" || cfg.Notifications.ToAddress == "" {
			return nil, fmt.Errorf("notifications.from_address and notifications.to_address are required when notifications are enabled")
		}
	}

	return &cfg, nil
}

// envKeyMapper turns SENTRY_DATABASE__URL into database.url.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Vercel: VercelConfig{
			BaseURL:           "https://api.vercel.com",
			MaxStreamEvents:   300,
			MaxStreamDuration: 2 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Diagnosis: DiagnosisConfig{
			Provider: "mock",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Notifications: NotificationsConfig{
			SMTPPort: 587,
			BaseURL:  "http://localhost:8080",
		},
		Agent: AgentConfig{
			PollInterval:         0,
			ManualPollsPerMinute: 6,
		},
	}
}
