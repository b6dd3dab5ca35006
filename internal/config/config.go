// Package config loads server configuration: defaults, then an optional YAML
// file, then environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Logger      LoggerConfig   `yaml:"logger"`
	JWT         JWTConfig      `yaml:"jwt"`
	Chat        ChatConfig     `yaml:"chat"`
	Email       EmailConfig    `yaml:"email"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// AllowedOrigins is checked on websocket upgrade. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type ChatConfig struct {
	SendBuffer     int    `yaml:"send_buffer"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	MaxContentLen  int    `yaml:"max_content_len"`
	WriteTimeout   string `yaml:"write_timeout"`
	PingInterval   string `yaml:"ping_interval"`
	ReplayUnread   bool   `yaml:"replay_unread"`
	ReplayLimit    int    `yaml:"replay_limit"`
}

type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "easyrent.db",
		},
		Logger: LoggerConfig{Level: "info"},
		JWT: JWTConfig{
			Secret: "change-me-in-production",
		},
		Chat: ChatConfig{
			SendBuffer:     256,
			MaxMessageSize: 64 * 1024,
			MaxContentLen:  4000,
			WriteTimeout:   "10s",
			PingInterval:   "0s",
			ReplayUnread:   true,
			ReplayLimit:    100,
		},
		Email: EmailConfig{
			Port: "587",
			From: "noreply@easyrent.local",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies EASYRENT_*
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("EASYRENT_ENV", &c.Environment)
	setString("EASYRENT_ADDR", &c.Server.Addr)
	setString("EASYRENT_DB_DRIVER", &c.Database.Driver)
	setString("EASYRENT_DB_DSN", &c.Database.DSN)
	setString("EASYRENT_LOG_LEVEL", &c.Logger.Level)
	setString("EASYRENT_JWT_SECRET", &c.JWT.Secret)
	setString("EASYRENT_JWT_ISSUER", &c.JWT.Issuer)
	setString("EASYRENT_SMTP_HOST", &c.Email.Host)
	setString("EASYRENT_SMTP_PORT", &c.Email.Port)
	setString("EASYRENT_SMTP_USER", &c.Email.Username)
	setString("EASYRENT_SMTP_PASSWORD", &c.Email.Password)
	setString("EASYRENT_SMTP_FROM", &c.Email.From)

	if v, ok := os.LookupEnv("EASYRENT_CHAT_REPLAY_UNREAD"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EASYRENT_CHAT_REPLAY_UNREAD: %w", err)
		}
		c.Chat.ReplayUnread = b
	}
	return nil
}

// Validate checks required fields and that every duration parses.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Environment != "dev" && c.JWT.Secret == Default().JWT.Secret {
		return fmt.Errorf("jwt.secret must be changed outside dev")
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("chat.send_buffer must be positive")
	}
	if c.Chat.MaxMessageSize <= 0 {
		return fmt.Errorf("chat.max_message_size must be positive")
	}
	for name, v := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"chat.write_timeout":      c.Chat.WriteTimeout,
		"chat.ping_interval":      c.Chat.PingInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a validated duration string. Invalid values yield 0.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
