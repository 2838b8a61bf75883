// Package config provides YAML-based configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/studyhub/backend/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up next to the executable.
const FileName = "studyhub.yaml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds" validate:"gte=0"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds" validate:"gte=0"` // handler timeout, stream routes exempt
	IdleTimeout  int    `yaml:"idleTimeoutSeconds" validate:"gte=0"`
	BodyLimit    string `yaml:"bodyLimit" validate:"required"`
}

// SimulationConfig controls the upload lifecycle simulation
type SimulationConfig struct {
	TickIntervalMs int     `yaml:"tickIntervalMs" validate:"gt=0"`
	ProgressStep   int     `yaml:"progressStep" validate:"min=1,max=100"`
	ResolveDelayMs int     `yaml:"resolveDelayMs" validate:"gt=0"`
	SuccessRate    float64 `yaml:"successRate" validate:"gte=0,lte=1"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=json console"`
	OutputPath string `yaml:"outputPath,omitempty"`
}

// AdvancedConfig contains tuning options
type AdvancedConfig struct {
	EnableRequestLogging bool `yaml:"enableRequestLogging"`
	EnableMetrics        bool `yaml:"enableMetrics"`
	ShowErrorDetails     bool `yaml:"showErrorDetails"` // expose unexpected error text to clients
	WebSocketReadLimitKB int  `yaml:"webSocketReadLimitKB" validate:"gte=0"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Simulation: SimulationConfig{
			TickIntervalMs: 300,
			ProgressStep:   10,
			ResolveDelayMs: 4000,
			SuccessRate:    0.8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
			EnableMetrics:        true,
			WebSocketReadLimitKB: 512,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with defaults. A .env file in the config directory is loaded before
// environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", envPath)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	header := []byte("# Study Hub upload simulator configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Validate checks the settings against their validate tags
func (c *AppConfig) Validate() error {
	if err := validation.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		c.Server.BindAddress = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if v := os.Getenv("UPLOAD_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Simulation.TickIntervalMs = ms
		}
	}
	if v := os.Getenv("UPLOAD_RESOLVE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Simulation.ResolveDelayMs = ms
		}
	}
	if v := os.Getenv("UPLOAD_SUCCESS_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Simulation.SuccessRate = rate
		}
	}
}

// TickInterval returns the tick period as a duration
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickIntervalMs) * time.Millisecond
}

// HandlerTimeout returns the per-request timeout for non-stream routes.
// Zero disables it.
func (c *AppConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

// ResolveDelay returns the resolution delay as a duration
func (c *AppConfig) ResolveDelay() time.Duration {
	return time.Duration(c.Simulation.ResolveDelayMs) * time.Millisecond
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}
