package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the authorization service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Unipago  UnipagoConfig  `yaml:"unipago"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   ListLimits     `yaml:"limits"`
}

// ServerConfig holds inbound HTTP settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// UnipagoConfig describes the external benefits-authorization service.
// Credentials are service credentials, never the operator's.
type UnipagoConfig struct {
	BaseURL            string        `yaml:"baseUrl"`
	Username           string        `yaml:"-"`
	Password           string        `yaml:"-"`
	Timeout            time.Duration `yaml:"timeout"`
	AuthPath           string        `yaml:"authPath"`
	ValidatePath       string        `yaml:"validatePath"`
	AuthorizePath      string        `yaml:"authorizePath"`
	VoidPath           string        `yaml:"voidPath"`
	VoidSuccessMessage string        `yaml:"voidSuccessMessage"`
}

// WorkflowConfig controls how long workflow snapshots and step locks live
type WorkflowConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	LockTTL time.Duration `yaml:"lockTtl"`
}

// RedisConfig holds the workflow store connection. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// AuthConfig holds operator identity settings
type AuthConfig struct {
	JWTSecret string `yaml:"-"`
}

// ListLimits caps the read paths
type ListLimits struct {
	Authorizations int `yaml:"authorizations"`
	Traces         int `yaml:"traces"`
}

// Default returns the built-in configuration used when no YAML file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "3002"},
		Unipago: UnipagoConfig{
			BaseURL:            "http://localhost:8089",
			Timeout:            30 * time.Second,
			AuthPath:           "/Autenticar",
			ValidatePath:       "/api/Autorizacion/Validar",
			AuthorizePath:      "/api/Autorizacion/Autorizar",
			VoidPath:           "/api/Autorizacion/Anular",
			VoidSuccessMessage: "La Autorización fue anulada exitosamente",
		},
		Workflow: WorkflowConfig{
			TTL:     2 * time.Hour,
			LockTTL: 2 * time.Minute,
		},
		Limits: ListLimits{
			Authorizations: 100,
			Traces:         500,
		},
	}
}

// Load reads the YAML configuration file and applies environment overrides.
// A missing file is not an error; defaults are used instead.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		slog.Info("Config file not found, using defaults", "path", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = GetEnvOrDefault("PORT", c.Server.Port)

	c.Unipago.BaseURL = GetEnvOrDefault("UNIPAGO_BASE_URL", c.Unipago.BaseURL)
	c.Unipago.Username = GetEnvOrDefault("UNIPAGO_USERNAME", c.Unipago.Username)
	c.Unipago.Password = GetEnvOrDefault("UNIPAGO_PASSWORD", c.Unipago.Password)
	c.Unipago.Timeout = durationOrDefault("UNIPAGO_TIMEOUT", c.Unipago.Timeout)
	c.Unipago.VoidSuccessMessage = GetEnvOrDefault("UNIPAGO_VOID_SUCCESS_MESSAGE", c.Unipago.VoidSuccessMessage)

	c.Workflow.TTL = durationOrDefault("WORKFLOW_TTL", c.Workflow.TTL)
	c.Workflow.LockTTL = durationOrDefault("WORKFLOW_LOCK_TTL", c.Workflow.LockTTL)

	c.Redis.Addr = GetEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Username = GetEnvOrDefault("REDIS_USERNAME", c.Redis.Username)
	c.Redis.Password = GetEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		} else {
			slog.Warn("Invalid REDIS_DB, keeping configured value", "value", v)
		}
	}

	if v := os.Getenv("REDIS_TLS"); v != "" {
		c.Redis.TLS = v == "true" || v == "1"
	}

	c.Auth.JWTSecret = GetEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.Unipago.BaseURL == "" {
		return fmt.Errorf("unipago base URL is required")
	}
	if c.Unipago.Username == "" || c.Unipago.Password == "" {
		return fmt.Errorf("UNIPAGO_USERNAME and UNIPAGO_PASSWORD are required")
	}
	if c.Unipago.VoidSuccessMessage == "" {
		return fmt.Errorf("unipago void success message must not be empty")
	}
	if c.Limits.Authorizations <= 0 || c.Limits.Traces <= 0 {
		return fmt.Errorf("list limits must be positive")
	}
	return nil
}

// GetEnvOrDefault returns the environment variable value or a default
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid duration format, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
