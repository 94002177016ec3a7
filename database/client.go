package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseType represents the type of database to use
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Type DatabaseType

	// SQLite
	DatabasePath string

	// PostgreSQL
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
	Schema   string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewDatabaseConfig creates a database configuration from environment variables.
//   - DB_TYPE=postgres selects PostgreSQL (DB_HOST, DB_PORT, DB_USERNAME, DB_PASSWORD, DB_NAME, DB_SSLMODE, DB_SCHEMA)
//   - DB_TYPE=sqlite or DB_PATH selects file-based SQLite (default ./data/pbm.db)
//   - nothing configured selects in-memory SQLite
func NewDatabaseConfig() *Config {
	dbTypeStr := strings.ToLower(config.GetEnvOrDefault("DB_TYPE", ""))

	cfg := &Config{Type: DatabaseTypeSQLite}
	switch dbTypeStr {
	case "postgres", "postgresql":
		cfg.Type = DatabaseTypePostgres
	case "sqlite", "":
	default:
		slog.Warn("Unknown DB_TYPE, defaulting to sqlite", "db_type", dbTypeStr)
	}

	if cfg.Type == DatabaseTypeSQLite {
		// A single connection serializes writes and avoids "database is locked".
		cfg.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 1)
		cfg.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 1)

		if dbTypeStr == "" && os.Getenv("DB_PATH") == "" {
			cfg.DatabasePath = ":memory:"
			slog.Info("No database configuration found, using in-memory SQLite")
		} else {
			cfg.DatabasePath = config.GetEnvOrDefault("DB_PATH", "./data/pbm.db")
			if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
				slog.Warn("Failed to create database directory", "path", cfg.DatabasePath, "error", err)
			}
		}

		slog.Info("Database configuration (SQLite)",
			"database_path", cfg.DatabasePath,
			"max_open_conns", cfg.MaxOpenConns,
		)
	} else {
		cfg.Host = config.GetEnvOrDefault("DB_HOST", "localhost")
		cfg.Port = config.GetEnvOrDefault("DB_PORT", "5432")
		cfg.Username = config.GetEnvOrDefault("DB_USERNAME", "postgres")
		cfg.Password = config.GetEnvOrDefault("DB_PASSWORD", "")
		cfg.Database = config.GetEnvOrDefault("DB_NAME", "lab_pbm")
		cfg.SSLMode = config.GetEnvOrDefault("DB_SSLMODE", "require")
		cfg.Schema = config.GetEnvOrDefault("DB_SCHEMA", "")
		cfg.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 25)
		cfg.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 5)

		slog.Info("Database configuration (PostgreSQL)",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Database,
			"schema", cfg.Schema,
			"sslmode", cfg.SSLMode,
		)
	}

	cfg.ConnMaxLifetime = parseDurationOrDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	cfg.ConnMaxIdleTime = parseDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)

	return cfg
}

// DSN builds the PostgreSQL connection URL. Credentials are URL-encoded.
func (c *Config) DSN() string {
	dsnURL := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:   c.Database,
	}
	q := dsnURL.Query()
	q.Set("sslmode", c.SSLMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	dsnURL.RawQuery = q.Encode()
	return dsnURL.String()
}

// ConnectGormDB establishes a GORM connection to SQLite or PostgreSQL and verifies it with a ping
func ConnectGormDB(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	if cfg.Type == DatabaseTypeSQLite {
		dialector = sqlite.Open(cfg.DatabasePath)
	} else {
		dialector = postgres.Open(cfg.DSN())
	}

	gormDB, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database connection: %w", cfg.Type, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("GORM database connection established", "type", cfg.Type)
	return gormDB, nil
}

// Ping checks the connection, used by the health endpoint
func Ping(ctx context.Context, gormDB *gorm.DB) error {
	if gormDB == nil {
		return fmt.Errorf("gorm connection is nil")
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool
func Close(gormDB *gorm.DB) error {
	if gormDB == nil {
		return nil
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := config.GetEnvOrDefault(key, ""); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseDurationOrDefault accepts formats like "1h", "30m", "15s"
func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := config.GetEnvOrDefault(key, ""); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid duration format, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
