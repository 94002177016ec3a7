package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/Autenticar", cfg.Unipago.AuthPath)
	assert.Equal(t, "La Autorización fue anulada exitosamente", cfg.Unipago.VoidSuccessMessage)
	assert.Equal(t, 100, cfg.Limits.Authorizations)
	assert.Equal(t, 500, cfg.Limits.Traces)
	assert.Equal(t, 2*time.Hour, cfg.Workflow.TTL)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `unipago:
  baseUrl: "https://upstream.example"
  timeout: 5s
workflow:
  ttl: 30m
limits:
  traces: 50
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://upstream.example", cfg.Unipago.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Unipago.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.TTL)
	assert.Equal(t, 50, cfg.Limits.Traces)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Limits.Authorizations)
	assert.Equal(t, "/api/Autorizacion/Anular", cfg.Unipago.VoidPath)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("unipago: [not: valid"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UNIPAGO_BASE_URL", "https://env.example")
	t.Setenv("UNIPAGO_USERNAME", "svc")
	t.Setenv("UNIPAGO_PASSWORD", "secret")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WORKFLOW_TTL", "45m")
	t.Setenv("JWT_SECRET", "jwt-secret")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.Unipago.BaseURL)
	assert.Equal(t, "svc", cfg.Unipago.Username)
	assert.Equal(t, "secret", cfg.Unipago.Password)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 45*time.Minute, cfg.Workflow.TTL)
	assert.Equal(t, "jwt-secret", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "credentials are required")

	cfg.Unipago.Username = "svc"
	cfg.Unipago.Password = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Unipago.VoidSuccessMessage = ""
	assert.Error(t, cfg.Validate())
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("PBM_TEST_KEY", "value")
	assert.Equal(t, "value", GetEnvOrDefault("PBM_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("PBM_TEST_MISSING_KEY", "fallback"))
}
