package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STATUSGARDEN_DATABASE__URL", "postgres://localhost/statusgarden")
	t.Setenv("STATUSGARDEN_AUTH__JWT_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "StatusGarden", cfg.Notify.Username)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9999"
database:
  url: postgres://localhost/statusgarden
  connect_attempts: 2
auth:
  jwt_secret: file-secret
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Database.ConnectAttempts)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://localhost/from-file
auth:
  jwt_secret: file-secret
`), 0o644))

	t.Setenv("STATUSGARDEN_DATABASE__URL", "postgres://localhost/from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/from-env", cfg.Database.URL)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	t.Setenv("STATUSGARDEN_DATABASE__URL", "postgres://localhost/statusgarden")
	t.Setenv("STATUSGARDEN_AUTH__JWT_SECRET", "test-secret")

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
}

func TestLoad_Validation(t *testing.T) {
	_, err := Load("")
	assert.ErrorContains(t, err, "database.url")

	t.Setenv("STATUSGARDEN_DATABASE__URL", "postgres://localhost/statusgarden")
	_, err = Load("")
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("STATUSGARDEN_AUTH__JWT_SECRET", "test-secret")
	t.Setenv("STATUSGARDEN_NOTIFY__ENABLED", "true")
	_, err = Load("")
	assert.ErrorContains(t, err, "webhook_url")
}
