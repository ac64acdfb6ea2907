package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestMustLoadPath(t *testing.T) {
	unsetEnv(t, "ENV", "API_PORT", "API_HOST", "STORAGE_DRIVER", "SQLITE_PATH", "POSTGRES_PORT", "JWT_SECRET")
	path := writeConfig(t, `
env: "dev"
api_port: 9090
storage_driver: "sqlite"
sqlite:
  path: "/tmp/ledger.db"
jwt:
  secret: "s3cret"
  access_ttl: 10m
`)

	cfg := MustLoadPath(path)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 9090, cfg.ApiPort)
	assert.Equal(t, "localhost", cfg.ApiHost)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "/tmp/ledger.db", cfg.SQLite.Path)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "5433", cfg.Postgres.Port)
}

func TestMustLoadPathEnvOverride(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: "from-file"
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "ledger")
	t.Setenv("POSTGRES_PASSWORD", "pw")

	cfg := MustLoadPath(path)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, "ledger", cfg.Postgres.User)
	assert.Equal(t, "pw", cfg.Postgres.Pass)
}

func TestMustLoadPathPostgresCredentials(t *testing.T) {
	unsetEnv(t, "STORAGE_DRIVER", "POSTGRES_USER", "POSTGRES_PASSWORD")
	t.Setenv("JWT_SECRET", "s3cret")

	tests := []struct {
		name    string
		content string
	}{
		{"no credentials", "storage_driver: \"postgres\"\n"},
		{"no password", "storage_driver: \"postgres\"\npostgres:\n  user: \"ledger\"\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			assert.Panics(t, func() { MustLoadPath(path) })
		})
	}

	t.Run("sqlite needs none", func(t *testing.T) {
		path := writeConfig(t, "storage_driver: \"sqlite\"\n")
		cfg := MustLoadPath(path)
		assert.Empty(t, cfg.Postgres.User)
	})
}

func TestMustLoadPathMissingSecret(t *testing.T) {
	unsetEnv(t, "JWT_SECRET")
	path := writeConfig(t, `env: "local"`)

	assert.Panics(t, func() { MustLoadPath(path) })
}

func TestMustLoadPathMissingFile(t *testing.T) {
	assert.Panics(t, func() { MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml")) })
}
