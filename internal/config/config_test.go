package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "cabinet.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, time.Minute, cfg.Policy.RateWindow)
	assert.Equal(t, "/miniapp/redirect.html", cfg.Connection.RedirectPath)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9000
database:
  driver: memory
cache:
  ttl: 30s
policy:
  timezone: Europe/Moscow
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cabinet.yaml"), yaml, 0o600))
	t.Setenv("CABINET_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Database.IsMemory())
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "Europe/Moscow", cfg.Policy.Location().String())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "mysql"},
		Auth:     AuthConfig{JWTSecret: "x"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "memory"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Database.IsSQLite())

	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "cabinet"}
	assert.Equal(t, "postgres://u:p@db:5432/cabinet?sslmode=disable", d.ConnString())
}

func TestPolicyLocation_Fallback(t *testing.T) {
	assert.Equal(t, time.UTC, PolicyConfig{}.Location())
	assert.Equal(t, time.UTC, PolicyConfig{Timezone: "Mars/Olympus"}.Location())
}
