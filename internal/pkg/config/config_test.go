package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("WASTEWATCH_AUTH_JWT_SECRET", "test-secret-0123456789")
	t.Setenv("WASTEWATCH_ORS_API_KEY", "ors-key")
	t.Setenv("WASTEWATCH_GEOLOCATION_TIMEOUT", "5s")
	t.Setenv("WASTEWATCH_SERVER_PORT", "9090")

	cfg, err := Load("wastewatch-test")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ors-key", cfg.ORS.APIKey)
	assert.Equal(t, "driving-car", cfg.ORS.Profile)
	assert.Equal(t, 10*time.Second, cfg.ORS.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Geolocation.Timeout)
	assert.Equal(t, 18.5204, cfg.Geolocation.FallbackLat)
	assert.Equal(t, 73.8567, cfg.Geolocation.FallbackLon)
	assert.Equal(t, "wastewatch-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("WASTEWATCH_AUTH_JWT_SECRET", "")
	_, err := Load("wastewatch-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"server.port", "database.host", "nats.url", "valkey.addr", "ors.timeout", "geolocation.timeout"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestDSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "ww", Password: "p@ss/word", DBName: "wastewatch", SSLMode: "disable"}
	assert.Equal(t, "postgres://ww:p%40ss%2Fword@db:5432/wastewatch?sslmode=disable", d.DSN())
}
