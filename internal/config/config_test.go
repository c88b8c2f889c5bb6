package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("CBC_BACKEND_URL", "https://records.school.test/api")
	t.Setenv("CBC_BACKEND_TRAILING_SLASH", "true")
	t.Setenv("CBC_JWT_SECRET", "secret")
	t.Setenv("CBC_SESSION_TTL", "45m")
	t.Setenv("CBC_APP_ALLOW_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendREST, cfg.BackendMode)
	require.True(t, cfg.BackendTrailingSlash)
	require.Equal(t, 45*time.Minute, cfg.SessionTTL)
	require.Equal(t, 15*time.Second, cfg.BackendTimeout)
	require.Equal(t, 4, cfg.WriteConcurrency)
	require.Equal(t, "cbc", cfg.NATSChannel)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowOrigins)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.NoError(t, cfg.RequireJWTSecret())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("CBC_BACKEND_URL", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CBC_BACKEND_MODE", "database")
	t.Setenv("CBC_DATABASE_URL", "postgres://localhost/cbc")
	t.Setenv("CBC_MASTERY_CACHE_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "mastery.cache_ttl")

	t.Setenv("CBC_MASTERY_CACHE_TTL", "1m")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendDatabase, cfg.BackendMode)

	require.Error(t, Config{BackendMode: "ftp"}.Validate())
	require.Error(t, Config{BackendMode: BackendDatabase, DatabaseURL: "x"}.Validate())
}
