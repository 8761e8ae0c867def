package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("RATE_LIMIT_WHITELIST", "")

	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.Empty(t, cfg.RateLimitWhitelist)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, ,192.168.0.0/16")
	t.Setenv("ALLOWED_ORIGINS", "https://campusly.app,http://localhost:5173")

	cfg := Load()
	require.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
	require.Equal(t, []string{"https://campusly.app", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadPanicsInProductionWithoutSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/campusly")
	t.Setenv("JWT_SECRET", "")

	require.Panics(t, func() { Load() })
}
