package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DATABASE", "library.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.True(t, cfg.IsFileDatabase())
	assert.Equal(t, 5, cfg.DBAppConnectionLimit)
	assert.Equal(t, 24*time.Hour, cfg.SessionExpiration)
	assert.False(t, cfg.AuthorizerEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "mariadb")
	t.Setenv("DB_DATABASE", "library")
	t.Setenv("DB_APP_USER", "app")
	t.Setenv("DB_APP_CONNECTION_LIMIT", "not-a-number")
	t.Setenv("SESSION_EXPIRATION", "90m")
	t.Setenv("AUTHZ_URL", "http://authorizer:8080")
	t.Setenv("AUTHZ_CLIENT_ID", "client")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsFileDatabase())
	assert.Equal(t, 5, cfg.DBAppConnectionLimit)
	assert.Equal(t, 90*time.Minute, cfg.SessionExpiration)
	assert.True(t, cfg.AuthorizerEnabled())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no database", map[string]string{}, "DB_DATABASE"},
		{"server dialect needs a user", map[string]string{"DB_TYPE": "postgres", "DB_DATABASE": "library"}, "DB_APP_USER"},
		{"authorizer half configured", map[string]string{"DB_DATABASE": "library.db", "AUTHZ_URL": "http://authorizer"}, "AUTHZ_CLIENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_DATABASE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
