package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":    "postgres://localhost/onelink",
		"REDIS_URL":       "redis://localhost:6379",
		"BLOB_ENDPOINT":   "localhost:9000",
		"BLOB_ACCESS_KEY": "access",
		"BLOB_SECRET_KEY": "secret",
		"CRON_SECRET":     "cron",
		"ADMIN_SECRET":    "admin",
		"OIDC_ISSUER":     "https://issuer.example.com",
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "onelink-files", cfg.BlobBucket)
	assert.True(t, cfg.BlobUseSSL)
	assert.Equal(t, FileServeRedirect, cfg.FileServeMode)
	assert.Equal(t, AuthModeOIDC, cfg.AuthMode)
	assert.Equal(t, "onelink", cfg.OIDCAudience)
	assert.Empty(t, cfg.RateLimitFailureModes)
	assert.False(t, cfg.IsDevelopment())
}

func TestFromLookupFailsFastOnMissingSecrets(t *testing.T) {
	env := baseEnv()
	delete(env, "CRON_SECRET")
	delete(env, "ADMIN_SECRET")
	env["REDIS_URL"] = "   "

	_, err := FromLookup(lookupFrom(env))
	require.Error(t, err)

	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"REDIS_URL", "CRON_SECRET", "ADMIN_SECRET"}, missing.Names)
}

func TestFromLookupSessionModeRequiresSecret(t *testing.T) {
	env := baseEnv()
	env["AUTH_MODE"] = "session"
	delete(env, "OIDC_ISSUER")

	_, err := FromLookup(lookupFrom(env))
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"SESSION_SECRET"}, missing.Names)

	env["SESSION_SECRET"] = "s3cret"
	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, AuthModeSession, cfg.AuthMode)
}

func TestSweeperFromLookupOnlyNeedsStorage(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":    "postgres://localhost/onelink",
		"BLOB_ENDPOINT":   "localhost:9000",
		"BLOB_ACCESS_KEY": "access",
		"BLOB_SECRET_KEY": "secret",
	}

	cfg, err := SweeperFromLookup(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/onelink", cfg.DatabaseURL)

	_, err = FromLookup(lookupFrom(env))
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Names, "CRON_SECRET")

	delete(env, "BLOB_SECRET_KEY")
	_, err = SweeperFromLookup(lookupFrom(env))
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"BLOB_SECRET_KEY"}, missing.Names)
}

func TestFromLookupRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"auth mode", "AUTH_MODE", "basic"},
		{"file serve mode", "FILE_SERVE_MODE", "proxy"},
		{"ssl flag", "BLOB_USE_SSL", "maybe"},
		{"failure mode", "RATE_LIMIT_FAILURE_MODES", "upload=sometimes"},
		{"failure mode syntax", "RATE_LIMIT_FAILURE_MODES", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			env[tt.key] = tt.val
			_, err := FromLookup(lookupFrom(env))
			assert.Error(t, err)
		})
	}
}

func TestParseFailureModes(t *testing.T) {
	modes, err := parseFailureModes(" Upload=closed, strict=LOCAL ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"upload": "closed", "strict": "local"}, modes)
}
