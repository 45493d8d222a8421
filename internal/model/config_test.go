package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Remote.TimeoutSec)
	assert.Equal(t, "checklist_photos", cfg.Storage.PhotoBucket)
	assert.Equal(t, "profile_photos", cfg.Storage.AvatarBucket)
	assert.Equal(t, 60, cfg.Identify.TimeoutSec)
	assert.Equal(t, 10.0, cfg.Explore.DefaultRadiusKm)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.ErrorIs(t, cfg.Validate(), ErrRemoteNotConfigured)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  url: https://xyz.supabase.co/
  api_key: anon
identify:
  mock: true
log:
  level: debug
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://xyz.supabase.co", cfg.Remote.URL)
	assert.True(t, cfg.Identify.Mock)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://xyz.supabase.co/storage/v1/s3", cfg.Storage.Endpoint)
	assert.Equal(t, "https://xyz.supabase.co/storage/v1/object/public", cfg.Storage.PublicBaseURL)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("LEPINET_REMOTE_API_KEY", "from-env")
	t.Setenv("EXPO_PUBLIC_SUPABASE_URL", "https://legacy.supabase.co")
	t.Setenv("EXPO_PUBLIC_HOTSPOT_FUNCTION_URL", "https://legacy.supabase.co/functions/v1/hotspots")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Remote.APIKey)
	assert.Equal(t, "https://legacy.supabase.co", cfg.Remote.URL)
	assert.Equal(t, "https://legacy.supabase.co/functions/v1/hotspots", cfg.Explore.HotspotFunctionURL)
}

func TestLoadConfigEnvPrecedence(t *testing.T) {
	t.Setenv("LEPINET_REMOTE_URL", "https://new.supabase.co")
	t.Setenv("EXPO_PUBLIC_SUPABASE_URL", "https://legacy.supabase.co")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://new.supabase.co", cfg.Remote.URL)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &AppConfig{
		Remote:   RemoteConfig{URL: "https://xyz.supabase.co", APIKey: "anon", TimeoutSec: 10},
		Explore:  ExploreConfig{DefaultRadiusKm: 5},
		Database: DatabaseConfig{Path: "/tmp/lepinet.db"},
		Retry:    RetryConfig{Attempts: 3, DelayMs: 200},
		Log:      LogConfig{Level: "warn"},
	}
	require.NoError(t, SaveConfig(path, in))

	out, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, in.Remote, out.Remote)
	assert.Equal(t, 5.0, out.Explore.DefaultRadiusKm)
	assert.Equal(t, in.Retry, out.Retry)
	assert.Equal(t, "/tmp/lepinet.db", out.Database.Path)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEPINET_TEST_ONLY_VALUE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEPINET_TEST_ONLY_VALUE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("LEPINET_TEST_ONLY_VALUE"))
}
