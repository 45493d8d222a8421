package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RemoteConfig points at the hosted backend (REST tables, auth and functions).
type RemoteConfig struct {
	// URL is the project root URL, e.g. https://xyz.supabase.co.
	URL string `mapstructure:"url" yaml:"url"`

	// APIKey is the public (anon) key sent with every request.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// StorageConfig holds settings for the S3-compatible photo bucket.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	PublicBaseURL   string `mapstructure:"public_base_url" yaml:"public_base_url"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	PhotoBucket     string `mapstructure:"photo_bucket" yaml:"photo_bucket"`
	AvatarBucket    string `mapstructure:"avatar_bucket" yaml:"avatar_bucket"`
}

// IdentifyConfig holds settings for the species identification model.
type IdentifyConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// Mock returns a canned prediction instead of calling the model.
	Mock bool `mapstructure:"mock" yaml:"mock"`
}

// ExploreConfig holds settings for the hotspot map.
type ExploreConfig struct {
	HotspotFunctionURL string  `mapstructure:"hotspot_function_url" yaml:"hotspot_function_url"`
	GoogleMapsAPIKey   string  `mapstructure:"google_maps_api_key" yaml:"google_maps_api_key"`
	DefaultRadiusKm    float64 `mapstructure:"default_radius_km" yaml:"default_radius_km"`
}

// DatabaseConfig locates the local SQLite file that holds drafts.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RetryConfig controls eventual-consistency waits such as the profile fetch
// after sign-in.
type RetryConfig struct {
	Attempts int `mapstructure:"attempts" yaml:"attempts"`
	DelayMs  int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Identify IdentifyConfig `mapstructure:"identify" yaml:"identify"`
	Explore  ExploreConfig  `mapstructure:"explore" yaml:"explore"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ErrRemoteNotConfigured is returned by Validate when the backend URL or key
// is missing.
var ErrRemoteNotConfigured = errors.New("remote url and api key must be configured")

// Validate reports whether the backend can be reached with this config.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Remote.URL) == "" || strings.TrimSpace(c.Remote.APIKey) == "" {
		return ErrRemoteNotConfigured
	}
	return nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/lepinet/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "lepinet", "config.yaml")
}

// DefaultDatabasePath returns ~/.local/share/lepinet/lepinet.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lepinet.db")
	}
	return filepath.Join(home, ".local", "share", "lepinet", "lepinet.db")
}

// defaults maps every config key to its default value. Registering every key
// lets environment variables override keys absent from the file.
func defaults() map[string]any {
	return map[string]any{
		"remote.url":                   "",
		"remote.api_key":               "",
		"remote.timeout_sec":           30,
		"storage.endpoint":             "",
		"storage.public_base_url":      "",
		"storage.region":               "auto",
		"storage.access_key_id":        "",
		"storage.secret_access_key":    "",
		"storage.photo_bucket":         "checklist_photos",
		"storage.avatar_bucket":        "profile_photos",
		"identify.url":                 "https://bhanura-lepinet-backend.hf.space/predict",
		"identify.timeout_sec":         60,
		"identify.mock":                false,
		"explore.hotspot_function_url": "",
		"explore.google_maps_api_key":  "",
		"explore.default_radius_km":    10.0,
		"database.path":                DefaultDatabasePath(),
		"retry.attempts":               5,
		"retry.delay_ms":               1000,
		"log.level":                    "info",
		"log.json":                     false,
	}
}

// legacyEnv lists the variable names the mobile client used for the same
// settings. They are consulted after the LEPINET_ variables.
var legacyEnv = map[string]string{
	"remote.url":                   "EXPO_PUBLIC_SUPABASE_URL",
	"remote.api_key":               "EXPO_PUBLIC_SUPABASE_KEY",
	"explore.hotspot_function_url": "EXPO_PUBLIC_HOTSPOT_FUNCTION_URL",
	"explore.google_maps_api_key":  "EXPO_PUBLIC_GOOGLE_MAPS_API_KEY",
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("LEPINET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "LEPINET_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envKey, legacy)
	}
	return v
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults and environment variables apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Remote.URL = strings.TrimRight(cfg.Remote.URL, "/")
	if cfg.Storage.PublicBaseURL == "" && cfg.Remote.URL != "" {
		cfg.Storage.PublicBaseURL = cfg.Remote.URL + "/storage/v1/object/public"
	}
	if cfg.Storage.Endpoint == "" && cfg.Remote.URL != "" {
		cfg.Storage.Endpoint = cfg.Remote.URL + "/storage/v1/s3"
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("remote", cfg.Remote)
	v.Set("storage", cfg.Storage)
	v.Set("identify", cfg.Identify)
	v.Set("explore", cfg.Explore)
	v.Set("database", cfg.Database)
	v.Set("retry", cfg.Retry)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
