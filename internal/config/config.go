// Package config provides configuration loading and validation for the
// GhostAtlas services. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server and the
// enhancement worker.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (response cache + rate limiting); optional
	RedisURL string `koanf:"redis_url"`

	// Admin moderation auth
	AdminJWTSecret string `koanf:"admin_jwt_secret"`

	// Browser origins allowed by CORS, comma-separated in the env var.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// Generative AI (Gemini)
	GeminiAPIKey     string `koanf:"gemini_api_key"`
	GeminiTextModel  string `koanf:"gemini_text_model"`
	GeminiImageModel string `koanf:"gemini_image_model"`

	// Object storage (S3-compatible; R2 in production)
	StorageBucketName      string `koanf:"storage_bucket_name"`
	StorageAccessKeyID     string `koanf:"storage_access_key_id"`
	StorageSecretAccessKey string `koanf:"storage_secret_access_key"`
	StorageEndpoint        string `koanf:"storage_endpoint"`
	StoragePublicBaseURL   string `koanf:"storage_public_base_url"`
	StorageMaxUploadSizeMB int    `koanf:"storage_max_upload_size_mb"`

	// Domain tuning
	VerificationRadiusMeters float64 `koanf:"verification_radius_meters"`
	EnhancePollSeconds       int     `koanf:"enhance_poll_seconds"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL      = errors.New("DATABASE_URL is required")
	ErrMissingAdminJWTSecret   = errors.New("ADMIN_JWT_SECRET is required")
	ErrMissingGeminiAPIKey     = errors.New("GEMINI_API_KEY is required")
	ErrMissingStorageBucket    = errors.New("STORAGE_BUCKET_NAME is required")
	ErrMissingStorageKeyID     = errors.New("STORAGE_ACCESS_KEY_ID is required")
	ErrMissingStorageSecretKey = errors.New("STORAGE_SECRET_ACCESS_KEY is required")
	ErrMissingStorageEndpoint  = errors.New("STORAGE_ENDPOINT is required")
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultGeminiTextModel         = "gemini-2.0-flash"
	DefaultGeminiImageModel        = "imagen-3.0-generate-002"
	DefaultStorageMaxUploadSizeMB  = 10
	DefaultVerificationRadiusMeter = 50.0
	DefaultEnhancePollSeconds      = 15
	DefaultAllowedOrigins          = "http://localhost:5173"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). A config file that cannot be loaded is a hard error.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("STORAGE_MAX_UPLOAD_SIZE_MB", k.Int("storage_max_upload_size_mb"), DefaultStorageMaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	pollSeconds, pollErr := getEnvIntOrDefault("ENHANCE_POLL_SECONDS", k.Int("enhance_poll_seconds"), DefaultEnhancePollSeconds)
	if pollErr != nil {
		loadErrs = append(loadErrs, pollErr)
	}

	radius, radiusErr := getEnvFloatOrDefault("VERIFICATION_RADIUS_METERS", k.Float64("verification_radius_meters"), DefaultVerificationRadiusMeter)
	if radiusErr != nil {
		loadErrs = append(loadErrs, radiusErr)
	}

	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefault("GHOSTATLAS_ENV", k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		AdminJWTSecret:           getEnvOrKoanf("ADMIN_JWT_SECRET", k, "admin_jwt_secret"),
		AllowedOrigins:           splitOrigins(getEnvOrDefault("ALLOWED_ORIGINS", strings.Join(k.Strings("allowed_origins"), ","), DefaultAllowedOrigins)),
		GeminiAPIKey:             getEnvOrKoanf("GEMINI_API_KEY", k, "gemini_api_key"),
		GeminiTextModel:          getEnvOrDefault("GEMINI_TEXT_MODEL", k.String("gemini_text_model"), DefaultGeminiTextModel),
		GeminiImageModel:         getEnvOrDefault("GEMINI_IMAGE_MODEL", k.String("gemini_image_model"), DefaultGeminiImageModel),
		StorageBucketName:        getEnvOrKoanf("STORAGE_BUCKET_NAME", k, "storage_bucket_name"),
		StorageAccessKeyID:       getEnvOrKoanf("STORAGE_ACCESS_KEY_ID", k, "storage_access_key_id"),
		StorageSecretAccessKey:   getEnvOrKoanf("STORAGE_SECRET_ACCESS_KEY", k, "storage_secret_access_key"),
		StorageEndpoint:          getEnvOrKoanf("STORAGE_ENDPOINT", k, "storage_endpoint"),
		StoragePublicBaseURL:     getEnvOrKoanf("STORAGE_PUBLIC_BASE_URL", k, "storage_public_base_url"),
		StorageMaxUploadSizeMB:   maxUploadSize,
		VerificationRadiusMeters: radius,
		EnhancePollSeconds:       pollSeconds,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// splitOrigins parses a comma-separated origin list, trimming whitespace
// and dropping empty entries.
func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.AdminJWTSecret == "" {
		errs = append(errs, ErrMissingAdminJWTSecret)
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, ErrMissingGeminiAPIKey)
	}

	// Storage configuration is optional as a block (development can run
	// without uploads), but a partial block is a mistake.
	if c.StorageBucketName != "" || c.StorageAccessKeyID != "" || c.StorageSecretAccessKey != "" || c.StorageEndpoint != "" {
		if c.StorageBucketName == "" {
			errs = append(errs, ErrMissingStorageBucket)
		}
		if c.StorageAccessKeyID == "" {
			errs = append(errs, ErrMissingStorageKeyID)
		}
		if c.StorageSecretAccessKey == "" {
			errs = append(errs, ErrMissingStorageSecretKey)
		}
		if c.StorageEndpoint == "" {
			errs = append(errs, ErrMissingStorageEndpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       fmt.Sprintf("%d", c.Port),
		"env":                        c.Env,
		"database_url":               maskDatabaseURL(c.DatabaseURL),
		"redis_url":                  maskDatabaseURL(c.RedisURL),
		"admin_jwt_secret":           maskSecret(c.AdminJWTSecret),
		"allowed_origins":            strings.Join(c.AllowedOrigins, ","),
		"gemini_api_key":             maskSecret(c.GeminiAPIKey),
		"gemini_text_model":          c.GeminiTextModel,
		"gemini_image_model":         c.GeminiImageModel,
		"storage_bucket_name":        c.StorageBucketName,
		"storage_access_key_id":      maskSecret(c.StorageAccessKeyID),
		"storage_secret_access_key":  maskSecret(c.StorageSecretAccessKey),
		"storage_endpoint":           c.StorageEndpoint,
		"storage_public_base_url":    c.StoragePublicBaseURL,
		"storage_max_upload_size_mb": fmt.Sprintf("%d", c.StorageMaxUploadSizeMB),
		"verification_radius_meters": fmt.Sprintf("%g", c.VerificationRadiusMeters),
		"enhance_poll_seconds":       fmt.Sprintf("%d", c.EnhancePollSeconds),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
