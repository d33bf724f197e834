package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	AuthModeOIDC    = "oidc"
	AuthModeSession = "session"

	FileServeRedirect = "redirect"
	FileServeInline   = "inline"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string
	BaseURL  string

	DatabaseURL string
	RedisURL    string

	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobRegion    string
	BlobUseSSL    bool
	FileServeMode string

	AuthMode      string
	OIDCIssuer    string
	OIDCAudience  string
	SessionSecret string

	CronSecret  string
	AdminSecret string

	// RateLimitFailureModes maps a route class name to open, closed or local.
	RateLimitFailureModes map[string]string
}

// MissingError lists every required variable that was not set.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Names, ", ")
}

// Load reads configuration from the environment, after loading .env if present.
// Secrets guarding the cron and admin endpoints are required, never defaulted.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)
	return FromLookup(os.LookupEnv)
}

// LoadSweeper reads configuration for the one-shot sweeper, which only needs the
// database and the blob store.
func LoadSweeper() (*Config, error) {
	_ = godotenv.Load()
	return SweeperFromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := parse(lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SweeperFromLookup is FromLookup with only the storage settings required.
func SweeperFromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := parse(lookup)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(cfg.storageRequirements()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return fallback
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		AppEnv:        get("APP_ENV", "production"),
		LogLevel:      get("LOG_LEVEL", "info"),
		BaseURL:       get("BASE_URL", "http://localhost:8080"),
		DatabaseURL:   get("DATABASE_URL", ""),
		RedisURL:      get("REDIS_URL", ""),
		BlobEndpoint:  get("BLOB_ENDPOINT", ""),
		BlobAccessKey: get("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: get("BLOB_SECRET_KEY", ""),
		BlobBucket:    get("BLOB_BUCKET", "onelink-files"),
		BlobRegion:    get("BLOB_REGION", ""),
		FileServeMode: strings.ToLower(get("FILE_SERVE_MODE", FileServeRedirect)),
		AuthMode:      strings.ToLower(get("AUTH_MODE", AuthModeOIDC)),
		OIDCIssuer:    get("OIDC_ISSUER", ""),
		OIDCAudience:  get("OIDC_AUDIENCE", "onelink"),
		SessionSecret: get("SESSION_SECRET", ""),
		CronSecret:    get("CRON_SECRET", ""),
		AdminSecret:   get("ADMIN_SECRET", ""),
	}

	useSSL, err := strconv.ParseBool(get("BLOB_USE_SSL", "true"))
	if err != nil {
		return nil, fmt.Errorf("BLOB_USE_SSL: %w", err)
	}
	cfg.BlobUseSSL = useSSL

	modes, err := parseFailureModes(get("RATE_LIMIT_FAILURE_MODES", ""))
	if err != nil {
		return nil, err
	}
	cfg.RateLimitFailureModes = modes
	return cfg, nil
}

type requirement struct {
	name  string
	value string
}

func (c *Config) storageRequirements() []requirement {
	return []requirement{
		{"DATABASE_URL", c.DatabaseURL},
		{"BLOB_ENDPOINT", c.BlobEndpoint},
		{"BLOB_ACCESS_KEY", c.BlobAccessKey},
		{"BLOB_SECRET_KEY", c.BlobSecretKey},
	}
}

func checkRequired(required []requirement) error {
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

func (c *Config) validate() error {
	required := append(c.storageRequirements(),
		requirement{"REDIS_URL", c.RedisURL},
		requirement{"CRON_SECRET", c.CronSecret},
		requirement{"ADMIN_SECRET", c.AdminSecret},
	)
	switch c.AuthMode {
	case AuthModeOIDC:
		required = append(required, requirement{"OIDC_ISSUER", c.OIDCIssuer})
	case AuthModeSession:
		required = append(required, requirement{"SESSION_SECRET", c.SessionSecret})
	default:
		return fmt.Errorf("AUTH_MODE: unsupported value %q", c.AuthMode)
	}

	if err := checkRequired(required); err != nil {
		return err
	}

	if c.FileServeMode != FileServeRedirect && c.FileServeMode != FileServeInline {
		return fmt.Errorf("FILE_SERVE_MODE: unsupported value %q", c.FileServeMode)
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// parseFailureModes parses "upload=closed,strict=local".
func parseFailureModes(raw string) (map[string]string, error) {
	modes := make(map[string]string)
	if raw == "" {
		return modes, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		class, mode, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("RATE_LIMIT_FAILURE_MODES: malformed entry %q", pair)
		}
		mode = strings.ToLower(strings.TrimSpace(mode))
		switch mode {
		case "open", "closed", "local":
		default:
			return nil, fmt.Errorf("RATE_LIMIT_FAILURE_MODES: unknown mode %q", mode)
		}
		modes[strings.ToLower(strings.TrimSpace(class))] = mode
	}
	return modes, nil
}
