package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Count modes for pull request and issue totals
const (
	CountModeApproximate = "approximate"
	CountModeExhaustive  = "exhaustive"
)

// Retry backoff policies
const (
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// MaxRetriesLimit bounds MAX_RETRIES
const MaxRetriesLimit = 20

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken string
	Org         string
	APIBaseURL  string

	// Retrieval
	PageSize     int
	MaxRetries   int
	RetryDelay   time.Duration
	RetryBackoff string // "linear" or "exponential"
	RequestDelay time.Duration
	CountMode    string // "approximate" or "exhaustive"

	// Output
	OutputDir       string
	TimestampOutput bool
	ErrorLogPath    string
	LogFile         string

	// Storage
	StorageType string // "none", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// fileConfig mirrors Config for TOML files. Zero values mean "not set".
type fileConfig struct {
	Token           string `toml:"token"`
	Org             string `toml:"org"`
	APIBaseURL      string `toml:"api_base_url"`
	PageSize        int    `toml:"page_size"`
	MaxRetries      int    `toml:"max_retries"`
	RetryDelay      string `toml:"retry_delay"`
	RetryBackoff    string `toml:"retry_backoff"`
	RequestDelay    string `toml:"request_delay"`
	CountMode       string `toml:"count_mode"`
	OutputDir       string `toml:"output_dir"`
	TimestampOutput *bool  `toml:"timestamp_output"`
	ErrorLog        string `toml:"error_log"`
	LogFile         string `toml:"log_file"`
	StorageType     string `toml:"storage_type"`
	SQLitePath      string `toml:"sqlite_path"`
	PostgresURL     string `toml:"postgres_url"`
	APIHost         string `toml:"api_host"`
	APIPort         string `toml:"api_port"`
	APIEndpoint     string `toml:"api_endpoint"`
}

// Load loads the configuration. path may name a .env or .toml file; when it is
// empty the .env in the working directory is used if present. Environment
// variables always win over file values.
func Load(path string) (*Config, error) {
	var fc fileConfig
	switch {
	case strings.HasSuffix(path, ".toml"):
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, &ConfigError{Field: "config", Message: "cannot read " + path + ": " + err.Error()}
		}
	case path != "":
		if err := godotenv.Load(path); err != nil {
			return nil, &ConfigError{Field: "config", Message: "cannot read " + path + ": " + err.Error()}
		}
	default:
		// Load .env file if it exists (ignore error if not found)
		_ = godotenv.Load()
	}

	cfg := &Config{
		GitHubToken:     firstEnv([]string{"GITHUB_TOKEN", "GH_PAT"}, fc.Token),
		Org:             firstEnv([]string{"ORG_NAME", "GH_ORG"}, fc.Org),
		APIBaseURL:      getEnv("GITHUB_API_URL", or(fc.APIBaseURL, "https://api.github.com")),
		RetryBackoff:    getEnv("RETRY_BACKOFF", or(fc.RetryBackoff, BackoffLinear)),
		CountMode:       getEnv("COUNT_MODE", or(fc.CountMode, CountModeExhaustive)),
		OutputDir:       getEnv("OUTPUT_DIR", or(fc.OutputDir, "output")),
		ErrorLogPath:    getEnv("ERROR_LOG", or(fc.ErrorLog, "logs/error_log.txt")),
		LogFile:         getEnv("LOG_FILE", fc.LogFile),
		StorageType:     getEnv("STORAGE_TYPE", or(fc.StorageType, "none")),
		SQLitePath:      getEnv("SQLITE_PATH", or(fc.SQLitePath, "./inventory.db")),
		PostgresURL:     getEnv("POSTGRES_URL", fc.PostgresURL),
		APIPort:         getEnv("API_PORT", or(fc.APIPort, "8080")),
		APIHost:         getEnv("API_HOST", or(fc.APIHost, "localhost")),
		APIEndpoint:     getEnv("API_ENDPOINT", or(fc.APIEndpoint, "http://localhost:8080")),
		TimestampOutput: true,
	}
	if fc.TimestampOutput != nil {
		cfg.TimestampOutput = *fc.TimestampOutput
	}

	var err error
	if cfg.PageSize, err = getEnvInt("PAGE_SIZE", orInt(fc.PageSize, 100)); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", orInt(fc.MaxRetries, 5)); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getEnvDuration("RETRY_DELAY", or(fc.RetryDelay, "5s")); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = getEnvDuration("REQUEST_DELAY", or(fc.RequestDelay, "100ms")); err != nil {
		return nil, err
	}
	if v := os.Getenv("TIMESTAMP_OUTPUT"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return nil, &ConfigError{Field: "TIMESTAMP_OUTPUT", Message: "must be a boolean"}
		}
		cfg.TimestampOutput = b
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a duration such as 5s"}
	}
	return d, nil
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

// Validate checks the settings needed to talk to GitHub
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required (set GITHUB_TOKEN or GH_PAT)"}
	}
	if c.Org == "" {
		return &ConfigError{Field: "ORG_NAME", Message: "organization is required (set ORG_NAME or GH_ORG, or pass it as an argument)"}
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return &ConfigError{Field: "PAGE_SIZE", Message: "must be between 1 and 100"}
	}
	if c.MaxRetries < 1 || c.MaxRetries > MaxRetriesLimit {
		return &ConfigError{Field: "MAX_RETRIES", Message: fmt.Sprintf("must be between 1 and %d", MaxRetriesLimit)}
	}
	if c.RetryBackoff != BackoffLinear && c.RetryBackoff != BackoffExponential {
		return &ConfigError{Field: "RETRY_BACKOFF", Message: "must be 'linear' or 'exponential'"}
	}
	if c.CountMode != CountModeApproximate && c.CountMode != CountModeExhaustive {
		return &ConfigError{Field: "COUNT_MODE", Message: "must be 'approximate' or 'exhaustive'"}
	}
	return c.ValidateStorage()
}

// ValidateStorage checks the persistence settings only.
func (c *Config) ValidateStorage() error {
	switch c.StorageType {
	case "none", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
		}
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'none', 'sqlite' or 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
