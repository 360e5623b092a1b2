package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by mirror-server and mirror-sync.
type Config struct {
	// Repository is the upstream "owner/name" whose releases are mirrored.
	Repository string `yaml:"repository"`
	// DownloadDirectory is the root of the mirrored tree.
	DownloadDirectory string `yaml:"download_directory"`
	// APIBaseURL is the upstream release API endpoint.
	APIBaseURL string `yaml:"api_base_url"`
	// ListenAddress is where the HTTP trigger endpoint listens.
	ListenAddress string `yaml:"listen_address"`
	// HealthAddress is where the gRPC health service listens. Empty disables it.
	HealthAddress string `yaml:"health_address"`
	// SyncInterval is the period between scheduled sync passes.
	SyncInterval time.Duration `yaml:"sync_interval"`
	// Concurrency caps simultaneous upstream requests within one pass.
	Concurrency int `yaml:"concurrency"`
	// MaxRetries bounds retries of a transient upstream failure. Zero selects
	// DefaultMaxRetries; a transient failure is always retried at least once.
	MaxRetries int `yaml:"max_retries"`
	// RetryBaseDelay is the first backoff delay; it doubles on each retry.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	// Timeout limits a single upstream request. Zero leaves the client without a deadline.
	Timeout time.Duration `yaml:"timeout"`
	// CAFile is an optional PEM bundle used instead of the system trust store.
	CAFile string `yaml:"ca_file"`
	// StripPrefixes are packaging-name prefixes removed from tracking file names.
	// When unset it defaults to the repository name; an explicit empty list disables prefix stripping.
	StripPrefixes []string `yaml:"strip_prefixes,omitempty"`
	// SkipPrereleases keeps prerelease versions out of the tracking directories.
	SkipPrereleases bool `yaml:"skip_prereleases"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for mirror settings.
	DefaultConfigFilename = "release-mirror.yaml"

	// DefaultEnvFilename is read for environment overrides when present.
	DefaultEnvFilename = ".env"

	// DefaultAPIBaseURL points to the public GitHub API.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultListenAddress is where the HTTP trigger listens by default.
	DefaultListenAddress = ":8000"

	// DefaultSyncInterval matches the periodic job of the HTTP front end.
	DefaultSyncInterval = time.Minute

	// DefaultConcurrency is the ceiling on simultaneous upstream connections.
	DefaultConcurrency = 60

	// DefaultMaxRetries bounds transient failure retries per request.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first backoff delay.
	DefaultRetryBaseDelay = time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// Environment variables overriding YAML values.
const (
	EnvRepository        = "GITHUB_REPO"
	EnvDownloadDirectory = "DOWNLOAD_DIRECTORY"
	EnvListenAddress     = "LISTEN_ADDRESS"
	EnvLogLevel          = "LOG_LEVEL"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryRequired is returned when the upstream repository is missing.
	errRepositoryRequired = errors.New("repository must be provided")
	// errBadRepository is returned when the repository is not in owner/name form.
	errBadRepository = errors.New("repository must look like owner/name")
	// errDirectoryRequired is returned when the download directory is missing.
	errDirectoryRequired = errors.New("download directory must be provided")
	// errBadConcurrency is returned for a negative concurrency ceiling.
	errBadConcurrency = errors.New("concurrency must not be negative")
	// errBadMaxRetries is returned for a negative retry bound.
	errBadMaxRetries = errors.New("max retries must not be negative")
)

// Load reads configuration from path, applies environment overrides, then the
// given overrides, and validates the result. A missing file is tolerated when
// the environment or the overrides supply the required values.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = loadEnvFile(DefaultEnvFilename); err != nil {
		return nil, err
	}

	ApplyEnv(&cfg, os.LookupEnv)

	for _, override := range overrides {
		override(&cfg)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path in YAML format.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg fields with the environment variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		EnvRepository:        &cfg.Repository,
		EnvDownloadDirectory: &cfg.DownloadDirectory,
		EnvListenAddress:     &cfg.ListenAddress,
		EnvLogLevel:          &cfg.LogLevel,
	}

	for name, field := range overrides {
		if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
			*field = strings.TrimSpace(value)
		}
	}
}

// Validate checks required fields and fills defaults for the optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Repository == "" {
		return errRepositoryRequired
	}

	owner, name, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", cfg.Repository, errBadRepository)
	}

	if cfg.DownloadDirectory == "" {
		return errDirectoryRequired
	}

	if cfg.StripPrefixes == nil {
		cfg.StripPrefixes = []string{name}
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}

	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddress); err != nil {
			return fmt.Errorf("invalid health address: %w", err)
		}
	}

	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	switch {
	case cfg.Concurrency < 0:
		return errBadConcurrency
	case cfg.Concurrency == 0:
		cfg.Concurrency = DefaultConcurrency
	}

	switch {
	case cfg.MaxRetries < 0:
		return errBadMaxRetries
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}

	return nil
}

// loadEnvFile exports variables from a dotenv file without overriding the real environment.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}
