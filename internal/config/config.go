package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/dl-alexandre/odshare/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.yaml"
	// LedgerFileName is the sqlite run ledger inside the config directory
	LedgerFileName = "ledger.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "ODSHARE_"
)

// Config holds application configuration. It is loaded once and passed by
// value into the mirror engine.
type Config struct {
	// Shares are the share identifiers mirrored when none are given on the command line
	Shares []string `yaml:"shares" json:"shares"`

	// OutputDir is the root of the local mirror; empty means <cwd>/downloads
	OutputDir string `yaml:"outputDir" json:"outputDir"`

	// Concurrency is the number of parallel downloads
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// DiscoveryConcurrency is the number of folder listings fetched at once
	DiscoveryConcurrency int `yaml:"discoveryConcurrency" json:"discoveryConcurrency"`

	// APIBaseURL is the OneDrive API root
	APIBaseURL string `yaml:"apiBaseUrl" json:"apiBaseUrl"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `yaml:"requestTimeout" json:"requestTimeout"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `yaml:"logLevel" json:"logLevel"`

	VerifyHashes bool     `yaml:"verifyHashes" json:"verifyHashes"`
	Exclude      []string `yaml:"exclude" json:"exclude"`

	// MetricsFile receives a Prometheus textfile after each mirror run
	MetricsFile string `yaml:"metricsFile" json:"metricsFile"`

	// Ledger enables the sqlite run history
	Ledger bool `yaml:"ledger" json:"ledger"`

	// ColorOutput enables color on console logs
	ColorOutput bool `yaml:"colorOutput" json:"colorOutput"`
}

var validLogLevels = []interface{}{"quiet", "normal", "verbose", "debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Shares:               []string{},
		Concurrency:          utils.DefaultConcurrency,
		DiscoveryConcurrency: utils.DefaultDiscoveryConcurrency,
		APIBaseURL:           utils.OneDriveAPIBase,
		RequestTimeout:       utils.DefaultRequestTimeoutSecs,
		LogLevel:             "normal",
		Exclude:              []string{},
		Ledger:               true,
		ColorOutput:          true,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// Command line flags are applied on top by the caller, followed by Validate.
// An empty path means the default config file, which may be absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		defaultPath, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	if err := cfg.loadFromFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "SHARES"); v != "" {
		c.Shares = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if err := envInt("CONCURRENCY", &c.Concurrency); err != nil {
		return err
	}
	if err := envInt("DISCOVERY_CONCURRENCY", &c.DiscoveryConcurrency); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if err := envInt("REQUEST_TIMEOUT", &c.RequestTimeout); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "VERIFY_HASHES"); v != "" {
		c.VerifyHashes = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		c.Exclude = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv(EnvPrefix + "LEDGER"); v != "" {
		c.Ledger = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %q is not an integer", EnvPrefix, name, v)
	}
	*dst = n
	return nil
}

// Save writes the configuration as YAML to path, or to the default location
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if path == "" {
		defaultPath, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Shares, validation.Each(validation.Required, validation.By(noWhitespace))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(utils.MaxConcurrency)),
		validation.Field(&c.DiscoveryConcurrency, validation.Required, validation.Min(1), validation.Max(utils.MaxConcurrency)),
		validation.Field(&c.APIBaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(1), validation.Max(3600)),
		validation.Field(&c.LogLevel, validation.Required, validation.In(validLogLevels...)),
		validation.Field(&c.Exclude, validation.Each(validation.Required)),
	)
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func noWhitespace(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, " \t\r\n") {
		return errors.New("must not contain whitespace")
	}
	return nil
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// ResolveOutputDir returns OutputDir, defaulting to <cwd>/downloads
func (c *Config) ResolveOutputDir() (string, error) {
	if c.OutputDir != "" {
		return filepath.Abs(c.OutputDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, utils.DefaultOutputDirName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetLedgerPath returns the path to the run ledger database
func GetLedgerPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, LedgerFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "odshare"), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
