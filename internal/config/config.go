// Package config provides configuration loading and management for the
// sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syncmesh/syncmesh-server/internal/retry"
)

// Storage types selectable via configuration
const (
	// StorageTypeMemory keeps all state in process memory
	StorageTypeMemory = "memory"

	// StorageTypeDatabase persists state in PostgreSQL
	StorageTypeDatabase = "database"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ServerName is the name/identifier for this server instance
	// Defaults to "default" if not specified
	ServerName string `yaml:"serverName,omitempty"`

	// Endpoints are the integrations registered at startup
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// Instances are the sync peers registered at startup
	Instances []InstanceConfig `yaml:"instances"`

	// Supervisor tunes the reconnection supervisor
	Supervisor *SupervisorConfig `yaml:"supervisor,omitempty"`

	// Retry overrides the process-wide default retry policy
	Retry *RetryConfig `yaml:"retry,omitempty"`

	// Database enables PostgreSQL-backed storage
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// EndpointConfig declares one endpoint to register at startup
type EndpointConfig struct {
	// ID is the unique identifier for the endpoint
	ID string `yaml:"id"`

	// URL is the base URL the HTTP transport probes and pushes against
	URL string `yaml:"url"`
}

// InstanceConfig declares one sync instance to register at startup
type InstanceConfig struct {
	// ID is the unique identifier for the instance
	ID string `yaml:"id"`

	// Endpoint references the endpoint this instance is reached through
	Endpoint string `yaml:"endpoint,omitempty"`

	// URL overrides the push URL; defaults to the endpoint's URL
	URL string `yaml:"url,omitempty"`
}

// SupervisorConfig tunes the reconnection supervisor. Durations are
// expressed as Go duration strings (e.g. "30s", "5m").
type SupervisorConfig struct {
	// SweepInterval is the fixed interval between endpoint sweeps
	SweepInterval string `yaml:"sweepInterval,omitempty"`

	// BaseDelay seeds the reconnection backoff schedule
	BaseDelay string `yaml:"baseDelay,omitempty"`

	// CapDelay is the hard ceiling on reconnection backoff
	CapDelay string `yaml:"capDelay,omitempty"`
}

// RetryConfig overrides the default retry policy
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// InitialDelay is the delay before the first retry
	InitialDelay string `yaml:"initialDelay,omitempty"`

	// MaxDelay caps the computed backoff delay
	MaxDelay string `yaml:"maxDelay,omitempty"`

	// BackoffMultiplier is the exponential growth factor
	BackoffMultiplier float64 `yaml:"backoffMultiplier,omitempty"`

	// RetryablePatterns replaces the default retryable error patterns
	RetryablePatterns []string `yaml:"retryablePatterns,omitempty"`
}

// DatabaseConfig defines the PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode,omitempty"`

	// Password may be set inline, via PasswordFile, or via the
	// SYNCMESH_DB_PASSWORD environment variable (file takes priority,
	// then environment, then inline value)
	Password     string `yaml:"password,omitempty"`
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// MaxConns bounds the connection pool size
	MaxConns int `yaml:"maxConns,omitempty"`
}

// passwordEnvVar is the environment variable consulted for the database password
const passwordEnvVar = "SYNCMESH_DB_PASSWORD"

// GetPassword returns the database password using the priority order
// file -> environment -> inline config value
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(d.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if password := os.Getenv(passwordEnvVar); password != "" {
		return password, nil
	}
	return d.Password, nil
}

// GetConnectionString builds a PostgreSQL connection URL
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String(), nil
}

// Validate checks the database configuration
func (d *DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// LoadConfig loads the configuration using the given options
func LoadConfig(opts ...Option) (*Config, error) {
	loader := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loader); err != nil {
			return nil, err
		}
	}
	if loader.path == "" {
		return nil, fmt.Errorf("no configuration source provided")
	}

	data, err := os.ReadFile(loader.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// GetServerName returns the configured server name, defaulting to "default"
func (c *Config) GetServerName() string {
	if c.ServerName == "" {
		return "default"
	}
	return c.ServerName
}

// GetStorageType reports which storage backend is configured
func (c *Config) GetStorageType() string {
	if c.Database != nil {
		return StorageTypeDatabase
	}
	return StorageTypeMemory
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	seenEndpoints := make(map[string]bool)
	for i, ep := range c.Endpoints {
		if ep.ID == "" {
			return fmt.Errorf("endpoint %d: id is required", i)
		}
		if seenEndpoints[ep.ID] {
			return fmt.Errorf("duplicate endpoint id: %s", ep.ID)
		}
		seenEndpoints[ep.ID] = true
		if ep.URL == "" {
			return fmt.Errorf("endpoint %s: url is required", ep.ID)
		}
		if _, err := url.Parse(ep.URL); err != nil {
			return fmt.Errorf("endpoint %s: invalid url: %w", ep.ID, err)
		}
	}

	seenInstances := make(map[string]bool)
	for i, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("instance %d: id is required", i)
		}
		if seenInstances[inst.ID] {
			return fmt.Errorf("duplicate instance id: %s", inst.ID)
		}
		seenInstances[inst.ID] = true
		if inst.Endpoint != "" && !seenEndpoints[inst.Endpoint] {
			return fmt.Errorf("instance %s references unknown endpoint: %s", inst.ID, inst.Endpoint)
		}
	}

	if c.Supervisor != nil {
		if err := c.Supervisor.validate(); err != nil {
			return err
		}
	}
	if c.Retry != nil {
		if _, err := c.Retry.ToPolicy(); err != nil {
			return err
		}
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SupervisorConfig) validate() error {
	for name, value := range map[string]string{
		"sweepInterval": s.SweepInterval,
		"baseDelay":     s.BaseDelay,
		"capDelay":      s.CapDelay,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("supervisor %s: invalid duration %q: %w", name, value, err)
		}
	}
	return nil
}

// GetSweepInterval returns the configured sweep interval, or def when unset
func (s *SupervisorConfig) GetSweepInterval(def time.Duration) time.Duration {
	return parseDurationOr(s.SweepInterval, def)
}

// GetBaseDelay returns the configured backoff base delay, or def when unset
func (s *SupervisorConfig) GetBaseDelay(def time.Duration) time.Duration {
	return parseDurationOr(s.BaseDelay, def)
}

// GetCapDelay returns the configured backoff ceiling, or def when unset
func (s *SupervisorConfig) GetCapDelay(def time.Duration) time.Duration {
	return parseDurationOr(s.CapDelay, def)
}

func parseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// ToPolicy converts the retry configuration into a validated retry.Policy,
// falling back to the default for any unset field
func (r *RetryConfig) ToPolicy() (retry.Policy, error) {
	policy := retry.DefaultPolicy()
	if r == nil {
		return policy, nil
	}
	if r.MaxAttempts != 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("retry initialDelay: invalid duration %q: %w", r.InitialDelay, err)
		}
		policy.InitialDelay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("retry maxDelay: invalid duration %q: %w", r.MaxDelay, err)
		}
		policy.MaxDelay = d
	}
	if r.BackoffMultiplier != 0 {
		policy.BackoffMultiplier = r.BackoffMultiplier
	}
	if len(r.RetryablePatterns) > 0 {
		policy.RetryablePatterns = r.RetryablePatterns
	}
	if err := policy.Validate(); err != nil {
		return retry.Policy{}, fmt.Errorf("invalid retry configuration: %w", err)
	}
	return policy, nil
}
