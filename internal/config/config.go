// Package config provides configuration loading and management for the library service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zimshelf/zim-library/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable override
const EnvPrefix = "ZIM_LIBRARY"

const (
	// CatalogTypeAPI fetches the catalog over HTTP
	CatalogTypeAPI = "api"

	// CatalogTypeFile reads the catalog from a local file
	CatalogTypeFile = "file"
)

const (
	// StorageTypeFile keeps packages in a JSON document under the data directory
	StorageTypeFile = "file"

	// StorageTypePostgres keeps packages in PostgreSQL
	StorageTypePostgres = "postgres"
)

const (
	// CacheTypeMemory caches catalog responses in process
	CacheTypeMemory = "memory"

	// CacheTypeRedis caches catalog responses in Redis
	CacheTypeRedis = "redis"

	// CacheTypeMemcached caches catalog responses in memcached
	CacheTypeMemcached = "memcached"

	// CacheTypeNone disables the catalog response cache
	CacheTypeNone = "none"
)

const (
	// DefaultCatalogURL is the public Kiwix OPDS catalog
	DefaultCatalogURL = "https://library.kiwix.org/catalog/root.xml"

	// DefaultCatalogTimeout bounds a catalog fetch
	DefaultCatalogTimeout = 30 * time.Second

	// DefaultCacheTTL is how long a fetched catalog is reused
	DefaultCacheTTL = time.Hour

	// DefaultSyncInterval is the minimum time between background syncs
	DefaultSyncInterval = 24 * time.Hour

	// DefaultServerAddress is where the HTTP API listens
	DefaultServerAddress = ":8080"

	appDirName = "zim-library"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path      string
	overrides *viper.Viper
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

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithOverrides applies values set in v (environment variables or bound
// flags) on top of the file configuration. Keys use the YAML paths, for
// example "catalog.url" or "storage.type".
func WithOverrides(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.overrides = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DataDir holds the file store, settings and sync status.
	// Defaults to $XDG_DATA_HOME/zim-library
	DataDir string `yaml:"dataDir,omitempty"`

	Server     ServerConfig      `yaml:"server,omitempty"`
	Catalog    CatalogConfig     `yaml:"catalog,omitempty"`
	Storage    StorageConfig     `yaml:"storage,omitempty"`
	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ServerConfig defines the HTTP API listener
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// CatalogConfig defines where the OPDS catalog comes from
type CatalogConfig struct {
	// URL is the catalog endpoint, used unless File is set
	URL string `yaml:"url,omitempty"`

	// File reads the catalog from disk instead of the network
	File *FileConfig `yaml:"file,omitempty"`

	// Timeout bounds one fetch (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`

	Cache *CacheConfig `yaml:"cache,omitempty"`
}

// FileConfig defines local file catalog configuration
type FileConfig struct {
	// Path is the path to the catalog XML on the local filesystem
	Path string `yaml:"path"`
}

// CacheConfig defines the catalog response cache
type CacheConfig struct {
	// Type is one of memory, redis, memcached or none
	Type string `yaml:"type,omitempty"`

	// TTL is how long a response is reused (e.g. "1h")
	TTL string `yaml:"ttl,omitempty"`

	// Address is the redis or memcached server (host:port)
	Address string `yaml:"address,omitempty"`
}

// StorageConfig selects the package store backend
type StorageConfig struct {
	// Type is file or postgres
	Type string `yaml:"type,omitempty"`

	// Path overrides the file store location
	Path string `yaml:"path,omitempty"`
}

// SyncPolicyConfig defines synchronization settings
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// PasswordEnvVar is read when no password file is configured
const PasswordEnvVar = EnvPrefix + "_DATABASE_PASSWORD"

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from ZIM_LIBRARY_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", PasswordEnvVar,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and optional overrides, then validates it.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if loaderCfg.overrides != nil {
		config.applyOverrides(loaderCfg.overrides)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyOverrides(v *viper.Viper) {
	set := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	set("data_dir", &c.DataDir)
	set("server.address", &c.Server.Address)
	set("catalog.url", &c.Catalog.URL)
	set("catalog.timeout", &c.Catalog.Timeout)
	set("storage.type", &c.Storage.Type)
	set("storage.path", &c.Storage.Path)

	if v.IsSet("catalog.file") {
		c.Catalog.File = &FileConfig{Path: v.GetString("catalog.file")}
	}
	if v.IsSet("catalog.cache.type") || v.IsSet("catalog.cache.ttl") || v.IsSet("catalog.cache.address") {
		if c.Catalog.Cache == nil {
			c.Catalog.Cache = &CacheConfig{}
		}
		set("catalog.cache.type", &c.Catalog.Cache.Type)
		set("catalog.cache.ttl", &c.Catalog.Cache.TTL)
		set("catalog.cache.address", &c.Catalog.Cache.Address)
	}
	if v.IsSet("sync.interval") {
		c.SyncPolicy = &SyncPolicyConfig{Interval: v.GetString("sync.interval")}
	}
}

// GetDataDir returns the data directory, defaulting under XDG_DATA_HOME
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return filepath.Join(xdg.DataHome, appDirName)
	}
	return c.DataDir
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	if c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetStorageType returns the store backend, file by default
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetStorePath returns the file store document path
func (c *Config) GetStorePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.GetDataDir(), "library.json")
}

// GetSettingsPath returns the settings document path
func (c *Config) GetSettingsPath() string {
	return filepath.Join(c.GetDataDir(), "settings.json")
}

// GetStatusPath returns the persisted sync status path
func (c *Config) GetStatusPath() string {
	return filepath.Join(c.GetDataDir(), "sync-status.json")
}

// GetSyncInterval returns the minimum interval between background syncs
func (c *Config) GetSyncInterval() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.Interval == "" {
		return DefaultSyncInterval
	}
	d, err := time.ParseDuration(c.SyncPolicy.Interval)
	if err != nil {
		return DefaultSyncInterval
	}
	return d
}

// GetType returns the catalog source type
func (c *CatalogConfig) GetType() string {
	if c.File != nil {
		return CatalogTypeFile
	}
	return CatalogTypeAPI
}

// GetURL returns the catalog endpoint
func (c *CatalogConfig) GetURL() string {
	if c.URL == "" {
		return DefaultCatalogURL
	}
	return c.URL
}

// GetTimeout returns the fetch timeout
func (c *CatalogConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return DefaultCatalogTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return DefaultCatalogTimeout
	}
	return d
}

// GetCacheType returns the response cache backend, memory by default
func (c *CatalogConfig) GetCacheType() string {
	if c.Cache == nil || c.Cache.Type == "" {
		return CacheTypeMemory
	}
	return c.Cache.Type
}

// GetCacheTTL returns the response cache lifetime
func (c *CatalogConfig) GetCacheTTL() time.Duration {
	if c.Cache == nil || c.Cache.TTL == "" {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return DefaultCacheTTL
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.GetStorageType() {
	case StorageTypeFile:
	case StorageTypePostgres:
		if c.Database == nil {
			return fmt.Errorf("storage.type %s requires a database section", StorageTypePostgres)
		}
	default:
		return fmt.Errorf("unsupported storage.type: %s", c.Storage.Type)
	}

	if err := c.Catalog.validate(); err != nil {
		return err
	}

	if c.SyncPolicy != nil {
		if err := validateDuration("syncPolicy.interval", c.SyncPolicy.Interval, true); err != nil {
			return err
		}
	}

	if c.Database != nil && c.Database.ConnMaxLifetime != "" {
		if err := validateDuration("database.connMaxLifetime", c.Database.ConnMaxLifetime, true); err != nil {
			return err
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (c *CatalogConfig) validate() error {
	if c.File != nil {
		if c.File.Path == "" {
			return fmt.Errorf("catalog.file.path is required")
		}
	} else {
		u, err := url.Parse(c.GetURL())
		if err != nil {
			return fmt.Errorf("catalog.url is invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("catalog.url must be http or https, got %q", c.GetURL())
		}
	}

	if err := validateDuration("catalog.timeout", c.Timeout, false); err != nil {
		return err
	}

	if c.Cache == nil {
		return nil
	}
	if err := validateDuration("catalog.cache.ttl", c.Cache.TTL, false); err != nil {
		return err
	}
	switch c.GetCacheType() {
	case CacheTypeMemory, CacheTypeNone:
	case CacheTypeRedis, CacheTypeMemcached:
		if c.Cache.Address == "" {
			return fmt.Errorf("catalog.cache.address is required for cache type %s", c.Cache.Type)
		}
	default:
		return fmt.Errorf("unsupported catalog.cache.type: %s", c.Cache.Type)
	}
	return nil
}

func validateDuration(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}
