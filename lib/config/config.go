// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/dropship/lib/sealed"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Log compression modes for rotated transfer logs.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// DatabaseFile is the tracking store file name under StateDir.
const DatabaseFile = "dropship.sqlite3"

// Config is the daemon configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// EnvFile is an optional dotenv file whose values are available to
	// ${VAR} expansion. Relative paths resolve against the config file.
	EnvFile string `yaml:"env_file"`

	// AgeIdentityFile holds the x25519 identity used to open sealed
	// credentials.
	AgeIdentityFile string `yaml:"age_identity_file"`

	Upstream UpstreamConfig `yaml:"upstream"`

	StagingRoot  string        `yaml:"staging_root"`
	StateDir     string        `yaml:"state_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`

	Watch            []WatchConfig `yaml:"watch"`
	TargetBuilds     []string      `yaml:"target_builds"`
	ManifestPrefixes []string      `yaml:"manifest_prefixes"`

	// MaxBuildAge skips last-good builds that completed longer ago.
	// Zero disables the bound.
	MaxBuildAge time.Duration `yaml:"max_build_age"`

	Toggles Toggles `yaml:"toggles"`

	Mirrors     []string `yaml:"mirrors"`
	MirrorRetry int      `yaml:"mirror_retry"`

	FTP []FTPConfig `yaml:"ftp"`

	HTTPShares     []string `yaml:"http_shares"`
	HTTPAPIVersion string   `yaml:"http_api_version"`

	ObjectStores []ObjectStoreConfig `yaml:"object_stores"`

	ExternalMirror *ExternalMirrorConfig `yaml:"external_mirror,omitempty"`

	Concurrency ConcurrencyConfig `yaml:"concurrency"`

	LogRetention   int    `yaml:"log_retention"`
	LogCompression string `yaml:"log_compression"`

	// MetricsListen is the address for /metrics and /healthz. Empty
	// disables the listener.
	MetricsListen string `yaml:"metrics_listen"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields an environment section may replace.
type Overrides struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	StagingRoot  string        `yaml:"staging_root"`
	StateDir     string        `yaml:"state_dir"`
	Toggles      *Toggles      `yaml:"toggles,omitempty"`
}

// UpstreamConfig locates the build server.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WatchConfig is one watched project/branch root.
type WatchConfig struct {
	Project   string   `yaml:"project"`
	Branch    string   `yaml:"branch"`
	Filters   []string `yaml:"filters"`
	Retention int      `yaml:"retention"`
}

// Toggles gate the stages of a cycle.
type Toggles struct {
	BuildUpdate  bool `yaml:"build_update"`
	MirrorCopy   bool `yaml:"mirror_copy"`
	FTPUpload    bool `yaml:"ftp_upload"`
	HTTPMirror   bool `yaml:"http_mirror"`
	ObjectUpload bool `yaml:"object_upload"`
	Checksum     bool `yaml:"checksum"`
}

// FTPConfig is one FTP destination.
type FTPConfig struct {
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Directory string `yaml:"directory"`

	// Timeout bounds dialing. Zero means 30 seconds.
	Timeout time.Duration `yaml:"timeout"`

	// InternalSharePath is the staging-side path that maps onto
	// Directory; kept for operators cross-referencing transfer logs.
	InternalSharePath string `yaml:"internal_share_path"`
}

// Address returns host:port for dialing.
func (f FTPConfig) Address() string {
	host := strings.TrimPrefix(strings.TrimPrefix(f.URL, "ftp://"), "ftps://")
	host = strings.TrimSuffix(host, "/")
	port := f.Port
	if port == 0 {
		port = 21
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ObjectStoreConfig is one S3-compatible destination.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// ExternalMirrorConfig configures the secondary mirror loop.
type ExternalMirrorConfig struct {
	Interval         time.Duration         `yaml:"interval"`
	CreateSourceRoot bool                  `yaml:"create_source_root"`
	Entries          []ExternalMirrorEntry `yaml:"entries"`
}

// ExternalMirrorEntry mirrors one source directory.
type ExternalMirrorEntry struct {
	Source             string           `yaml:"source"`
	MirrorDestinations []string         `yaml:"mirror_destinations"`
	FTPDestinations    []FTPDestination `yaml:"ftp_destinations"`
}

// FTPDestination refers to an FTPConfig by id.
type FTPDestination struct {
	FTPID     string `yaml:"ftp_id"`
	Directory string `yaml:"directory"`
}

// ConcurrencyConfig bounds each scheduler.
type ConcurrencyConfig struct {
	Acquire    int `yaml:"acquire"`
	Transfer   int `yaml:"transfer"`
	HTTPUpload int `yaml:"http_upload"`
}

// Default returns the configuration the file is decoded on top of.
func Default() *Config {
	return &Config{
		Environment:    Development,
		PollInterval:   30 * time.Minute,
		Upstream:       UpstreamConfig{Timeout: time.Minute},
		TargetBuilds:   []string{"Packages", "Classic", "DB Utility"},
		Toggles:        Toggles{BuildUpdate: true, MirrorCopy: true, Checksum: true},
		MirrorRetry:    10,
		HTTPAPIVersion: "v1",
		Concurrency:    ConcurrencyConfig{Acquire: 4, Transfer: 10, HTTPUpload: 4},
		LogRetention:   30,
		LogCompression: CompressionZstd,
	}
}

// Load loads configuration from the file named by DROPSHIP_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("DROPSHIP_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("DROPSHIP_CONFIG environment variable not set; " +
			"set it to the path of your dropship.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The result
// is not validated; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.decodeFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()

	fileVars := map[string]string{}
	if cfg.EnvFile != "" {
		envPath := expandVars(cfg.EnvFile, nil)
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(filepath.Dir(path), envPath)
		}
		values, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("reading env_file %s: %w", envPath, err)
		}
		fileVars = values
	}
	cfg.expandVariables(fileVars)
	cfg.normalize()

	if err := cfg.openSealed(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.PollInterval != 0 {
		c.PollInterval = overrides.PollInterval
	}
	if overrides.StagingRoot != "" {
		c.StagingRoot = overrides.StagingRoot
	}
	if overrides.StateDir != "" {
		c.StateDir = overrides.StateDir
	}
	// Toggles are booleans, so a present section replaces all of them.
	if overrides.Toggles != nil {
		c.Toggles = *overrides.Toggles
	}
}

func (c *Config) expandVariables(fileVars map[string]string) {
	c.StateDir = expandVars(c.StateDir, fileVars)
	vars := make(map[string]string, len(fileVars)+1)
	maps.Copy(vars, fileVars)
	vars["DROPSHIP_STATE"] = c.StateDir

	c.StagingRoot = expandVars(c.StagingRoot, vars)
	c.AgeIdentityFile = expandVars(c.AgeIdentityFile, vars)
	c.Upstream.URL = expandVars(c.Upstream.URL, vars)
	for i := range c.Mirrors {
		c.Mirrors[i] = expandVars(c.Mirrors[i], vars)
	}
	for i := range c.HTTPShares {
		c.HTTPShares[i] = expandVars(c.HTTPShares[i], vars)
	}
	for i := range c.FTP {
		ftp := &c.FTP[i]
		ftp.URL = expandVars(ftp.URL, vars)
		ftp.User = expandVars(ftp.User, vars)
		ftp.Password = expandVars(ftp.Password, vars)
		ftp.Directory = expandVars(ftp.Directory, vars)
		ftp.InternalSharePath = expandVars(ftp.InternalSharePath, vars)
	}
	for i := range c.ObjectStores {
		store := &c.ObjectStores[i]
		store.Endpoint = expandVars(store.Endpoint, vars)
		store.AccessKey = expandVars(store.AccessKey, vars)
		store.SecretKey = expandVars(store.SecretKey, vars)
	}
	if c.ExternalMirror != nil {
		for i := range c.ExternalMirror.Entries {
			entry := &c.ExternalMirror.Entries[i]
			entry.Source = expandVars(entry.Source, vars)
			for j := range entry.MirrorDestinations {
				entry.MirrorDestinations[j] = expandVars(entry.MirrorDestinations[j], vars)
			}
		}
	}
}

// normalize replaces non-positive counts with their defaults.
func (c *Config) normalize() {
	defaults := Default()
	if c.MirrorRetry <= 0 {
		c.MirrorRetry = defaults.MirrorRetry
	}
	if c.Concurrency.Acquire <= 0 {
		c.Concurrency.Acquire = defaults.Concurrency.Acquire
	}
	if c.Concurrency.Transfer <= 0 {
		c.Concurrency.Transfer = defaults.Concurrency.Transfer
	}
	if c.Concurrency.HTTPUpload <= 0 {
		c.Concurrency.HTTPUpload = defaults.Concurrency.HTTPUpload
	}
	if c.LogRetention <= 0 {
		c.LogRetention = defaults.LogRetention
	}
	if c.HTTPAPIVersion == "" {
		c.HTTPAPIVersion = defaults.HTTPAPIVersion
	}
	if c.LogCompression == "" {
		c.LogCompression = defaults.LogCompression
	}
	if c.ExternalMirror != nil && c.ExternalMirror.Interval <= 0 {
		c.ExternalMirror.Interval = c.PollInterval
	}
}

func (c *Config) openSealed() error {
	var identity string
	if c.AgeIdentityFile != "" {
		key, err := sealed.ReadIdentityFile(c.AgeIdentityFile)
		if err != nil {
			return err
		}
		identity = key
	}

	open := func(field string, value *string) error {
		plaintext, err := sealed.Open(*value, identity)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*value = plaintext
		return nil
	}
	for i := range c.FTP {
		if err := open(fmt.Sprintf("ftp[%s].password", c.FTP[i].ID), &c.FTP[i].Password); err != nil {
			return err
		}
	}
	for i := range c.ObjectStores {
		if err := open(fmt.Sprintf("object_stores[%d].secret_key", i), &c.ObjectStores[i].SecretKey); err != nil {
			return err
		}
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. The process
// environment is consulted before vars.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value := os.Getenv(name); value != "" {
			return value
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.StagingRoot == "" {
		errs = append(errs, fmt.Errorf("staging_root is required"))
	}
	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if len(c.Watch) == 0 && (c.Toggles.BuildUpdate || c.Toggles.FTPUpload) {
		errs = append(errs, fmt.Errorf("watch must list at least one branch when build_update or ftp_upload is enabled"))
	}
	for i, watch := range c.Watch {
		if watch.Project == "" {
			errs = append(errs, fmt.Errorf("watch[%d].project is required", i))
		}
		if watch.Branch == "" {
			errs = append(errs, fmt.Errorf("watch[%d].branch is required", i))
		}
		if watch.Retention < 1 {
			errs = append(errs, fmt.Errorf("watch[%d].retention must be at least 1, got %d", i, watch.Retention))
		}
	}
	switch c.LogCompression {
	case CompressionNone, CompressionZstd, CompressionLZ4:
	default:
		errs = append(errs, fmt.Errorf("log_compression must be one of: none, zstd, lz4"))
	}
	if c.ExternalMirror != nil {
		for i, entry := range c.ExternalMirror.Entries {
			if entry.Source == "" {
				errs = append(errs, fmt.Errorf("external_mirror.entries[%d].source is required", i))
			}
			for _, destination := range entry.FTPDestinations {
				if _, ok := c.FTPByID(destination.FTPID); !ok {
					errs = append(errs, fmt.Errorf("external_mirror.entries[%d]: unknown ftp id %q", i, destination.FTPID))
				}
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// FTPByID returns the FTP destination with the given id.
func (c *Config) FTPByID(id string) (FTPConfig, bool) {
	for _, ftp := range c.FTP {
		if strings.EqualFold(ftp.ID, id) {
			return ftp, true
		}
	}
	return FTPConfig{}, false
}

// DatabasePath returns the tracking store path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir, DatabaseFile)
}

// LogDir returns the transfer log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// EnsurePaths creates the staging root, state dir and log dir.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.StagingRoot, c.StateDir, c.LogDir()} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
