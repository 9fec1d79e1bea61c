// Package config provides configuration management for bagfetch.
// It handles loading, validating and saving the settings file and adapts
// the settings to the types the fetcher and transports consume. Values
// missing from the file keep their defaults, and command-line flags
// override both.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/bagfetch/pkg/download"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
	"github.com/glorpus-work/bagfetch/pkg/transport"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// FTPSettings holds FTP-specific settings.
type FTPSettings struct {
	// AnonymousPassword is sent when no credentials are known.
	AnonymousPassword string `yaml:"anonymous_password"`
	// DisableEPSV forces PASV for servers that mishandle EPSV.
	DisableEPSV bool `yaml:"disable_epsv"`
}

// Settings represents general application settings.
type Settings struct {
	// Fetch settings
	DestDir      string `yaml:"dest_dir,omitempty"`
	Parallel     int    `yaml:"parallel"`
	SkipExisting bool   `yaml:"skip_existing"`

	// Retry settings
	Retries        int           `yaml:"retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`

	// Transfer settings
	ChunkSize        int           `yaml:"chunk_size"`
	MaxRedirects     int           `yaml:"max_redirects"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	FirstByteTimeout time.Duration `yaml:"first_byte_timeout"`
	ChunkTimeout     time.Duration `yaml:"chunk_timeout"`
	UserAgent        string        `yaml:"user_agent"`

	// Credentials
	KeychainFile string `yaml:"keychain_file,omitempty"`

	FTP FTPSettings `yaml:"ftp"`

	// Output settings
	OutputFormat string `yaml:"output_format"` // text, json
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
}

// Default configuration values.
const (
	// DefaultRetries is the default number of attempts per entry.
	DefaultRetries = 5

	// DefaultRetryBaseDelay is the delay before the first retry.
	DefaultRetryBaseDelay = time.Second

	// DefaultRetryMaxDelay caps the delay between attempts.
	DefaultRetryMaxDelay = 30 * time.Second

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	tc := transport.DefaultConfig()
	return &Config{
		Settings: Settings{
			Parallel:         download.DefaultWorkers(),
			Retries:          DefaultRetries,
			RetryBaseDelay:   DefaultRetryBaseDelay,
			RetryMaxDelay:    DefaultRetryMaxDelay,
			ChunkSize:        tc.ChunkSize,
			MaxRedirects:     tc.MaxRedirects,
			ConnectTimeout:   tc.ConnectTimeout,
			FirstByteTimeout: tc.FirstByteTimeout,
			ChunkTimeout:     tc.ChunkTimeout,
			UserAgent:        tc.UserAgent,
			FTP: FTPSettings{
				AnonymousPassword: tc.FTPAnonymousPassword,
			},
			OutputFormat: "text",
			LogLevel:     "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader. Keys absent
// from the document keep their default values.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}

	return config, nil
}

// SaveConfig saves configuration to a file, replacing it atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}

	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	return validateSettings(c.Settings)
}

func validateSettings(s Settings) error {
	if s.Parallel < 1 {
		return errors.ErrParallelInvalid
	}
	if s.Retries < 1 {
		return errors.ErrRetriesInvalid
	}
	if s.ChunkSize <= 0 {
		return errors.ErrChunkSizeInvalid
	}
	if s.MaxRedirects < 0 {
		return errors.ErrMaxRedirectsNegative
	}
	for _, d := range []time.Duration{s.RetryBaseDelay, s.RetryMaxDelay, s.ConnectTimeout, s.FirstByteTimeout, s.ChunkTimeout} {
		if d < 0 {
			return errors.ErrTimeoutNegative
		}
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return errors.ErrInvalidOutputFormatWithDetails(s.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errors.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// KeychainPath returns the keychain file to load: $BDBAG_KEYCHAIN_FILE when
// set, then keychain_file from the settings, then ~/.bdbag/keychain.json.
func (c *Config) KeychainPath() (string, error) {
	p, _, err := c.KeychainSource()
	return p, err
}

// KeychainSource is KeychainPath plus whether the file was named explicitly,
// by the environment or the settings. Only the shared default may be absent.
func (c *Config) KeychainSource() (string, bool, error) {
	if p := os.Getenv(fsutil.KeychainEnvVar); p != "" {
		return p, true, nil
	}
	if c.Settings.KeychainFile != "" {
		return c.Settings.KeychainFile, true, nil
	}
	p, err := fsutil.GetDefaultKeychainPath()
	return p, false, err
}

// ToTransportConfig adapts the settings to the transport tunables.
func (c *Config) ToTransportConfig() transport.Config {
	s := c.Settings
	redirects := s.MaxRedirects
	if redirects == 0 {
		// Zero means "follow none" here but "default" in transport.Config.
		redirects = -1
	}
	return transport.Config{
		ChunkSize:            s.ChunkSize,
		MaxRedirects:         redirects,
		ConnectTimeout:       s.ConnectTimeout,
		FirstByteTimeout:     s.FirstByteTimeout,
		ChunkTimeout:         s.ChunkTimeout,
		UserAgent:            s.UserAgent,
		FTPAnonymousPassword: s.FTP.AnonymousPassword,
		FTPDisableEPSV:       s.FTP.DisableEPSV,
	}
}

// ToRetryPolicy adapts the retry settings.
func (c *Config) ToRetryPolicy() transport.RetryPolicy {
	p := transport.DefaultRetryPolicy()
	p.MaxAttempts = c.Settings.Retries
	p.BaseDelay = c.Settings.RetryBaseDelay
	p.MaxDelay = c.Settings.RetryMaxDelay
	return p
}

// applyDefaults fills in values a document may have zeroed explicitly.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.Parallel == 0 {
		c.Settings.Parallel = defaults.Settings.Parallel
	}
	if c.Settings.Retries == 0 {
		c.Settings.Retries = defaults.Settings.Retries
	}
	if c.Settings.ChunkSize == 0 {
		c.Settings.ChunkSize = defaults.Settings.ChunkSize
	}
	if c.Settings.UserAgent == "" {
		c.Settings.UserAgent = defaults.Settings.UserAgent
	}
	if c.Settings.FTP.AnonymousPassword == "" {
		c.Settings.FTP.AnonymousPassword = defaults.Settings.FTP.AnonymousPassword
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}
