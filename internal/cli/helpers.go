package cli

import (
	"fmt"

	"github.com/glorpus-work/bagfetch/internal/logger"
	"github.com/glorpus-work/bagfetch/pkg/config"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
)

// These variables will be set by the main package.
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
)

// loadConfig loads the configuration file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, withCode(ExitInvalid, fmt.Errorf("failed to load config: %w", err))
	}

	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = *OutputFormat
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, withCode(ExitInvalid, fmt.Errorf("invalid configuration: %w", err))
	}

	logger.InitLogger(cfg.Settings.LogLevel, logger.ParseFormat(cfg.Settings.OutputFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path makes LoadConfig report the problem.
		logger.Warn("Failed to get default config path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

// keychainSource resolves which keychain file to use and whether it must
// exist. An explicitly named file must; the shared default may be absent.
func keychainSource(cfg *config.Config, flagPath string) (string, bool, error) {
	if flagPath != "" {
		return flagPath, true, nil
	}
	return cfg.KeychainSource()
}

func loadKeychain(path string, required bool) (*keychain.Keychain, error) {
	var (
		kc  *keychain.Keychain
		err error
	)
	if required {
		kc, err = keychain.Load(path)
	} else {
		kc, err = keychain.LoadOptional(path)
	}
	if err != nil {
		return nil, err
	}
	for _, s := range kc.Skipped() {
		logger.Warn("Ignoring keychain entry", logger.Fields{"path": path, "index": s.Index, "reason": s.Reason})
	}
	return kc, nil
}
