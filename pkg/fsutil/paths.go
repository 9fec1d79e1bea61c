package fsutil

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the name of the application used in paths.
	AppName = "bagfetch"

	// KeychainEnvVar overrides the default keychain location.
	KeychainEnvVar = "BDBAG_KEYCHAIN_FILE"
)

// GetConfigDir returns the platform-specific configuration directory for the application.
// On Linux: $XDG_CONFIG_HOME/bagfetch or ~/.config/bagfetch
// On macOS: ~/Library/Application Support/bagfetch
// On Windows: %AppData%\bagfetch
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// GetDefaultKeychainPath returns the keychain path shared with other bag
// tools: $BDBAG_KEYCHAIN_FILE when set, otherwise ~/.bdbag/keychain.json.
func GetDefaultKeychainPath() (string, error) {
	if p := os.Getenv(KeychainEnvVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bdbag", "keychain.json"), nil
}
