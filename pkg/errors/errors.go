// Package errors defines the error vocabulary shared by the bagfetch packages:
// sentinel errors for configuration, manifest and keychain problems, the closed
// set of fetch error kinds, and small helpers for adding context to errors.
package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigFileRename  = fmt.Errorf("failed to replace config file")
	ErrConfigMarshal     = fmt.Errorf("failed to marshal config")
	ErrUnknownConfigKey  = fmt.Errorf("unknown configuration key")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")

	ErrParallelInvalid      = fmt.Errorf("parallel must be at least 1")
	ErrRetriesInvalid       = fmt.Errorf("retries must be at least 1")
	ErrChunkSizeInvalid     = fmt.Errorf("chunk_size must be positive")
	ErrMaxRedirectsNegative = fmt.Errorf("max_redirects cannot be negative")
	ErrTimeoutNegative      = fmt.Errorf("timeouts cannot be negative")
	ErrInvalidLogLevel      = fmt.Errorf("invalid log level")
	ErrInvalidOutputFormat  = fmt.Errorf("invalid output format")

	// Manifest errors.
	ErrManifestParse       = fmt.Errorf("failed to parse manifest")
	ErrManifestEntry       = fmt.Errorf("invalid manifest entry")
	ErrDuplicateOutputPath = fmt.Errorf("duplicate output path in manifest")
	ErrFetchFileNotFound   = fmt.Errorf("bag has no fetch.txt")

	// Keychain errors.
	ErrKeychainRead  = fmt.Errorf("failed to read keychain")
	ErrKeychainParse = fmt.Errorf("failed to parse keychain")

	// Registry errors.
	ErrRegistryFrozen = fmt.Errorf("transport registry is frozen")
	ErrEmptyScheme    = fmt.Errorf("scheme cannot be empty")
	ErrNilFactory     = fmt.Errorf("transport factory cannot be nil")
	ErrSchemeExists   = fmt.Errorf("scheme already registered")

	// Fetch errors.
	ErrInvalidPath       = fmt.Errorf("invalid path")
	ErrFileHashMismatch  = fmt.Errorf("file hash mismatch")
	ErrFileSizeMismatch  = fmt.Errorf("file size mismatch")
	ErrUnknownAlgorithm  = fmt.Errorf("unknown digest algorithm")
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrTooManyRedirects  = fmt.Errorf("too many redirects")
	ErrTransferTruncated = fmt.Errorf("transfer truncated")
	ErrChunkTimeout      = fmt.Errorf("no data received within chunk timeout")
	ErrNotRegularFile    = fmt.Errorf("not a regular file")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrInvalidOutputFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidOutputFormat, format)
}

// ErrManifestEntryWithIndex wraps ErrManifestEntry with the entry position and reason.
func ErrManifestEntryWithIndex(i int, reason string) error {
	return fmt.Errorf("entry %d: %s: %w", i, reason, ErrManifestEntry)
}

// ErrDuplicateOutputPathWithName wraps ErrDuplicateOutputPath with the offending path.
func ErrDuplicateOutputPathWithName(path string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateOutputPath, path)
}

// ErrUnknownAlgorithmWithName wraps ErrUnknownAlgorithm with the requested algorithm.
func ErrUnknownAlgorithmWithName(alg string) error {
	return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
}

// ErrSchemeRegisteredWithName wraps ErrSchemeExists with the scheme.
func ErrSchemeRegisteredWithName(scheme string) error {
	return fmt.Errorf("%w: %s", ErrSchemeExists, scheme)
}
