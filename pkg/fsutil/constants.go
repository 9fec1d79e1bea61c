package fsutil

// File and directory permission constants.
const (
	// FileModeDefault is used for fetched payload files: -rw-r--r--.
	FileModeDefault = 0o644
	// FileModeSecure is used for files that may hold credentials: -rw-------.
	FileModeSecure = 0o600

	// DirModeDefault is used for directories created under the destination root.
	DirModeDefault = 0o755
	// DirModePrivate is used for configuration directories.
	DirModePrivate = 0o700
)

// PartSuffix marks a transfer that has not completed yet.
const PartSuffix = ".part"
