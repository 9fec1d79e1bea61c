package transport

import "time"

// Config holds the tunables shared by the built-in transports.
type Config struct {
	ChunkSize        int
	MaxRedirects     int
	ConnectTimeout   time.Duration
	FirstByteTimeout time.Duration
	ChunkTimeout     time.Duration
	UserAgent        string

	FTPAnonymousUser     string
	FTPAnonymousPassword string
	FTPDisableEPSV       bool
}

// Default values.
const (
	DefaultChunkSize            = 64 * 1024
	DefaultMaxRedirects         = 10
	DefaultConnectTimeout       = 30 * time.Second
	DefaultFirstByteTimeout     = 60 * time.Second
	DefaultChunkTimeout         = 60 * time.Second
	DefaultUserAgent            = "bagfetch/1.0"
	DefaultFTPAnonymousUser     = "anonymous"
	DefaultFTPAnonymousPassword = "anonymous@"
)

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            DefaultChunkSize,
		MaxRedirects:         DefaultMaxRedirects,
		ConnectTimeout:       DefaultConnectTimeout,
		FirstByteTimeout:     DefaultFirstByteTimeout,
		ChunkTimeout:         DefaultChunkTimeout,
		UserAgent:            DefaultUserAgent,
		FTPAnonymousUser:     DefaultFTPAnonymousUser,
		FTPAnonymousPassword: DefaultFTPAnonymousPassword,
	}
}

// WithDefaults fills zero fields from DefaultConfig. A zero timeout means
// the default, not "no timeout"; a negative MaxRedirects disables redirects.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	switch {
	case c.MaxRedirects == 0:
		c.MaxRedirects = d.MaxRedirects
	case c.MaxRedirects < 0:
		c.MaxRedirects = 0
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.FirstByteTimeout <= 0 {
		c.FirstByteTimeout = d.FirstByteTimeout
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.FTPAnonymousUser == "" {
		c.FTPAnonymousUser = d.FTPAnonymousUser
	}
	if c.FTPAnonymousPassword == "" {
		c.FTPAnonymousPassword = d.FTPAnonymousPassword
	}
	return c
}
