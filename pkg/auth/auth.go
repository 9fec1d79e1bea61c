// Package auth applies keychain credentials to outgoing HTTP requests.
package auth

import "net/http"

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// CookieAuth represents a session cookie presented with every request.
type CookieAuth struct {
	Name  string
	Value string
}

// Type represents the type of authentication. The values match the
// auth_type strings used in keychain files.
type Type string

// Authentication types.
const (
	// BasicAuthType represents HTTP Basic Authentication.
	BasicAuthType Type = "http-basic"
	// BearerAuthType represents Bearer token authentication.
	BearerAuthType Type = "http-bearer"
	// CookieAuthType represents cookie-based authentication.
	CookieAuthType Type = "http-cookie"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns the authentication type (BasicAuthType).
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns the authentication type (BearerAuthType).
func (b BearerAuth) Type() Type { return BearerAuthType }

// Apply adds the cookie to the request, keeping any cookies already set.
func (c CookieAuth) Apply(req *http.Request) error {
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	return nil
}

// Type returns the authentication type (CookieAuthType).
func (c CookieAuth) Type() Type { return CookieAuthType }

// Strip removes every credential an Authenticator may have added.
func Strip(req *http.Request) {
	req.Header.Del("Authorization")
	req.Header.Del("Cookie")
}
