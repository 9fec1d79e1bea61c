package keychain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/glorpus-work/bagfetch/pkg/auth"
)

// AuthType is the credential kind of a keychain entry.
type AuthType string

// Keychain auth types.
const (
	HTTPBasic  AuthType = "http-basic"
	HTTPBearer AuthType = "http-bearer"
	HTTPCookie AuthType = "http-cookie"
	FTPBasic   AuthType = "ftp-basic"
)

// Parameter names used in auth_params.
const (
	ParamUsername    = "username"
	ParamPassword    = "password"
	ParamToken       = "token"
	ParamCookieName  = "cookie_name"
	ParamCookieValue = "cookie_value"
)

var requiredParams = map[AuthType][]string{
	HTTPBasic:  {ParamUsername, ParamPassword},
	HTTPBearer: {ParamToken},
	HTTPCookie: {ParamCookieName, ParamCookieValue},
	FTPBasic:   {ParamUsername, ParamPassword},
}

// HTTPTypes lists the auth types an HTTP transport can present.
var HTTPTypes = []AuthType{HTTPBasic, HTTPBearer, HTTPCookie}

// FTPTypes lists the auth types an FTP transport can present.
var FTPTypes = []AuthType{FTPBasic}

// Entry is one credential candidate.
type Entry struct {
	URIPattern string
	AuthType   AuthType
	Params     map[string]string
}

// Validate reports why the entry cannot be used, or nil.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.URIPattern) == "" {
		return fmt.Errorf("missing uri")
	}
	if e.AuthType == "" {
		return fmt.Errorf("missing auth_type")
	}
	required, ok := requiredParams[e.AuthType]
	if !ok {
		return fmt.Errorf("unsupported auth_type %q", e.AuthType)
	}
	for _, name := range required {
		if _, ok := e.Params[name]; !ok {
			return fmt.Errorf("auth_type %s requires auth_params.%s", e.AuthType, name)
		}
	}
	return nil
}

// Param returns a named auth parameter.
func (e Entry) Param(name string) string {
	return e.Params[name]
}

// Username returns the username for basic entries.
func (e Entry) Username() string { return e.Params[ParamUsername] }

// Password returns the password for basic entries.
func (e Entry) Password() string { return e.Params[ParamPassword] }

// Is reports whether the entry has one of the given types.
func (e Entry) Is(types ...AuthType) bool {
	for _, t := range types {
		if e.AuthType == t {
			return true
		}
	}
	return false
}

// Authenticator converts an HTTP entry into a request authenticator.
func (e Entry) Authenticator() (auth.Authenticator, bool) {
	switch e.AuthType {
	case HTTPBasic:
		return auth.BasicAuth{Username: e.Username(), Password: e.Password()}, true
	case HTTPBearer:
		return auth.BearerAuth{Token: e.Param(ParamToken)}, true
	case HTTPCookie:
		return auth.CookieAuth{Name: e.Param(ParamCookieName), Value: e.Param(ParamCookieValue)}, true
	}
	return nil, false
}

// Equal compares two entries field by field.
func (e Entry) Equal(other Entry) bool {
	if e.URIPattern != other.URIPattern || e.AuthType != other.AuthType || len(e.Params) != len(other.Params) {
		return false
	}
	for k, v := range e.Params {
		if ov, ok := other.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String describes the entry without revealing secrets.
func (e Entry) String() string {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s %s [%s]", e.URIPattern, e.AuthType, strings.Join(keys, ","))
}
