package download

import (
	"github.com/glorpus-work/bagfetch/pkg/file"
	"github.com/glorpus-work/bagfetch/pkg/ftp"
	"github.com/glorpus-work/bagfetch/pkg/http"
	"github.com/glorpus-work/bagfetch/pkg/transport"
)

// DefaultRegistry returns a registry with the built-in transports: http,
// https, ftp, ftps and file. Callers may register more schemes before
// handing it to NewFetcher.
func DefaultRegistry() *transport.Registry {
	r := transport.NewRegistry()
	builtins := map[string]transport.Factory{
		"http":  http.Factory,
		"https": http.Factory,
		"ftp":   ftp.Factory,
		"ftps":  ftp.Factory,
		"file":  file.Factory,
	}
	for scheme, f := range builtins {
		// A fresh registry cannot reject these.
		_ = r.Register(scheme, f)
	}
	return r
}
