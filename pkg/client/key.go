package client

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/gofetch/fetch/pkg/dns"
)

// Key identifies a pooled session. Targets that differ only in path, query
// or fragment share a session; targets that differ in scheme or authority
// never do. Scheme and authority are lower-cased, so the key is usable as a
// map key directly.
type Key struct {
	Scheme    string
	Authority string // host[:port] as it appears in the target
}

// KeyFromURL derives the pool key of u.
func KeyFromURL(u *url.URL) (Key, error) {
	if u.Hostname() == "" {
		return Key{}, errors.WithMessagef(dns.ErrMissingHost, "target %q", u)
	}
	return Key{
		Scheme:    strings.ToLower(u.Scheme),
		Authority: strings.ToLower(u.Host),
	}, nil
}

// URL reconstructs a dialable target from the key.
func (k Key) URL() *url.URL {
	return &url.URL{Scheme: k.Scheme, Host: k.Authority}
}

func (k Key) String() string {
	return k.Scheme + "://" + k.Authority
}
