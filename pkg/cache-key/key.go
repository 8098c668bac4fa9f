package cachekey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

var ErrorNoHost = fmt.Errorf("Cannot derive identity without a host")

// Identity is the normalized identity of a page request.
// Two identities address the same cache entry iff their String() forms are
// byte-identical. No canonicalization of trailing slashes, case, or query
// parameter order is performed.
type Identity struct {
	Scheme   string
	Host     string
	Path     string
	RawQuery string
}

// String returns the canonical form used for key derivation:
// "scheme://host path[?query]".
func (id Identity) String() string {
	s := id.Scheme + "://" + id.Host + " " + id.Path
	if id.RawQuery != "" {
		s += "?" + id.RawQuery
	}
	return s
}

// IdentityFromRequest derives the identity of an incoming request.
// The scheme is https when TLS is in use or when a proxy in front of us
// says so via X-Forwarded-Proto.
func IdentityFromRequest(r *http.Request) Identity {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return Identity{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
}

// IdentityFromURL derives the identity for a resolved URL, without any
// ambient request context. Relative URLs are resolved against the site
// base URL, so invalidation can work on path-only permalinks.
func IdentityFromURL(raw string, site url.URL) (Identity, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, err
	}
	resolved := site.ResolveReference(u)
	if resolved.Host == "" {
		return Identity{}, ErrorNoHost
	}
	scheme := resolved.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return Identity{
		Scheme:   scheme,
		Host:     resolved.Host,
		Path:     resolved.Path,
		RawQuery: resolved.RawQuery,
	}, nil
}

// Paths holds the two artifact paths for one cache key.
type Paths struct {
	Plain string
	Gz    string
}

// Keyer derives cache keys and artifact paths below a cache root directory.
type Keyer struct {
	// Root is the cache root directory. All derived paths are descendants.
	Root string
}

func NewKeyer(root string) Keyer {
	return Keyer{Root: filepath.Clean(root)}
}

// Key returns the fixed-length fingerprint for an identity.
// The key addresses storage only, it is never used for authentication
// or integrity.
func (k Keyer) Key(id Identity) string {
	sum := md5.Sum([]byte(id.String()))
	return hex.EncodeToString(sum[:])
}

// Paths maps a key to its sharded artifact paths. The shard directory is
// the first two hex characters of the key, which bounds directory fan-out.
// It returns ok=false if the resulting path would not be a descendant of
// the cache root.
func (k Keyer) Paths(key string) (Paths, bool) {
	if len(key) < 3 {
		return Paths{}, false
	}
	plain := filepath.Join(k.Root, key[:2], key+".html")
	if !strings.HasPrefix(plain, k.Root+string(filepath.Separator)) {
		return Paths{}, false
	}
	return Paths{Plain: plain, Gz: plain + ".gz"}, true
}
