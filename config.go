package presscache

import "time"

const (
	// MinTTLSeconds is the floor enforced when settings are persisted.
	MinTTLSeconds = 60
	// DefaultTTLSeconds is the freshness window used when none is set.
	DefaultTTLSeconds = 3600
)

// Config is an immutable snapshot of the cache settings. It is loaded once
// per request (or per invalidation) from a SettingsSource and passed
// explicitly; components never reach for global state.
type Config struct {
	Enabled     bool
	TTLSeconds  int
	GzipEnabled bool
	// ExclusionURLPatterns are case-insensitive regular expressions
	// matched against the raw request path.
	ExclusionURLPatterns []string
	// ExclusionCookiePrefixes exclude any request carrying a cookie whose
	// name starts with one of these.
	ExclusionCookiePrefixes []string
	// ExclusionUserAgentSubstrings exclude any request whose User-Agent
	// contains one of these (case-insensitive).
	ExclusionUserAgentSubstrings []string
	InvalidateOnContentChange    bool
	InvalidateOnCommentChange    bool
}

// TTL returns the freshness window as a duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		TTLSeconds:                DefaultTTLSeconds,
		GzipEnabled:               true,
		InvalidateOnContentChange: true,
		InvalidateOnCommentChange: true,
	}
}

// SettingsSource provides the current cache settings. Current is called
// once per request; implementations decide whether that is a database
// read or a static value.
type SettingsSource interface {
	Current() Config
}

type staticSettings struct {
	cfg Config
}

func (s staticSettings) Current() Config {
	return s.cfg
}

// Static wraps a fixed Config as a SettingsSource.
func Static(cfg Config) SettingsSource {
	return staticSettings{cfg: cfg}
}
