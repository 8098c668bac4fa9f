package presscache

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// Reason says why a request was excluded from caching.
type Reason string

const (
	// Caching is turned off in the settings.
	ReasonDisabled Reason = "disabled"

	// The caller has an active session (logged in, post password,
	// or remembered commenter).
	ReasonSession Reason = "session"

	// The request targets an administrative surface.
	ReasonAdmin Reason = "admin"

	// The request is a feed, trackback, or search result.
	ReasonFeed Reason = "feed"

	// The request method is not GET.
	ReasonMethod Reason = "method"

	// The pipeline flagged this request as do-not-cache.
	ReasonNoCacheFlag Reason = "no-cache-flag"

	// The request carries a query string.
	ReasonQueryString Reason = "query-string"

	// The path matches a configured exclusion pattern.
	ReasonURLExcluded Reason = "url-excluded"

	// A cookie name matches a configured exclusion prefix.
	ReasonCookieExcluded Reason = "cookie-excluded"

	// The User-Agent matches a configured exclusion substring.
	ReasonUserAgentExcluded Reason = "user-agent-excluded"

	// The request targets a dynamic e-commerce surface.
	ReasonDynamicPage Reason = "dynamic-page"
)

var (
	sessionCookiePrefixes = []string{
		"wordpress_logged_in_",
		"wp-postpass_",
		"comment_author_",
	}
	adminPathPrefixes = []string{
		"/wp-admin",
		"/admin",
	}
	dynamicPathPrefixes = []string{
		"/cart",
		"/checkout",
		"/my-account",
		"/account",
	}
)

type flagsCtxKey struct{}

type requestFlags struct {
	noCache bool
}

// WithCacheFlags attaches the per-request cache flags to the request.
// The middleware does this before running the pipeline, so handlers can
// call DoNotCache and the capture-time re-classification will see it.
func WithCacheFlags(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(flagsCtxKey{}).(*requestFlags); ok {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), flagsCtxKey{}, &requestFlags{}))
}

// DoNotCache marks the current request as not cachable. It is a no-op
// outside the cache middleware.
func DoNotCache(r *http.Request) {
	if f, ok := r.Context().Value(flagsCtxKey{}).(*requestFlags); ok {
		f.noCache = true
	}
}

func noCacheFlagged(r *http.Request) bool {
	f, ok := r.Context().Value(flagsCtxKey{}).(*requestFlags)
	return ok && f.noCache
}

// IsCachable decides whether a request may be served from or written to
// the cache. Checks short-circuit in priority order; anything not
// explicitly excluded is cachable. It has no side effects and must be
// re-evaluated (not cached) by callers, since the no-cache flag can be
// set at any point in the pipeline.
func IsCachable(r *http.Request, cfg Config) (bool, Reason) {
	if !cfg.Enabled {
		return false, ReasonDisabled
	}
	if hasCookieWithPrefix(r, sessionCookiePrefixes) {
		return false, ReasonSession
	}
	path := r.URL.Path
	if hasAnyPrefix(path, adminPathPrefixes) {
		return false, ReasonAdmin
	}
	if isFeedOrSearch(path) {
		return false, ReasonFeed
	}
	if r.Method != http.MethodGet {
		return false, ReasonMethod
	}
	if noCacheFlagged(r) {
		return false, ReasonNoCacheFlag
	}
	if r.URL.RawQuery != "" {
		return false, ReasonQueryString
	}
	for _, pattern := range cfg.ExclusionURLPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			// a broken pattern cannot exclude anything
			continue
		}
		if re.MatchString(path) {
			return false, ReasonURLExcluded
		}
	}
	if hasCookieWithPrefix(r, cfg.ExclusionCookiePrefixes) {
		return false, ReasonCookieExcluded
	}
	if ua := strings.ToLower(r.UserAgent()); ua != "" {
		for _, sub := range cfg.ExclusionUserAgentSubstrings {
			if sub != "" && strings.Contains(ua, strings.ToLower(sub)) {
				return false, ReasonUserAgentExcluded
			}
		}
	}
	if hasAnyPrefix(path, dynamicPathPrefixes) {
		return false, ReasonDynamicPage
	}
	return true, ""
}

func hasCookieWithPrefix(r *http.Request, prefixes []string) bool {
	if len(prefixes) == 0 {
		return false
	}
	for _, c := range r.Cookies() {
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(c.Name, prefix) {
				return true
			}
		}
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isFeedOrSearch(path string) bool {
	if strings.HasSuffix(path, "/feed") || strings.HasSuffix(path, "/feed/") {
		return true
	}
	if strings.Contains(path, "/trackback") {
		return true
	}
	return path == "/search" || strings.HasPrefix(path, "/search/")
}
