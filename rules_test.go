package presscache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifierReasons(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusionURLPatterns = []string{"^/private/", "\\.xml$"}
	cfg.ExclusionCookiePrefixes = []string{"woocommerce_"}
	cfg.ExclusionUserAgentSubstrings = []string{"Pingdom"}

	makeReq := func(method, target string, mod func(*http.Request)) *http.Request {
		r := httptest.NewRequest(method, target, nil)
		if mod != nil {
			mod(r)
		}
		return r
	}

	tests := []struct {
		name   string
		req    *http.Request
		want   bool
		reason Reason
	}{
		{"plain page", makeReq("GET", "/about/", nil), true, ""},
		{"root", makeReq("GET", "/", nil), true, ""},
		{"session cookie", makeReq("GET", "/", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "wordpress_logged_in_xyz", Value: "1"})
		}), false, ReasonSession},
		{"post-password cookie", makeReq("GET", "/", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "wp-postpass_abc", Value: "1"})
		}), false, ReasonSession},
		{"admin surface", makeReq("GET", "/wp-admin/options.php", nil), false, ReasonAdmin},
		{"feed", makeReq("GET", "/news/feed/", nil), false, ReasonFeed},
		{"trackback", makeReq("GET", "/posts/1/trackback/", nil), false, ReasonFeed},
		{"search", makeReq("GET", "/search/cats", nil), false, ReasonFeed},
		{"post method", makeReq("POST", "/about/", nil), false, ReasonMethod},
		{"query string", makeReq("GET", "/about/?utm_source=x", nil), false, ReasonQueryString},
		{"excluded url", makeReq("GET", "/private/report", nil), false, ReasonURLExcluded},
		{"excluded url case-insensitive", makeReq("GET", "/PRIVATE/report", nil), false, ReasonURLExcluded},
		{"excluded url suffix", makeReq("GET", "/sitemap.xml", nil), false, ReasonURLExcluded},
		{"excluded cookie", makeReq("GET", "/", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "woocommerce_items_in_cart", Value: "2"})
		}), false, ReasonCookieExcluded},
		{"excluded user agent", makeReq("GET", "/", func(r *http.Request) {
			r.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pingdom-bot)")
		}), false, ReasonUserAgentExcluded},
		{"cart", makeReq("GET", "/cart/", nil), false, ReasonDynamicPage},
		{"checkout", makeReq("GET", "/checkout/", nil), false, ReasonDynamicPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := IsCachable(tt.req, cfg)
			if ok != tt.want || reason != tt.reason {
				t.Fatalf("IsCachable = %v/%q, want %v/%q", ok, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestClassifierDisabledWinsOverEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := httptest.NewRequest("GET", "/about/", nil)
	if ok, reason := IsCachable(r, cfg); ok || reason != ReasonDisabled {
		t.Fatalf("IsCachable = %v/%q", ok, reason)
	}
}

func TestClassifierBrokenPatternCannotExclude(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusionURLPatterns = []string{"(unclosed"}
	r := httptest.NewRequest("GET", "/about/", nil)
	if ok, _ := IsCachable(r, cfg); !ok {
		t.Fatal("Broken pattern excluded a request")
	}
}

func TestNoCacheFlagRequiresMiddlewareContext(t *testing.T) {
	// outside the middleware the flag is a no-op
	r := httptest.NewRequest("GET", "/", nil)
	DoNotCache(r)
	if ok, _ := IsCachable(r, DefaultConfig()); !ok {
		t.Fatal("Flag without context excluded a request")
	}

	r = WithCacheFlags(r)
	DoNotCache(r)
	if ok, reason := IsCachable(r, DefaultConfig()); ok || reason != ReasonNoCacheFlag {
		t.Fatalf("IsCachable = %v/%q", ok, reason)
	}
}

func TestClassifierIsRepeatable(t *testing.T) {
	r := WithCacheFlags(httptest.NewRequest("GET", "/about/", nil))
	cfg := DefaultConfig()

	if ok, _ := IsCachable(r, cfg); !ok {
		t.Fatal("Request unexpectedly excluded")
	}
	// the pipeline flags the request after the first classification
	DoNotCache(r)
	if ok, reason := IsCachable(r, cfg); ok || reason != ReasonNoCacheFlag {
		t.Fatalf("Re-evaluation returned %v/%q", ok, reason)
	}
}
