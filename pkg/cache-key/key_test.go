package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestIdentityString(t *testing.T) {
	id := Identity{Scheme: "https", Host: "example.com", Path: "/about/"}
	if s := id.String(); s != "https://example.com /about/" {
		t.Fatalf("Identity string is %q", s)
	}
	id.RawQuery = "p=1"
	if s := id.String(); s != "https://example.com /about/?p=1" {
		t.Fatalf("Identity string is %q", s)
	}
}

func TestIdentityFromRequest(t *testing.T) {
	r, _ := http.NewRequest("GET", "http://example.com/news/?page=2", nil)
	id := IdentityFromRequest(r)
	if id.Scheme != "http" || id.Host != "example.com" || id.Path != "/news/" || id.RawQuery != "page=2" {
		t.Fatalf("Identity is %+v", id)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if id := IdentityFromRequest(r); id.Scheme != "https" {
		t.Fatalf("Forwarded proto not honored, identity is %+v", id)
	}
}

func TestIdentityFromRelativeURL(t *testing.T) {
	site := url.URL{Scheme: "http", Host: "example.com"}
	id, err := IdentityFromURL("/posts/42/", site)
	if err != nil {
		t.Fatal(err)
	}
	if id.Host != "example.com" || id.Path != "/posts/42/" {
		t.Fatalf("Identity is %+v", id)
	}
	// an absolute URL keeps its own host
	id, err = IdentityFromURL("https://other.example/x", site)
	if err != nil {
		t.Fatal(err)
	}
	if id.Host != "other.example" {
		t.Fatalf("Identity is %+v", id)
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	k := NewKeyer("/tmp/cache")
	id := Identity{Scheme: "http", Host: "example.com", Path: "/"}
	if k.Key(id) != k.Key(id) {
		t.Fatal("Same identity produced different keys")
	}
}

func TestKeysDiffer(t *testing.T) {
	k := NewKeyer("/tmp/cache")
	seen := make(map[string]Identity)
	for i := 0; i < 500; i++ {
		for _, host := range []string{"a.example", "b.example"} {
			id := Identity{Scheme: "http", Host: host, Path: fmt.Sprintf("/page-%d/", i)}
			key := k.Key(id)
			if prev, ok := seen[key]; ok {
				t.Fatalf("Key collision between %+v and %+v", prev, id)
			}
			seen[key] = id
		}
	}
}

func TestQueryChangesKey(t *testing.T) {
	k := NewKeyer("/tmp/cache")
	plain := Identity{Scheme: "http", Host: "example.com", Path: "/p/"}
	withQuery := plain
	withQuery.RawQuery = "x=1"
	if k.Key(plain) == k.Key(withQuery) {
		t.Fatal("Query string did not change key")
	}
}

func TestPathsAreSharded(t *testing.T) {
	k := NewKeyer("/tmp/cache")
	key := k.Key(Identity{Scheme: "http", Host: "example.com", Path: "/"})
	paths, ok := k.Paths(key)
	if !ok {
		t.Fatal("Paths not available")
	}
	want := "/tmp/cache/" + key[:2] + "/" + key + ".html"
	if paths.Plain != want {
		t.Fatalf("Plain path is %s, want %s", paths.Plain, want)
	}
	if paths.Gz != want+".gz" {
		t.Fatalf("Gz path is %s", paths.Gz)
	}
}

func TestPathsRejectEscapes(t *testing.T) {
	k := NewKeyer("/tmp/cache")
	for _, key := range []string{"", "ab", "../../../etc/passwd", "..", strings.Repeat("../", 10)} {
		if _, ok := k.Paths(key); ok {
			t.Fatalf("Key %q escaped the cache root", key)
		}
	}
}
