package presscache

import (
	"fmt"
	"net/http/httptest"
	"net/url"
	"testing"

	cachekey "github.com/presscache/presscache/pkg/cache-key"
)

type stubResolver struct {
	contentURLs map[int64][]string
	termURLs    map[string][]string
}

func (s stubResolver) ContentURLs(contentID int64) ([]string, error) {
	urls, ok := s.contentURLs[contentID]
	if !ok {
		return nil, fmt.Errorf("content %d not found", contentID)
	}
	return urls, nil
}

func (s stubResolver) TermURLs(taxonomy string, termID int64) ([]string, error) {
	key := fmt.Sprintf("%s/%d", taxonomy, termID)
	urls, ok := s.termURLs[key]
	if !ok {
		return nil, fmt.Errorf("term %s not found", key)
	}
	return urls, nil
}

var testSite = url.URL{Scheme: "http", Host: "example.com"}

// prime populates the cache through the middleware for the given paths.
func prime(t *testing.T, pc *PageCache, paths ...string) {
	t.Helper()
	mw := pc.Middleware(pageHandler(nil))
	for _, p := range paths {
		get(mw, p)
		if !pc.hasEntry(p) {
			t.Fatalf("Priming %s did not persist an entry", p)
		}
	}
}

func (pc *PageCache) hasEntry(path string) bool {
	r := httptest.NewRequest("GET", path, nil)
	paths, ok := pc.keyer.Paths(pc.keyer.Key(cachekey.IdentityFromRequest(r)))
	if !ok {
		return false
	}
	_, _, found := pc.store.Read(paths.Plain)
	return found
}

func TestContentChangeInvalidatesResolvedURLs(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/posts/42/", "/", "/category/news/", "/contact/")

	resolver := stubResolver{contentURLs: map[int64][]string{
		42: {"/posts/42/", "/", "/category/news/"},
	}}
	iv := pc.Invalidator(resolver, testSite)
	iv.OnContentChanged(DefaultConfig(), 42)

	for _, p := range []string{"/posts/42/", "/", "/category/news/"} {
		if pc.hasEntry(p) {
			t.Fatalf("Entry for %s survived invalidation", p)
		}
	}
	if !pc.hasEntry("/contact/") {
		t.Fatal("Unrelated entry was invalidated")
	}
}

func TestContentChangeRespectsConfigFlag(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/posts/42/")

	resolver := stubResolver{contentURLs: map[int64][]string{42: {"/posts/42/"}}}
	iv := pc.Invalidator(resolver, testSite)

	cfg := DefaultConfig()
	cfg.InvalidateOnContentChange = false
	iv.OnContentChanged(cfg, 42)

	if !pc.hasEntry("/posts/42/") {
		t.Fatal("Invalidation ran despite disabled flag")
	}
}

func TestCommentChangeUsesParentURLSet(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/posts/7/", "/")

	resolver := stubResolver{contentURLs: map[int64][]string{
		7: {"/posts/7/", "/"},
	}}
	iv := pc.Invalidator(resolver, testSite)
	iv.OnCommentChanged(DefaultConfig(), 7)

	if pc.hasEntry("/posts/7/") || pc.hasEntry("/") {
		t.Fatal("Comment change did not invalidate parent URL set")
	}
}

func TestTermChangeInvalidatesArchive(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/category/news/", "/", "/contact/")

	resolver := stubResolver{termURLs: map[string][]string{
		"category/3": {"/category/news/", "/"},
	}}
	iv := pc.Invalidator(resolver, testSite)
	iv.OnTermChanged(DefaultConfig(), "category", 3)

	if pc.hasEntry("/category/news/") || pc.hasEntry("/") {
		t.Fatal("Term change did not invalidate its URLs")
	}
	if !pc.hasEntry("/contact/") {
		t.Fatal("Unrelated entry was invalidated")
	}
}

func TestMissingContentIsNoOp(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/contact/")

	iv := pc.Invalidator(stubResolver{}, testSite)
	iv.OnContentChanged(DefaultConfig(), 99)

	if !pc.hasEntry("/contact/") {
		t.Fatal("Resolution failure deleted entries")
	}
}

func TestDeleteByURLIgnoresGarbage(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	iv := pc.Invalidator(nil, testSite)
	iv.DeleteByURL("://not a url")
	iv.DeleteByURL("")
}

func TestSettingsSaveWipesEverything(t *testing.T) {
	pc := newTestCache(t, DefaultConfig(), nil)
	prime(t, pc, "/a/", "/b/", "/c/")

	iv := pc.Invalidator(nil, testSite)
	iv.OnSettingsSaved()

	for _, p := range []string{"/a/", "/b/", "/c/"} {
		if pc.hasEntry(p) {
			t.Fatalf("Entry for %s survived wipe", p)
		}
	}
	// wiping the already-empty store is fine
	iv.OnThemeSwitched()
}
