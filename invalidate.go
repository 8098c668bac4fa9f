package presscache

import (
	"net/url"

	cachekey "github.com/presscache/presscache/pkg/cache-key"
)

// URLResolver maps content identities to the canonical URLs that render
// them. It is provided by the host application; the cache only consumes
// the resolved URL sets.
type URLResolver interface {
	// ContentURLs returns every URL affected by a change to a content
	// item: its own page, the site home, taxonomy archives for attached
	// terms, the post-type archive if one exists, and the author archive.
	ContentURLs(contentID int64) ([]string, error)
	// TermURLs returns the term's archive URL and the site home.
	TermURLs(taxonomy string, termID int64) ([]string, error)
}

// Invalidator deletes cache entries in reaction to content-change
// notifications. Every operation is best-effort: resolution failures are
// no-ops, and nothing here may ever block or fail the content change
// that triggered it.
type Invalidator struct {
	pc       *PageCache
	resolver URLResolver
	site     url.URL
}

// Invalidator creates the invalidation coordinator for this cache.
// Relative URLs from the resolver are resolved against site.
func (pc *PageCache) Invalidator(resolver URLResolver, site url.URL) *Invalidator {
	return &Invalidator{
		pc:       pc,
		resolver: resolver,
		site:     site,
	}
}

// DeleteByURL removes both stored variants for a URL. It constructs the
// request identity from the URL alone, so no ambient request context is
// touched. Unparseable URLs are ignored.
func (iv *Invalidator) DeleteByURL(raw string) {
	identity, err := cachekey.IdentityFromURL(raw, iv.site)
	if err != nil {
		iv.pc.log.Debug().Err(err).Str("url", raw).Msg("Skipping unresolvable invalidation URL")
		return
	}
	paths, ok := iv.pc.keyer.Paths(iv.pc.keyer.Key(identity))
	if !ok {
		return
	}
	iv.pc.store.Delete(paths.Plain)
	iv.pc.store.Delete(paths.Gz)
	iv.pc.log.Trace().Str("url", raw).Msg("Invalidated stored page")
}

// OnContentChanged reacts to a content item being changed, deleted,
// trashed, or restored.
func (iv *Invalidator) OnContentChanged(cfg Config, contentID int64) {
	if !cfg.InvalidateOnContentChange {
		return
	}
	iv.deleteContentURLs(contentID, "content")
}

// OnCommentChanged reacts to a comment on the given content item being
// posted, edited, deleted, or crossing the approved boundary. The
// affected URL set is the parent item's.
func (iv *Invalidator) OnCommentChanged(cfg Config, contentID int64) {
	if !cfg.InvalidateOnCommentChange {
		return
	}
	iv.deleteContentURLs(contentID, "comment")
}

// OnTermChanged reacts to a taxonomy term being changed or deleted.
func (iv *Invalidator) OnTermChanged(cfg Config, taxonomy string, termID int64) {
	if !cfg.InvalidateOnContentChange {
		return
	}
	if iv.resolver == nil {
		return
	}
	urls, err := iv.resolver.TermURLs(taxonomy, termID)
	if err != nil {
		iv.pc.log.Debug().Err(err).Str("taxonomy", taxonomy).Int64("term", termID).
			Msg("Could not resolve term URLs")
		return
	}
	for _, u := range urls {
		iv.DeleteByURL(u)
	}
	iv.pc.metrics.RecordInvalidation("term")
}

// OnSettingsSaved wipes the whole cache; any entry may depend on the
// settings that just changed.
func (iv *Invalidator) OnSettingsSaved() {
	iv.wipe("settings")
}

// OnThemeSwitched wipes the whole cache after a global structural change.
func (iv *Invalidator) OnThemeSwitched() {
	iv.wipe("theme")
}

func (iv *Invalidator) deleteContentURLs(contentID int64, trigger string) {
	if iv.resolver == nil {
		iv.pc.log.Debug().Msg("No URL resolver configured, skipping invalidation")
		return
	}
	urls, err := iv.resolver.ContentURLs(contentID)
	if err != nil {
		iv.pc.log.Debug().Err(err).Int64("content", contentID).Msg("Could not resolve content URLs")
		return
	}
	for _, u := range urls {
		iv.DeleteByURL(u)
	}
	iv.pc.metrics.RecordInvalidation(trigger)
}

func (iv *Invalidator) wipe(trigger string) {
	if !iv.pc.store.WipeAll() {
		iv.pc.log.Error().Str("trigger", trigger).Msg("Cache wipe finished with failures")
	}
	iv.pc.metrics.RecordInvalidation(trigger)
	iv.pc.metrics.SetStoreSize(iv.pc.store.Stats())
}
