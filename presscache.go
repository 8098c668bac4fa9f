package presscache

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/presscache/presscache/cache"
	cachekey "github.com/presscache/presscache/pkg/cache-key"
	tee "github.com/presscache/presscache/pkg/response-writer-tee"
)

type Options struct {
	// Storage for cache artifacts.
	Store cache.Store
	// Source of the cache settings, read once per request.
	Settings SettingsSource
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Version string embedded in the generation marker.
	Version string
	// Optional interval for pruning expired-but-unvisited artifacts.
	// Zero keeps the default lazy-only expiration.
	SweepInterval time.Duration
	// Optional Prometheus instruments.
	Metrics *Metrics
	// Clock override for tests.
	Now func() time.Time
}

// PageCache serves anonymous GET requests from disk and captures freshly
// generated pages. Cache decisions run synchronously inside the request;
// there is no cross-request locking, and concurrent misses for the same
// page may each regenerate it (last write wins).
type PageCache struct {
	store    cache.Store
	keyer    cachekey.Keyer
	settings SettingsSource
	metrics  *Metrics
	log      zerolog.Logger
	version  string
	now      func() time.Time
}

// New initializes the page cache and starts the optional sweeper.
func New(opts Options) *PageCache {
	var logger zerolog.Logger
	if opts.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *opts.Logger
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pc := &PageCache{
		store:    opts.Store,
		keyer:    cachekey.NewKeyer(opts.Store.Root()),
		settings: opts.Settings,
		metrics:  opts.Metrics,
		log:      logger,
		version:  version,
		now:      now,
	}

	if opts.SweepInterval > 0 {
		go pc.sweep(opts.SweepInterval)
	}

	return pc
}

// Middleware wraps the page-generating handler with the serve and capture
// paths. On a fresh hit the stored bytes are written and next never runs;
// otherwise next runs with capture armed.
func (pc *PageCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := pc.settings.Current()
		r = WithCacheFlags(r)

		// the response depends on Accept-Encoding in every state, so the
		// diagnostic responses advertise it too
		w.Header().Set("Vary", "Accept-Encoding")

		if ok, reason := IsCachable(r, cfg); !ok {
			pc.finishUncached(w, r, next, CacheStatus{State: StateDisabled, Detail: string(reason)})
			return
		}

		identity := cachekey.IdentityFromRequest(r)
		paths, ok := pc.keyer.Paths(pc.keyer.Key(identity))
		if !ok {
			pc.log.Warn().Str("url", r.URL.String()).Msg("Cache path unavailable for request")
			pc.finishUncached(w, r, next, CacheStatus{State: StateDisabled, Detail: "path-unavailable"})
			return
		}

		state := StateMiss
		candidate, modTime, gz := pc.lookup(r, cfg, paths)
		if candidate != nil {
			if pc.now().Sub(modTime) < cfg.TTL() {
				pc.sendStored(w, r, cfg, candidate, modTime, gz)
				return
			}
			// expired: drop both variants even if only one existed
			pc.store.Delete(paths.Plain)
			pc.store.Delete(paths.Gz)
			state = StateExpired
		}

		setCacheStatus(w, CacheStatus{State: state})
		pc.metrics.RecordRequest(state)

		saver := tee.NewResponseSaver(w)
		next.ServeHTTP(saver, r)
		pc.capture(r, cfg, paths, saver.Body(), saver.StatusCode())
		pc.logRequest(r, state)
	})
}

// lookup returns the preferred stored variant for the request, or nil.
// The gz artifact wins when gzip is enabled and the client supports it.
func (pc *PageCache) lookup(r *http.Request, cfg Config, paths cachekey.Paths) ([]byte, time.Time, bool) {
	if cfg.GzipEnabled && acceptsGzip(r) {
		if b, mod, found := pc.store.Read(paths.Gz); found {
			return b, mod, true
		}
	}
	if b, mod, found := pc.store.Read(paths.Plain); found {
		return b, mod, false
	}
	return nil, time.Time{}, false
}

func (pc *PageCache) sendStored(w http.ResponseWriter, r *http.Request, cfg Config, body []byte, modTime time.Time, gz bool) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=UTF-8")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", cfg.TTLSeconds))
	h.Set("Expires", modTime.Add(cfg.TTL()).UTC().Format(http.TimeFormat))
	h.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	if gz {
		h.Set("Content-Encoding", "gzip")
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	setCacheStatus(w, CacheStatus{State: StateHit})
	pc.metrics.RecordRequest(StateHit)

	if _, err := w.Write(body); err != nil {
		pc.log.Error().Err(err).Msg("Could not write stored page to client")
	}
	pc.logRequest(r, StateHit)
}

func (pc *PageCache) finishUncached(w http.ResponseWriter, r *http.Request, next http.Handler, cs CacheStatus) {
	setCacheStatus(w, cs)
	pc.metrics.RecordRequest(cs.State)
	next.ServeHTTP(w, r)
	pc.logRequest(r, cs.State)
}

func (pc *PageCache) logRequest(r *http.Request, state ServeState) {
	pc.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("state", string(state)).
		Msg("Request handled")
}

// sweep periodically prunes artifacts older than the configured TTL.
// Lazy per-read expiration remains the primary mechanism; this loop only
// bounds disk usage for pages that are never requested again.
func (pc *PageCache) sweep(interval time.Duration) {
	pc.log.Info().Msgf("Starting cache sweep loop with interval %s", interval)
	for {
		time.Sleep(interval)
		cfg := pc.settings.Current()
		if !cfg.Enabled {
			continue
		}
		removed, ok := pc.store.Sweep(pc.now().Add(-cfg.TTL()))
		if removed > 0 || !ok {
			pc.log.Debug().Int("removed", removed).Bool("ok", ok).Msg("Swept expired artifacts")
		}
		if pc.metrics != nil {
			pc.metrics.SetStoreSize(pc.store.Stats())
		}
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept-Encoding") {
		for _, part := range strings.Split(v, ",") {
			name := part
			params := ""
			if i := strings.IndexByte(part, ';'); i >= 0 {
				name, params = part[:i], part[i+1:]
			}
			if strings.TrimSpace(name) != "gzip" {
				continue
			}
			// "gzip;q=0" is an explicit refusal, not an acceptance
			q := strings.TrimSpace(params)
			if strings.HasPrefix(q, "q=") {
				if val, err := strconv.ParseFloat(q[len("q="):], 64); err == nil && val == 0 {
					continue
				}
			}
			return true
		}
	}
	return false
}
