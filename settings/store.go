package settings

import (
	"database/sql"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"

	"github.com/presscache/presscache"
)

// Store persists the cache settings in SQLite and implements
// presscache.SettingsSource. There is a single settings row; Save
// replaces it wholesale.
type Store struct {
	db         *sql.DB
	log        zerolog.Logger
	writeMutex *sync.Mutex
}

// New opens the settings db with the given filename.
// If the file name is empty, a new in-memory db is opened.
func New(filename string, logger *zerolog.Logger) (*Store, error) {
	var log zerolog.Logger
	if logger == nil {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = *logger
	}

	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		enabled INTEGER,
		ttl_seconds INTEGER,
		gzip_enabled INTEGER,
		exclusion_url_patterns TEXT,
		exclusion_cookie_prefixes TEXT,
		exclusion_user_agents TEXT,
		invalidate_on_content_change INTEGER,
		invalidate_on_comment_change INTEGER
	)`)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return &Store{
		db:         db,
		log:        log,
		writeMutex: &sync.Mutex{},
	}, nil
}

// Save persists the settings. The TTL is clamped to the minimum here, at
// the point of persistence, and the correction is surfaced as a warning
// rather than an error.
func (s *Store) Save(cfg presscache.Config) error {
	if cfg.TTLSeconds < presscache.MinTTLSeconds {
		s.log.Warn().
			Int("ttlSeconds", cfg.TTLSeconds).
			Int("min", presscache.MinTTLSeconds).
			Msg("TTL below minimum, clamping")
		cfg.TTLSeconds = presscache.MinTTLSeconds
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings
		(id, enabled, ttl_seconds, gzip_enabled,
		exclusion_url_patterns, exclusion_cookie_prefixes, exclusion_user_agents,
		invalidate_on_content_change, invalidate_on_comment_change)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		boolInt(cfg.Enabled), cfg.TTLSeconds, boolInt(cfg.GzipEnabled),
		joinList(cfg.ExclusionURLPatterns),
		joinList(cfg.ExclusionCookiePrefixes),
		joinList(cfg.ExclusionUserAgentSubstrings),
		boolInt(cfg.InvalidateOnContentChange), boolInt(cfg.InvalidateOnCommentChange))
	return err
}

// Load returns the persisted settings, or the defaults if none were ever
// saved.
func (s *Store) Load() (presscache.Config, error) {
	var (
		cfg                               presscache.Config
		enabled, gzipEnabled              int
		urls, cookies, agents             string
		invalidateContent, invalidateComm int
	)
	err := s.db.QueryRow(`SELECT enabled, ttl_seconds, gzip_enabled,
		exclusion_url_patterns, exclusion_cookie_prefixes, exclusion_user_agents,
		invalidate_on_content_change, invalidate_on_comment_change
		FROM settings WHERE id = 1`).
		Scan(&enabled, &cfg.TTLSeconds, &gzipEnabled,
			&urls, &cookies, &agents, &invalidateContent, &invalidateComm)
	if err == sql.ErrNoRows {
		return presscache.DefaultConfig(), nil
	}
	if err != nil {
		return presscache.DefaultConfig(), err
	}
	cfg.Enabled = enabled != 0
	cfg.GzipEnabled = gzipEnabled != 0
	cfg.ExclusionURLPatterns = splitList(urls)
	cfg.ExclusionCookiePrefixes = splitList(cookies)
	cfg.ExclusionUserAgentSubstrings = splitList(agents)
	cfg.InvalidateOnContentChange = invalidateContent != 0
	cfg.InvalidateOnCommentChange = invalidateComm != 0
	return cfg, nil
}

// Current implements presscache.SettingsSource. A load failure degrades
// to the defaults rather than failing the request.
func (s *Store) Current() presscache.Config {
	cfg, err := s.Load()
	if err != nil {
		s.log.Error().Err(err).Msg("Could not load settings, using defaults")
	}
	return cfg
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinList(list []string) string {
	return strings.Join(list, "\n")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
