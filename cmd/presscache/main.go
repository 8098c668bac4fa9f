package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/presscache/presscache"
	"github.com/presscache/presscache/cache"
	"github.com/presscache/presscache/settings"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	cacheDirFlag       string
	dbFilenameFlag     string
	sweepFlag          time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&cacheDirFlag, "cache-dir", "page-cache", "Cache root directory")
	flag.StringVar(&dbFilenameFlag, "db", "settings.db", "Settings DB file name (use 'memory' for in-memory db)")
	flag.DurationVar(&sweepFlag, "sweep", 0, "Interval for pruning expired entries (0 disables)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout, rotated)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to a rotated logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    100,
			MaxBackups: 10,
			Compress:   true,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	origin := originFlag
	cacheDir := cacheDirFlag
	dbFilename := dbFilenameFlag
	sweepInterval := sweepFlag
	var fileSettings *CacheSettings

	if configFilenameFlag != "" {
		config, err := getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		if origin == "" {
			origin = config.Origin
		}
		if config.Port > 0 {
			portFlag = config.Port
		}
		if config.CacheDir != "" {
			cacheDir = config.CacheDir
		}
		if config.SettingsDB != "" {
			dbFilename = config.SettingsDB
		}
		if config.SweepInterval != "" {
			interval, err := time.ParseDuration(config.SweepInterval)
			if err != nil {
				log.Fatal().Err(err).Msg("Could not parse sweep interval")
			}
			sweepInterval = interval
		}
		fileSettings = &config.Cache
	}

	if origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	if dbFilename == "memory" {
		dbFilename = ""
	}
	settingsStore, err := settings.New(dbFilename, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open settings db")
	}
	if fileSettings != nil {
		if err := settingsStore.Save(fileSettings.cacheConfig()); err != nil {
			log.Fatal().Err(err).Msg("Could not persist settings")
		}
	}

	store, err := cache.NewFileStore(cacheDir, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create cache directory")
	}

	metrics := presscache.NewMetrics()
	pageCache := presscache.New(presscache.Options{
		Store:         store,
		Settings:      settingsStore,
		Logger:        &log.Logger,
		Version:       version,
		SweepInterval: sweepInterval,
		Metrics:       metrics,
	})
	invalidator := pageCache.Invalidator(nil, *originURL)

	proxy := &httputil.ReverseProxy{
		Director: createDirector(originURL.Scheme, originURL.Host),
	}

	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/_presscache/stats", func(w http.ResponseWriter, _ *http.Request) {
		totalBytes, fileCount := store.Stats()
		metrics.SetStoreSize(totalBytes, fileCount)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"totalBytes":%d,"fileCount":%d}`+"\n", totalBytes, fileCount)
	})
	r.Post("/_presscache/wipe", func(w http.ResponseWriter, _ *http.Request) {
		invalidator.OnSettingsSaved()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"wiped":true}`)
	})
	r.Handle("/*", pageCache.Middleware(proxy))

	log.Info().Msgf("Caching port %v for origin %s (cache dir %s)", portFlag, originURL, store.Root())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}
