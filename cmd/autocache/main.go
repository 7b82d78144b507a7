package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/autocache"
	"github.com/always-cache/autocache/cache"
	"github.com/always-cache/autocache/pkg/cacheability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// this is set by goreleaser
var version string

func init() {
	if version == "" {
		version = "DEV"
	}
}

func main() {
	// AUTOCACHE_* variables may also come from a .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	cmd := &cli.Command{
		Name:    "autocache",
		Usage:   "HTTP caching reverse proxy",
		Version: version,
		Flags:   flags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, setupLogging(cmd.Bool("vv"), cmd.String("log-file"))
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Exiting")
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_CONFIG")),
		},
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "Origin URL to proxy to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_ORIGIN")),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Hostname of origin (Host header and TLS server name)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_HOST")),
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port to listen on",
			Value:   8080,
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_PORT")),
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Cache store: memory, sqlite, redis or s3",
			Value:   "memory",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_STORE")),
		},
		&cli.StringFlag{
			Name:    "db",
			Usage:   "SQLite file name (use 'memory' for in-memory db)",
			Value:   "cache.db",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_DB")),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis server address",
			Value:   "localhost:6379",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_REDIS_ADDR")),
		},
		&cli.StringFlag{
			Name:    "namespace",
			Usage:   "Key namespace in shared stores (redis, s3)",
			Value:   "autocache",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_NAMESPACE")),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "S3 bucket",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_S3_BUCKET")),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "S3 region (default from the AWS configuration)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_S3_REGION")),
		},
		&cli.StringFlag{
			Name:    "max-age-unit",
			Usage:   "Unit of max-age values: ms or s",
			Value:   "ms",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_MAX_AGE_UNIT")),
		},
		&cli.BoolFlag{
			Name:    "cache-status",
			Usage:   "Add a Cache-Status header to responses",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_CACHE_STATUS")),
		},
		&cli.BoolFlag{
			Name:    "invalidate",
			Usage:   "Invalidate stored responses after unsafe requests and on Cache-Update",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTOCACHE_INVALIDATE")),
		},
		&cli.BoolFlag{
			Name:  "vv",
			Usage: "Verbosity: trace logging",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Log file to use (in addition to stdout)",
		},
	}
}

func setupLogging(trace bool, logFilename string) error {
	// set log level
	logLevel := zerolog.DebugLevel
	if trace {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilename != "" {
		logFileOutput, err := os.OpenFile(logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
	return nil
}

// settings merges the configuration file with the command line.
// Flags that are set (also through the environment) take precedence over the file.
func settings(cmd *cli.Command) (Config, error) {
	var config Config
	if filename := cmd.String("config"); filename != "" {
		var err error
		if config, err = getConfig(filename); err != nil {
			return config, err
		}
	}

	stringSetting := func(name string, fileValue *string) {
		if cmd.IsSet(name) || *fileValue == "" {
			*fileValue = cmd.String(name)
		}
	}
	stringSetting("origin", &config.Origin)
	stringSetting("host", &config.Host)
	stringSetting("max-age-unit", &config.MaxAgeUnit)
	stringSetting("store", &config.Store.Type)
	stringSetting("db", &config.Store.DB)
	stringSetting("redis-addr", &config.Store.RedisAddr)
	stringSetting("namespace", &config.Store.Namespace)
	stringSetting("s3-bucket", &config.Store.S3Bucket)
	stringSetting("s3-region", &config.Store.S3Region)
	if cmd.IsSet("cache-status") {
		config.CacheStatus = cmd.Bool("cache-status")
	}
	if cmd.IsSet("invalidate") {
		config.Invalidate = cmd.Bool("invalidate")
	}

	if config.Origin == "" {
		return config, errors.New("please specify origin")
	}
	return config, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	config, err := settings(cmd)
	if err != nil {
		return err
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		return fmt.Errorf("could not parse origin url: %w", err)
	}
	maxAgeUnit, err := parseMaxAgeUnit(config.MaxAgeUnit)
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, config.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", config.Store.Type, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close cache store")
		}
	}()

	ac := autocache.New(autocache.Config{
		Opener:      cache.BackendOpener{Backend: backend, Logger: log.Logger},
		Policy:      cacheability.Policy{MaxAgeUnit: maxAgeUnit},
		Rules:       config.Rules,
		CacheStatus: config.CacheStatus,
		Invalidate:  config.Invalidate,
	})

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/*", ac.Middleware(newReverseProxy(originURL, config.Host)))

	port := cmd.Int("port")
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", port, originURL.String(), config.Host)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Could not shut down gracefully")
		}
	}

	// let deferred stores finish before the store is closed
	ac.Wait()
	for _, stats := range ac.Stats() {
		log.Info().Str("stats", stats.String()).Msg("Cache latency")
	}
	return nil
}
