package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/Sternrassler/fragcache/pkg/logging"
	"github.com/Sternrassler/fragcache/pkg/render"
	"github.com/Sternrassler/fragcache/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

//go:embed templates
var embeddedTemplates embed.FS

const shutdownTimeout = 10 * time.Second

// serverConfig is the resolved command line and environment configuration.
type serverConfig struct {
	Addr      string
	RedisURL  string
	Store     string
	Namespace string
	LogLevel  logging.LogLevel
	Pretty    bool
	Coalesce  bool
	StrictTTL bool
	Templates string
	Retries   int
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "fragment-server",
		Usage: "serve html/template pages with cached fragments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Value:   ":8080",
				Sources: cli.EnvVars("FRAGCACHE_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "redis address (host:port or redis:// URL)",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "fragment store: redis, ristretto or bigcache",
				Value:   "redis",
				Sources: cli.EnvVars("FRAGCACHE_STORE"),
			},
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "fingerprint namespace",
				Value:   cache.DefaultNamespace,
				Sources: cli.EnvVars("FRAGCACHE_NAMESPACE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   string(logging.LevelInfo),
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "pretty",
				Usage:   "human-readable console logs",
				Sources: cli.EnvVars("LOG_PRETTY"),
			},
			&cli.BoolFlag{
				Name:    "coalesce",
				Usage:   "share one render between concurrent misses",
				Value:   true,
				Sources: cli.EnvVars("FRAGCACHE_COALESCE"),
			},
			&cli.BoolFlag{
				Name:    "strict-ttl",
				Usage:   "do not cache fragments with an invalid TTL",
				Sources: cli.EnvVars("FRAGCACHE_STRICT_TTL"),
			},
			&cli.IntFlag{
				Name:    "store-retries",
				Usage:   "readiness probes before giving up on a shared store",
				Value:   5,
				Sources: cli.EnvVars("FRAGCACHE_STORE_RETRIES"),
			},
			&cli.StringFlag{
				Name:    "templates",
				Usage:   "template directory with pages/ and fragments/ (default: embedded)",
				Sources: cli.EnvVars("FRAGCACHE_TEMPLATES"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

func configFromCommand(cmd *cli.Command) (serverConfig, error) {
	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return serverConfig{}, err
	}

	kind := strings.ToLower(cmd.String("store"))
	switch kind {
	case "redis", "ristretto", "bigcache":
	default:
		return serverConfig{}, fmt.Errorf("unknown store %q (want redis, ristretto or bigcache)", cmd.String("store"))
	}

	return serverConfig{
		Addr:      cmd.String("addr"),
		RedisURL:  cmd.String("redis-addr"),
		Store:     kind,
		Namespace: cmd.String("namespace"),
		LogLevel:  level,
		Pretty:    cmd.Bool("pretty"),
		Coalesce:  cmd.Bool("coalesce"),
		StrictTTL: cmd.Bool("strict-ttl"),
		Templates: cmd.String("templates"),
		Retries:   cmd.Int("store-retries"),
	}, nil
}

func run(ctx context.Context, cfg serverConfig) error {
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("server")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
	}()
	logger.Info().Str("store", cfg.Store).Msg("Fragment store ready")

	cacheCfg := cache.DefaultConfig(st)
	cacheCfg.Namespace = cfg.Namespace
	cacheCfg.CoalesceMisses = cfg.Coalesce
	cacheCfg.StrictTTL = cfg.StrictTTL
	manager, err := cache.NewManager(cacheCfg)
	if err != nil {
		return fmt.Errorf("create cache manager: %w", err)
	}

	templates, err := templateFS(cfg.Templates)
	if err != nil {
		return err
	}
	engine := render.New(manager)
	if err := engine.LoadFS(templates); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(engine, st, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("namespace", cfg.Namespace).Msg("Starting fragment server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serverStore is a cache.Store the server can inspect, health check and release.
type serverStore interface {
	cache.Store
	cache.Inspector
	Ping(ctx context.Context) error
	Close() error
}

// redisStore ties a store.Redis to the client it owns.
type redisStore struct {
	*store.Redis
	client *redis.Client
}

func (s redisStore) Close() error { return s.client.Close() }

// localBackend is an in-process store.
type localBackend interface {
	cache.Store
	cache.Inspector
	Close() error
}

// localStore adapts in-process stores, which are always reachable.
type localStore struct {
	localBackend
}

func (s localStore) Ping(context.Context) error { return nil }

func openStore(ctx context.Context, cfg serverConfig) (serverStore, error) {
	switch cfg.Store {
	case "redis":
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		st := redisStore{Redis: store.NewRedis(client), client: client}

		retry := store.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Retries
		if err := store.WaitReady(ctx, st, retry); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		return st, nil

	case "ristretto":
		r, err := store.NewRistretto(store.DefaultRistrettoConfig())
		if err != nil {
			return nil, err
		}
		return localStore{r}, nil

	case "bigcache":
		b, err := store.NewBigCache(store.DefaultBigCacheConfig())
		if err != nil {
			return nil, err
		}
		return localStore{b}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// redisOptions accepts either a bare address or a redis:// URL.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

func templateFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("embedded templates: %w", err)
	}
	return sub, nil
}

// pageData is passed to every page and, through the cache directive, to its fragments.
type pageData struct {
	Title      string
	Path       string
	RenderedAt time.Time
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// pageName maps a request path to a page template name.
func pageName(urlPath string) string {
	page := strings.Trim(urlPath, "/")
	if page == "" {
		page = "index"
	}
	return page
}

func pageHandler(engine *render.Engine, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := pageName(r.URL.Path)
		if !engine.HasPage(page) {
			http.NotFound(w, r)
			return
		}

		data := pageData{
			Title:      page,
			Path:       r.URL.Path,
			RenderedAt: time.Now(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := engine.Render(r.Context(), w, page, data, render.ContextFromRequest(r)); err != nil {
			logger.Error().Err(err).Str("page", page).Msg("Page render failed")
			http.Error(w, "render failed", http.StatusInternalServerError)
		}
	}
}
