package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/relsync/internal/dependencies/clock"
	"github.com/mcoot/relsync/internal/dependencies/random"
	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/services/auth"
	"github.com/mcoot/relsync/internal/storage"
	"github.com/mcoot/relsync/internal/storage/memory"
	redisstorage "github.com/mcoot/relsync/internal/storage/redis"
	"github.com/mcoot/relsync/internal/storage/sqlite"
	"github.com/mcoot/relsync/internal/transport"
	"github.com/mcoot/relsync/internal/web/sse"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Cache storage.ProfileCache

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Transport; nil in test apps
	Client *transport.Client
	Stream *transport.Stream

	// Services
	AuthService *auth.Service
	Engine      *engine.Engine
	Hub         *sse.Hub
	Broadcaster *sse.Broadcaster

	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// RemoteURL is the base URL of the remote service
	RemoteURL string
	// RequestTimeout bounds each request/response call
	// If zero, defaults to 10 seconds
	RequestTimeout time.Duration
	// Tokens holds the session token (optional)
	// If nil, an empty in-memory store is used
	Tokens auth.TokenStore
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the cache backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file (required if StorageType is "sqlite")
	SQLitePath string
	// Engine holds engine tuning; zero values take defaults
	Engine engine.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if cfg.RemoteURL == "" {
		return nil, errors.New("RemoteURL is required")
	}

	cache, closer, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := transport.NewClient(cfg.RemoteURL, timeout)
	stream := transport.NewStream(cfg.RemoteURL, logger)

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = auth.NewMemoryTokens("")
	}

	app := newWithDependencies(cache, client, tokens, clock.New(), random.New(), cfg.Engine, logger, client, stream)
	app.Client = client
	app.Stream = stream
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	return app, nil
}

func newCache(cfg Config) (storage.ProfileCache, io.Closer, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil, nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StorageTypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, nil, errors.New("SQLitePath required when StorageType is sqlite")
		}
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sqlite'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	cache storage.ProfileCache,
	requester transport.Requester,
	tokens auth.TokenStore,
	clk clock.Clock,
	rnd random.Random,
	engineCfg engine.Config,
	logger *slog.Logger,
	conns ...auth.TokenSetter,
) *App {
	if engineCfg == (engine.Config{}) {
		engineCfg = engine.DefaultConfig()
	}

	authService := auth.New(requester, tokens, logger, conns...)
	eng := engine.New(requester, cache, authService, clk, engineCfg, logger)
	hub := sse.NewHub(logger)

	return &App{
		Cache:       cache,
		Clock:       clk,
		Random:      rnd,
		AuthService: authService,
		Engine:      eng,
		Hub:         hub,
		Broadcaster: sse.NewBroadcaster(hub, logger),
	}
}

// Close releases the cache connection, if any
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
