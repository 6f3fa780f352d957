package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Eternity714/KatelyaTV/internal/auth"
	"github.com/Eternity714/KatelyaTV/internal/policy"
	"github.com/Eternity714/KatelyaTV/internal/preferences"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
	"github.com/Eternity714/KatelyaTV/internal/providers/vodapi"
	"github.com/Eternity714/KatelyaTV/internal/registry"
	"github.com/Eternity714/KatelyaTV/internal/search"
	"github.com/Eternity714/KatelyaTV/internal/siteconfig"
	"github.com/Eternity714/KatelyaTV/internal/storage/memory"
	mongorepo "github.com/Eternity714/KatelyaTV/internal/storage/mongo"
	"github.com/Eternity714/KatelyaTV/internal/storage/sqlite"
)

// Store is everything the service persists: sources, user settings and site config.
type Store interface {
	registry.Store
	preferences.Store
	siteconfig.Store
}

// Components is the assembled service graph shared by the server and the CLI.
type Components struct {
	Config      Config
	Store       Store
	Redis       redis.UniversalClient
	Registry    *registry.Registry
	Admin       *registry.Admin
	Preferences *preferences.Service
	SiteConfig  *siteconfig.Service
	Filter      *policy.Filter
	HTTPClient  *http.Client
	Upstream    *vodapi.Client
	Search      *search.Service
	Verifier    *auth.Verifier

	closers []func()
}

// Build opens storage and Redis and wires the search pipeline. Redis problems only
// disable the features that need it; storage problems fail the build.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{Config: cfg}

	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, closeStore)

	c.Redis = OpenRedis(ctx, cfg.RedisURL, logger)
	if c.Redis != nil {
		client := c.Redis
		c.closers = append(c.closers, func() { _ = client.Close() })
	}

	c.Registry = registry.New(store)
	c.Admin = registry.NewAdmin(store, logger)
	c.Preferences = preferences.NewService(store, logger)
	c.SiteConfig = siteconfig.NewService(c.siteConfigStore(logger), cfg.Site)

	if path := strings.TrimSpace(cfg.SourcesFile); path != "" {
		if err := c.SyncSourcesFile(ctx, path, logger); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Filter = policy.NewFilter(policy.ParseKeywords(cfg.AdultKeywords))
	httpClient, err := common.NewHTTPClient(max(cfg.SearchTimeout, cfg.DetailTimeout)+5*time.Second, cfg.UpstreamProxyURL)
	if err != nil {
		logger.Warn("upstream proxy ignored", slog.String("error", err.Error()))
	}
	c.HTTPClient = httpClient
	c.Upstream = vodapi.NewClient(vodapi.Config{
		UserAgent:     cfg.UserAgent,
		Client:        httpClient,
		Timeout:       cfg.SearchTimeout,
		DetailTimeout: cfg.DetailTimeout,
		Retries:       cfg.RetryAttempts,
		Filter:        c.Filter,
		Logger:        logger,
	})

	opts := []search.Option{
		search.WithConcurrency(cfg.Concurrency),
		search.WithPreferences(c.Preferences),
		search.WithSiteConfig(c.SiteConfig),
		search.WithLogger(logger),
	}
	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled())
	} else {
		opts = append(opts, search.WithCache(search.NewCache(search.CacheOptions{
			TTL:        cfg.CacheTTL,
			MaxEntries: cfg.CacheMaxEntries,
			Redis:      search.NewRedisCacheBackend(c.Redis),
			Logger:     logger,
		})))
	}
	c.Search = search.NewService(c.Registry, c.Upstream, opts...)
	c.Verifier = auth.NewVerifier(cfg.JWTSecret, cfg.OwnerUsername)
	return c, nil
}

// SyncSourcesFile loads a TOML sources file into the registry as config sources.
// Invalid entries are logged and skipped.
func (c *Components) SyncSourcesFile(ctx context.Context, path string, logger *slog.Logger) error {
	inputs, err := registry.LoadSourcesFile(path)
	if err != nil {
		return fmt.Errorf("load sources file: %w", err)
	}
	inserted, updated, err := c.Admin.SyncConfigSources(ctx, inputs)
	if err != nil {
		if errors.Is(err, registry.ErrRegistryUnavailable) {
			return err
		}
		logger.Warn("some config sources were skipped", slog.String("error", err.Error()))
	}
	logger.Info("config sources synced",
		slog.String("file", path),
		slog.Int("total", len(inputs)),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
	)
	return nil
}

func (c *Components) siteConfigStore(logger *slog.Logger) siteconfig.Store {
	if c.Config.SiteConfigStore == "redis" {
		if c.Redis != nil {
			return siteconfig.NewRedisStore(c.Redis, "")
		}
		logger.Warn("SITE_CONFIG_STORE=redis but redis is unavailable, using storage backend")
	}
	return c.Store
}

// Close releases storage and Redis in reverse open order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// OpenStore opens the backend named by cfg.StorageType.
func OpenStore(ctx context.Context, cfg Config) (Store, func(), error) {
	switch cfg.StorageType {
	case "", StorageMemory:
		return memory.NewStore(), func() {}, nil
	case StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case StorageMongo:
		store, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_TYPE %q", cfg.StorageType)
	}
}

// OpenRedis returns nil when rawURL is empty, invalid or unreachable.
func OpenRedis(ctx context.Context, rawURL string, logger *slog.Logger) redis.UniversalClient {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("invalid redis url, redis features disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, redis features disabled", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}
