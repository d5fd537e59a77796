package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RichardKnop/machinery/v1"
	"github.com/go-redis/redis/v8"
	"github.com/samber/do/v2"

	"microblog/config"
	"microblog/seed"
	"microblog/storage"
	"microblog/worker"
)

// StoreHandle wraps the engagement store with shutdown capability.
type StoreHandle struct {
	*storage.EngagementStore
}

// Shutdown implements do.ShutdownerWithError.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured backend, loads the store from it and
// seeds the demo dataset into an empty store when asked to.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	ctx := context.Background()

	var backend storage.Backend
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		b, err := storage.OpenBadger(cfg.Storage.BadgerPath, log)
		if err != nil {
			return nil, err
		}
		backend = b
	case config.BackendMongo:
		b, err := storage.ConnectMongo(ctx, cfg.Storage.MongoURL, cfg.Storage.MongoDB)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		backend = storage.NewMemoryBackend()
	}

	store, err := storage.NewEngagementStore(ctx, storage.Options{Backend: backend, Logger: log})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	log.Info("store initialized", "backend", cfg.Storage.Backend)

	if cfg.App.Seed {
		seeded, err := seed.Load(ctx, store, time.Now())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		if seeded {
			log.Info("demo dataset loaded")
		}
	}
	return &StoreHandle{EngagementStore: store}, nil
}

// RedisHandle holds the shared redis client. Client is nil when no redis is
// configured.
type RedisHandle struct {
	Client *redis.Client
}

func (h *RedisHandle) Shutdown() error {
	if h.Client == nil {
		return nil
	}
	return h.Client.Close()
}

func ProvideRedis(i do.Injector) (*RedisHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Redis.URL == "" {
		return &RedisHandle{}, nil
	}
	return &RedisHandle{Client: redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})}, nil
}

// TaskServer is the machinery server shared by the cache (producer) and the
// worker (consumer). Server is nil when no redis is configured.
type TaskServer struct {
	Server *machinery.Server
}

func ProvideTaskServer(i do.Injector) (*TaskServer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Redis.URL == "" {
		return &TaskServer{}, nil
	}
	server, err := worker.NewServer(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	return &TaskServer{Server: server}, nil
}

// ProvideStorage returns the Storage served over HTTP: the engagement store,
// behind the redis cache when redis is configured.
func ProvideStorage(i do.Injector) (storage.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	store := do.MustInvoke[*StoreHandle](i)
	rh := do.MustInvoke[*RedisHandle](i)
	if rh.Client == nil {
		return store.EngagementStore, nil
	}

	ts := do.MustInvoke[*TaskServer](i)
	return &storage.CachedStorage{
		Client:          rh.Client,
		InternalStorage: store.EngagementStore,
		Tasks:           ts.Server,
		TTL:             cfg.Redis.CacheTTL,
		Logger:          log,
	}, nil
}
