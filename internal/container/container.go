package container

import (
	"fmt"

	"subfeed/internal/catalog"
	"subfeed/internal/config"
	"subfeed/internal/persist"
	"subfeed/internal/reconcile"
	"subfeed/internal/service"
	"subfeed/internal/session"
	"subfeed/pkg/logger"
	"subfeed/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Store       persist.Store
	Feed        *service.FeedService
}

// New creates a new dependency injection container. The feed service is
// created stopped.
func New(cfg *config.Config, log *logger.Logger) (*Container, error) {
	var redisClient *redis.Client
	var store persist.Store

	switch cfg.StorageBackend {
	case config.StorageRedis:
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
		}
		redisClient = client
		store = persist.NewRedisStore(client, cfg.Profile)
		log.WithField("profile", cfg.Profile).Info("Using Redis storage")
	default:
		store = persist.NewFileStore(cfg.StorePath)
		log.WithField("path", cfg.StorePath).Info("Using file storage")
	}

	factory := catalog.NewFactory(catalog.Options{
		BaseURL:   cfg.YouTubeAPIBaseURL,
		RateLimit: cfg.CatalogRateLimit,
		Burst:     cfg.CatalogBurst,
		Timeout:   cfg.CatalogTimeout,
	}, log)
	// handle and channel lookups share the snapshot's Redis
	factory = catalog.WithCache(factory, redisClient, log)

	feed := service.NewFeedService(service.FeedConfig{
		Store:   store,
		Catalog: factory,
		Session: session.Options{
			Engine:       reconcile.NewEngine(cfg.UploadsPageSize),
			ProblemDelay: cfg.ProblemClearDelay,
		},
		BootstrapAPIKey: cfg.YouTubeAPIKey,
		RefreshSchedule: cfg.RefreshSchedule,
	}, log)

	return &Container{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		Store:       store,
		Feed:        feed,
	}, nil
}

// GetFeedService returns the feed service
func (c *Container) GetFeedService() *service.FeedService {
	return c.Feed
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (nil with file storage)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
