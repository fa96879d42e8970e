package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"subfeed/internal/domain"
	"subfeed/pkg/logger"
	"subfeed/pkg/redis"
)

// Cached puts Redis in front of the lookups whose answers rarely change:
// handle resolution and channel info. Uploads always go to the catalog.
// Cache failures are logged and fall through to the wrapped Catalog.
type Cached struct {
	next   Catalog
	redis  *redis.Client
	logger *logger.Logger
}

var _ Catalog = (*Cached)(nil)

type cachedChannel struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	UploadsPlaylistID string `json:"uploadPlaylistId"`
}

// NewCached wraps next with a cache-aside layer
func NewCached(next Catalog, client *redis.Client, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.NewNop()
	}
	return &Cached{next: next, redis: client, logger: log.Named("catalog_cache")}
}

// WithCache wraps every Catalog built by f. A nil client returns f as is.
func WithCache(f Factory, client *redis.Client, log *logger.Logger) Factory {
	if client == nil {
		return f
	}
	return func(ctx context.Context, apiKey string) (Catalog, error) {
		next, err := f(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return NewCached(next, client, log), nil
	}
}

// SearchChannelByHandle implements Catalog
func (c *Cached) SearchChannelByHandle(ctx context.Context, handle string) (domain.ChannelID, error) {
	key := c.redis.KeyBuilder.KeyHandle(handle)

	cached, err := c.redis.Get(ctx, key)
	switch {
	case err == nil && cached != "":
		c.logger.WithField("handle", handle).Debug("Handle cache hit")
		return domain.NewChannelID(cached), nil
	case err != nil && !stderrors.Is(err, redis.ErrNil):
		c.logger.WithError(err).Warn("Handle cache error, falling back to catalog")
	}

	id, err := c.next.SearchChannelByHandle(ctx, handle)
	if err != nil {
		return id, err
	}
	c.store(key, id.Value(), redis.TTLHandle)
	return id, nil
}

// FetchChannelInfo implements Catalog
func (c *Cached) FetchChannelInfo(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	key := c.redis.KeyBuilder.KeyChannel(id.Value())

	cached, err := c.redis.Get(ctx, key)
	switch {
	case err == nil:
		var entry cachedChannel
		if jsonErr := json.Unmarshal([]byte(cached), &entry); jsonErr == nil && entry.ID == id.Value() {
			c.logger.WithField("channel_id", entry.ID).Debug("Channel cache hit")
			return domain.Channel{
				ID:                domain.NewChannelID(entry.ID),
				Title:             entry.Title,
				UploadsPlaylistID: entry.UploadsPlaylistID,
			}, nil
		}
		c.logger.WithField("channel_id", id.Value()).Warn("Channel cache corrupted, falling back to catalog")
	case !stderrors.Is(err, redis.ErrNil):
		c.logger.WithError(err).Warn("Channel cache error, falling back to catalog")
	}

	ch, err := c.next.FetchChannelInfo(ctx, id)
	if err != nil {
		return ch, err
	}

	data, err := json.Marshal(cachedChannel{
		ID:                ch.ID.Value(),
		Title:             ch.Title,
		UploadsPlaylistID: ch.UploadsPlaylistID,
	})
	if err == nil {
		c.store(key, string(data), redis.TTLChannel)
	}
	return ch, nil
}

// FetchRecentUploads implements Catalog
func (c *Cached) FetchRecentUploads(ctx context.Context, playlistID string, limit int) ([]domain.Video, error) {
	return c.next.FetchRecentUploads(ctx, playlistID, limit)
}

// store writes with its own deadline so a cancelled request still fills the cache
func (c *Cached) store(key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.redis.Set(ctx, key, value, ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to fill catalog cache")
	}
}
