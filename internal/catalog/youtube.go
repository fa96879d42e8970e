package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
	"subfeed/pkg/logger"
)

// Options tunes the YouTube client
type Options struct {
	// BaseURL overrides the API endpoint; empty uses the public one
	BaseURL string
	// RateLimit is the sustained requests per second; <= 0 disables throttling
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	// HTTPClient replaces the default transport (tests)
	HTTPClient *http.Client
}

// YouTube implements Catalog over the YouTube Data API v3
type YouTube struct {
	service *youtube.Service
	limiter *rate.Limiter
	timeout time.Duration
	logger  *logger.Logger
}

var _ Catalog = (*YouTube)(nil)

// NewYouTube creates a client authenticated with a static API key
func NewYouTube(ctx context.Context, apiKey string, opts Options, log *logger.Logger) (*YouTube, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewAPIKeyError("YouTube API key is not configured")
	}
	if log == nil {
		log = logger.NewNop()
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}

	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		log.WithError(err).Error("Failed to create YouTube service")
		return nil, errors.NewTransportError("Failed to initialize YouTube service", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &YouTube{
		service: service,
		limiter: limiter,
		timeout: timeout,
		logger:  log,
	}, nil
}

// NewFactory returns a Factory producing YouTube clients with opts
func NewFactory(opts Options, log *logger.Logger) Factory {
	return func(ctx context.Context, apiKey string) (Catalog, error) {
		yt, err := NewYouTube(ctx, apiKey, opts, log)
		if err != nil {
			return nil, err
		}
		return yt, nil
	}
}

// begin waits for a rate limiter slot and bounds the call by the timeout
func (y *YouTube) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.NewTransportError("Catalog request was not sent", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, y.timeout)
	return callCtx, cancel, nil
}

// SearchChannelByHandle finds the channel id behind a display handle
func (y *YouTube) SearchChannelByHandle(ctx context.Context, handle string) (domain.ChannelID, error) {
	query := strings.TrimPrefix(handle, "@")
	y.logger.WithField("handle", query).Debug("Searching YouTube channel")

	callCtx, cancel, err := y.begin(ctx)
	if err != nil {
		return domain.ChannelID{}, err
	}
	defer cancel()

	resp, err := y.service.Search.List([]string{"id"}).
		Q(query).
		Type("channel").
		MaxResults(1).
		Context(callCtx).
		Do()
	if err != nil {
		return domain.ChannelID{}, y.wrap(err, fmt.Sprintf("Failed to search for channel %s", handle))
	}

	for _, item := range resp.Items {
		if item.Id != nil && item.Id.ChannelId != "" {
			return domain.NewChannelID(item.Id.ChannelId), nil
		}
	}
	return domain.ChannelID{}, errors.NewNotFoundError(fmt.Sprintf("No channel found for %s", handle))
}

// FetchChannelInfo loads a channel's title and uploads playlist
func (y *YouTube) FetchChannelInfo(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	y.logger.WithField("channel_id", id.Value()).Debug("Getting YouTube channel info")

	callCtx, cancel, err := y.begin(ctx)
	if err != nil {
		return domain.Channel{}, err
	}
	defer cancel()

	resp, err := y.service.Channels.List([]string{"snippet", "contentDetails"}).
		Id(id.Value()).
		Context(callCtx).
		Do()
	if err != nil {
		return domain.Channel{}, y.wrap(err, "Failed to get YouTube channel information")
	}

	if len(resp.Items) == 0 {
		return domain.Channel{}, errors.NewNotFoundError(fmt.Sprintf("Channel %s not found", id.Value()))
	}

	item := resp.Items[0]
	if item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil ||
		item.ContentDetails.RelatedPlaylists.Uploads == "" {
		return domain.Channel{}, errors.NewTransportError("Channel response has no uploads playlist", nil)
	}

	channel := domain.Channel{
		ID:                domain.NewChannelID(item.Id),
		UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
	}
	if item.Id == "" {
		channel.ID = id
	}
	if item.Snippet != nil {
		channel.Title = item.Snippet.Title
	}

	y.logger.WithFields(map[string]interface{}{
		"channel_id":    channel.ID.Value(),
		"channel_title": channel.Title,
	}).Debug("Retrieved YouTube channel info")

	return channel, nil
}

// FetchRecentUploads returns up to limit items of an uploads playlist in
// the order the platform lists them
func (y *YouTube) FetchRecentUploads(ctx context.Context, playlistID string, limit int) ([]domain.Video, error) {
	if limit <= 0 {
		limit = 10
	}
	y.logger.WithFields(map[string]interface{}{
		"playlist_id": playlistID,
		"limit":       limit,
	}).Debug("Fetching recent uploads")

	callCtx, cancel, err := y.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := y.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(int64(limit)).
		Context(callCtx).
		Do()
	if err != nil {
		return nil, y.wrap(err, "Failed to fetch recent uploads")
	}

	videos := make([]domain.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		video, ok := toVideo(item)
		if !ok {
			y.logger.WithField("playlist_id", playlistID).Warn("Skipping playlist item without video id")
			continue
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func toVideo(item *youtube.PlaylistItem) (domain.Video, bool) {
	if item == nil || item.Snippet == nil {
		return domain.Video{}, false
	}
	snippet := item.Snippet

	var video domain.Video
	if item.ContentDetails != nil {
		video.ID = item.ContentDetails.VideoId
	}
	if video.ID == "" && snippet.ResourceId != nil {
		video.ID = snippet.ResourceId.VideoId
	}
	if video.ID == "" {
		return domain.Video{}, false
	}

	video.ChannelID = domain.NewChannelID(snippet.ChannelId)
	video.Title = snippet.Title
	video.Description = snippet.Description
	video.ThumbnailURL = thumbnailURL(snippet.Thumbnails)

	published := snippet.PublishedAt
	if item.ContentDetails != nil && item.ContentDetails.VideoPublishedAt != "" {
		published = item.ContentDetails.VideoPublishedAt
	}
	if t, err := time.Parse(time.RFC3339, published); err == nil {
		video.PublishedAt = t.UTC()
	}
	return video, true
}

// thumbnailURL prefers medium, then default, then high
func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Medium, t.Default, t.High} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// wrap converts a client error into a catalog AppError
func (y *YouTube) wrap(err error, message string) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		y.logger.WithError(err).Debug(message)
		return errors.NewNotFoundError(message)
	}
	y.logger.WithError(err).Warn(message)
	return errors.NewTransportError(message, err)
}
