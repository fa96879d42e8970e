// Package catalog talks to the remote video platform.
package catalog

import (
	"context"

	"subfeed/internal/domain"
)

// Catalog is the remote collaborator the feed depends on. Every call is a
// single request/response; failures are *errors.AppError of type not_found
// or transport.
type Catalog interface {
	SearchChannelByHandle(ctx context.Context, handle string) (domain.ChannelID, error)
	FetchChannelInfo(ctx context.Context, id domain.ChannelID) (domain.Channel, error)
	FetchRecentUploads(ctx context.Context, playlistID string, limit int) ([]domain.Video, error)
}

// Factory builds a Catalog for a credential. The credential lives in the
// persisted snapshot, so the client can only be created after load.
type Factory func(ctx context.Context, apiKey string) (Catalog, error)
