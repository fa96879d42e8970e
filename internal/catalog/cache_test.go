package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
	"subfeed/pkg/redis"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) SearchChannelByHandle(ctx context.Context, handle string) (domain.ChannelID, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(domain.ChannelID), args.Error(1)
}

func (m *mockCatalog) FetchChannelInfo(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Channel), args.Error(1)
}

func (m *mockCatalog) FetchRecentUploads(ctx context.Context, playlistID string, limit int) ([]domain.Video, error) {
	args := m.Called(ctx, playlistID, limit)
	videos, _ := args.Get(0).([]domain.Video)
	return videos, args.Error(1)
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *redis.Client, *mockCatalog, *Cached) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	next := &mockCatalog{}
	return mr, client, next, NewCached(next, client, nil)
}

func TestCached_SearchChannelByHandle(t *testing.T) {
	mr, _, next, cached := setupCache(t)
	next.On("SearchChannelByHandle", mock.Anything, "@Someone").Return(domain.NewChannelID("UC1"), nil).Once()

	for i := 0; i < 2; i++ {
		id, err := cached.SearchChannelByHandle(context.Background(), "@Someone")
		require.NoError(t, err)
		assert.Equal(t, "UC1", id.Value())
	}

	next.AssertExpectations(t)
	assert.Equal(t, redis.TTLHandle, mr.TTL("subfeed-test:catalog:handle:@someone"))
}

func TestCached_FetchChannelInfo(t *testing.T) {
	mr, _, next, cached := setupCache(t)
	ch := domain.Channel{ID: domain.NewChannelID("UC1"), Title: "One", UploadsPlaylistID: "UU1"}
	next.On("FetchChannelInfo", mock.Anything, ch.ID).Return(ch, nil).Once()

	for i := 0; i < 2; i++ {
		got, err := cached.FetchChannelInfo(context.Background(), ch.ID)
		require.NoError(t, err)
		assert.Equal(t, ch, got)
	}

	next.AssertExpectations(t)
	assert.Equal(t, redis.TTLChannel, mr.TTL("subfeed-test:catalog:channel:UC1"))
}

func TestCached_CorruptEntryFallsThrough(t *testing.T) {
	mr, _, next, cached := setupCache(t)
	ch := domain.Channel{ID: domain.NewChannelID("UC1"), Title: "One", UploadsPlaylistID: "UU1"}
	require.NoError(t, mr.Set("subfeed-test:catalog:channel:UC1", "{broken"))
	next.On("FetchChannelInfo", mock.Anything, ch.ID).Return(ch, nil).Once()

	got, err := cached.FetchChannelInfo(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch, got)
	next.AssertExpectations(t)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	mr, _, next, cached := setupCache(t)
	next.On("SearchChannelByHandle", mock.Anything, "@ghost").
		Return(domain.ChannelID{}, errors.NewNotFoundError("No channel matches @ghost")).Twice()

	for i := 0; i < 2; i++ {
		_, err := cached.SearchChannelByHandle(context.Background(), "@ghost")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	}

	next.AssertExpectations(t)
	assert.False(t, mr.Exists("subfeed-test:catalog:handle:@ghost"))
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	mr, _, next, cached := setupCache(t)
	next.On("SearchChannelByHandle", mock.Anything, "@someone").Return(domain.NewChannelID("UC1"), nil)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := cached.SearchChannelByHandle(ctx, "@someone")
	require.NoError(t, err)
	assert.Equal(t, "UC1", id.Value())
}

func TestCached_UploadsPassThrough(t *testing.T) {
	_, _, next, cached := setupCache(t)
	videos := []domain.Video{{ID: "v1"}}
	next.On("FetchRecentUploads", mock.Anything, "UU1", 5).Return(videos, nil).Twice()

	for i := 0; i < 2; i++ {
		got, err := cached.FetchRecentUploads(context.Background(), "UU1", 5)
		require.NoError(t, err)
		assert.Equal(t, videos, got)
	}
	next.AssertExpectations(t)
}

func TestWithCache(t *testing.T) {
	_, client, next, _ := setupCache(t)
	factory := func(context.Context, string) (Catalog, error) { return next, nil }

	plain, err := WithCache(factory, nil, nil)(context.Background(), "key")
	require.NoError(t, err)
	assert.Same(t, next, plain)

	wrapped, err := WithCache(factory, client, nil)(context.Background(), "key")
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, wrapped)
}
