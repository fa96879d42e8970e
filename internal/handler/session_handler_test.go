package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subfeed/internal/domain"
	"subfeed/internal/reconcile"
	"subfeed/internal/session"
	"subfeed/pkg/errors"
	"subfeed/pkg/logger"
)

// fakeFeed applies messages synchronously and drops their effects
type fakeFeed struct {
	mu   sync.Mutex
	sess session.Session
	msgs []session.Msg
}

func (f *fakeFeed) Dispatch(ctx context.Context, msg session.Msg) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	next, _, err := f.sess.Update(msg)
	if err != nil {
		return f.sess, err
	}
	f.sess = next
	return next, nil
}

func (f *fakeFeed) View() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

var published = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFeed(t *testing.T) *fakeFeed {
	t.Helper()
	sess, _ := session.Load([]byte(`{"apiKey":"k","channels":[
		{"id":"UC2","title":"beta","uploadPlaylistId":"UU2"},
		{"id":"UC1","title":"Alpha","uploadPlaylistId":"UU1"}],"seen":["old"]}`), session.Options{})

	uc1 := domain.NewChannelID("UC1")
	sess, _, err := sess.Update(session.Incoming{Event: reconcile.VideosFetched{ChannelID: uc1, Videos: []domain.Video{
		{ID: "old", Title: "Old", PublishedAt: published.Add(-time.Hour)},
		{ID: "new", Title: "New", PublishedAt: published},
	}}})
	require.NoError(t, err)
	return &fakeFeed{sess: sess}
}

func newRouter(feed Feed) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewSessionHandler(feed, "https://player.example/embed", logger.NewNop()).RegisterRoutes)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    SessionView     `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestSessionHandler_GetSession(t *testing.T) {
	h := newRouter(newFeed(t))

	code, env := do(t, h, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	view := env.Data
	assert.Equal(t, "overview", view.Mode)
	assert.Nil(t, view.Problem)
	require.Len(t, view.Channels, 2)
	assert.Equal(t, "Alpha", view.Channels[0].Title)
	assert.Equal(t, 2, view.Channels[0].VideoCount)
	assert.Equal(t, 1, view.Channels[0].UnseenCount)
	assert.Equal(t, "beta", view.Channels[1].Title)

	require.Len(t, view.Feed, 2)
	assert.Equal(t, "new", view.Feed[0].ID)
	assert.Equal(t, "Alpha", view.Feed[0].ChannelTitle)
	assert.Equal(t, "https://player.example/embed/new", view.Feed[0].PlayerURL)
	assert.True(t, view.Feed[1].Seen)
	assert.Equal(t, 1, view.UnseenCount)

	_, env = do(t, h, http.MethodGet, "/api/session?unseen=true", "")
	require.Len(t, env.Data.Feed, 1)
	assert.Equal(t, "new", env.Data.Feed[0].ID)
}

func TestSessionHandler_Subscribe(t *testing.T) {
	feed := newFeed(t)
	h := newRouter(feed)

	code, env := do(t, h, http.MethodPost, "/api/channels", `{"input":"https://www.youtube.com/@someone"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, env.Data.Problem)
	assert.Equal(t, session.Subscribe{Input: "https://www.youtube.com/@someone"}, feed.msgs[len(feed.msgs)-1])

	code, env = do(t, h, http.MethodPost, "/api/channels", `{"input":"https://www.youtube.com/channel/UC1"}`)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Data.Problem)
	assert.Equal(t, errors.ErrorTypeAlreadySubscribed, env.Data.Problem.Type)

	code, env = do(t, h, http.MethodPost, "/api/channels", `{"input":"not a url"}`)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Data.Problem)
	assert.Equal(t, errors.ErrorTypeURLParse, env.Data.Problem.Type)
}

func TestSessionHandler_SubscribeBadBody(t *testing.T) {
	h := newRouter(newFeed(t))

	code, env := do(t, h, http.MethodPost, "/api/channels", `[`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Error), `"type":"validation"`)
}

func TestSessionHandler_Unsubscribe(t *testing.T) {
	h := newRouter(newFeed(t))

	code, env := do(t, h, http.MethodDelete, "/api/channels/UC1", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.Data.Channels, 1)
	assert.Equal(t, "UC2", env.Data.Channels[0].ID)
	assert.Empty(t, env.Data.Feed)
}

func TestSessionHandler_WatchFinish(t *testing.T) {
	h := newRouter(newFeed(t))

	code, env := do(t, h, http.MethodPost, "/api/videos/new/watch", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "watching", env.Data.Mode)
	require.NotNil(t, env.Data.Watching)
	assert.Equal(t, "new", env.Data.Watching.ID)
	assert.True(t, env.Data.Watching.Seen)

	code, _ = do(t, h, http.MethodDelete, "/api/channels/UC1", "")
	assert.Equal(t, http.StatusConflict, code)

	code, env = do(t, h, http.MethodPost, "/api/watching/finish", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "overview", env.Data.Mode)
	assert.Equal(t, 0, env.Data.UnseenCount)
}

func TestSessionHandler_WatchExit(t *testing.T) {
	h := newRouter(newFeed(t))

	do(t, h, http.MethodPost, "/api/videos/new/watch", "")
	code, env := do(t, h, http.MethodPost, "/api/watching/exit", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "overview", env.Data.Mode)
	require.Len(t, env.Data.Feed, 2)
	// the flag stays until the next fetch, but the video was never finished
	assert.True(t, env.Data.Feed[0].Seen)
}

func TestSessionHandler_InvalidTransition(t *testing.T) {
	h := newRouter(newFeed(t))

	code, env := do(t, h, http.MethodPost, "/api/watching/finish", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Error), `"type":"invalid_state"`)
}

func TestSessionHandler_Irrecoverable(t *testing.T) {
	sess, _ := session.Load([]byte(`{"apiKey":""}`), session.Options{})
	h := newRouter(&fakeFeed{sess: sess})

	code, env := do(t, h, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "irrecoverable", env.Data.Mode)
	require.NotNil(t, env.Data.Problem)
	assert.Equal(t, errors.ErrorTypeAPIKey, env.Data.Problem.Type)
	assert.Empty(t, env.Data.Feed)

	code, _ = do(t, h, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusConflict, code)
}
