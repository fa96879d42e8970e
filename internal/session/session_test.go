package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subfeed/internal/domain"
	"subfeed/internal/reconcile"
	"subfeed/pkg/errors"
)

var uc1 = domain.NewChannelID("UC1")

const storedBlob = `{"apiKey":"key","channels":[{"id":"UC1","title":"One","uploadPlaylistId":"UU1"}],"seen":["old"]}`

func loaded(t *testing.T) Session {
	t.Helper()
	s, _ := Load([]byte(storedBlob), Options{Engine: reconcile.NewEngine(4), ProblemDelay: time.Second})
	_, ok := s.Mode.(Overview)
	require.True(t, ok)
	return s
}

func withVideos(t *testing.T, s Session) Session {
	t.Helper()
	s, _, err := s.Update(Incoming{Event: reconcile.VideosFetched{ChannelID: uc1, Videos: []domain.Video{
		{ID: "a", PublishedAt: time.Now()},
		{ID: "old", PublishedAt: time.Now()},
	}}})
	require.NoError(t, err)
	return s
}

func overviewOf(t *testing.T, s Session) Overview {
	t.Helper()
	o, ok := s.Mode.(Overview)
	require.True(t, ok, "mode is %T", s.Mode)
	return o
}

func TestLoad(t *testing.T) {
	s, effects := Load([]byte(storedBlob), Options{Engine: reconcile.NewEngine(4)})

	o := overviewOf(t, s)
	assert.Nil(t, o.Problem)
	assert.True(t, o.State.HasChannel(uc1))
	assert.True(t, o.State.IsSeen("old"))
	assert.Equal(t, "key", s.APIKey())
	assert.Equal(t, []reconcile.Effect{
		reconcile.FetchRecentUploads{ChannelID: uc1, PlaylistID: "UU1", Limit: 4},
	}, effects)
}

func TestLoad_Irrecoverable(t *testing.T) {
	tests := []struct {
		name    string
		blob    []byte
		errType errors.ErrorType
	}{
		{"empty api key", []byte(`{ "apiKey": "", "channels": [], "seen": [] }`), errors.ErrorTypeAPIKey},
		{"missing api key", []byte(`{"channels":[]}`), errors.ErrorTypeAPIKey},
		{"nothing stored", nil, errors.ErrorTypeAPIKey},
		{"malformed", []byte(`{"apiKey":"k","channels":"nope"}`), errors.ErrorTypeStorage},
		{"not json", []byte(`garbage`), errors.ErrorTypeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, effects := Load(tt.blob, Options{})
			assert.Empty(t, effects)

			mode, ok := s.Mode.(Irrecoverable)
			require.True(t, ok)
			assert.Equal(t, tt.errType, mode.Problem.Type)
			assert.True(t, mode.Problem.Fatal())
			assert.Empty(t, s.APIKey())

			_, ok = s.State()
			assert.False(t, ok)
		})
	}
}

func TestIrrecoverableRejectsEverything(t *testing.T) {
	s, _ := Load(nil, Options{})

	msgs := []Msg{Subscribe{Input: "https://example.com/channel/UC1"}, Remove{ChannelID: uc1}, Select{VideoID: "a"},
		Exit{}, Finish{}, Refresh{}, ProblemExpired{ID: 1}, Incoming{Event: reconcile.RefreshRequested{}}}
	for _, m := range msgs {
		next, effects, err := s.Update(m)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
		assert.Empty(t, effects)
		assert.IsType(t, Irrecoverable{}, next.Mode)
	}
}

func TestSubscribe(t *testing.T) {
	s := loaded(t)

	tests := []struct {
		name   string
		input  string
		effect reconcile.Effect
	}{
		{"direct", "https://example.com/channel/UC9", reconcile.FetchChannelInfo{ChannelID: domain.NewChannelID("UC9")}},
		{"handle", "https://example.com/c/somehandle", reconcile.SearchChannel{Handle: "somehandle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, err := s.Update(Subscribe{Input: tt.input})
			require.NoError(t, err)
			assert.Equal(t, []reconcile.Effect{tt.effect}, effects)
			assert.Nil(t, overviewOf(t, next).Problem)
		})
	}
}

func TestSubscribe_ParseFailure(t *testing.T) {
	s := loaded(t)

	next, effects, err := s.Update(Subscribe{Input: "not a url"})
	require.NoError(t, err)

	o := overviewOf(t, next)
	require.NotNil(t, o.Problem)
	assert.Equal(t, errors.ErrorTypeURLParse, o.Problem.Err.Type)
	assert.Equal(t, []reconcile.Effect{reconcile.ClearProblem{ID: o.Problem.ID, Delay: time.Second}}, effects)
}

func TestSubscribe_DirectDuplicateRejectedEarly(t *testing.T) {
	s := loaded(t)

	next, effects, err := s.Update(Subscribe{Input: "https://example.com/channel/UC1"})
	require.NoError(t, err)

	o := overviewOf(t, next)
	require.NotNil(t, o.Problem)
	assert.Equal(t, errors.ErrorTypeAlreadySubscribed, o.Problem.Err.Type)
	require.Len(t, effects, 1)
	assert.IsType(t, reconcile.ClearProblem{}, effects[0])
}

func TestSubscribeSameChannelTwice(t *testing.T) {
	s, _ := Load([]byte(`{"apiKey":"k"}`), Options{})
	ch := domain.Channel{ID: uc1, Title: "One", UploadsPlaylistID: "UU1"}

	s, effects, err := s.Update(Incoming{Event: reconcile.ChannelResolved{Channel: ch}})
	require.NoError(t, err)
	assert.Contains(t, effects, reconcile.Effect(reconcile.Persist{}))

	s, _, err = s.Update(Incoming{Event: reconcile.ChannelResolved{Channel: ch}})
	require.NoError(t, err)

	o := overviewOf(t, s)
	assert.Len(t, o.State.Channels(), 1)
	require.NotNil(t, o.Problem)
	assert.Equal(t, errors.ErrorTypeAlreadySubscribed, o.Problem.Err.Type)
}

func TestSelectExitFinish(t *testing.T) {
	s := withVideos(t, loaded(t))

	watching, effects, err := s.Update(Select{VideoID: "a"})
	require.NoError(t, err)
	assert.Empty(t, effects)
	w, ok := watching.Mode.(Watching)
	require.True(t, ok)
	assert.Equal(t, "a", w.Video.ID)
	assert.True(t, w.Video.Seen)
	assert.False(t, w.State.IsSeen("a"))

	exited, effects, err := watching.Update(Exit{})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.False(t, overviewOf(t, exited).State.IsSeen("a"))

	finished, effects, err := watching.Update(Finish{})
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Effect{reconcile.Persist{}}, effects)
	assert.True(t, overviewOf(t, finished).State.IsSeen("a"))
}

func TestSelect_UnknownVideo(t *testing.T) {
	s := loaded(t)

	next, _, err := s.Update(Select{VideoID: "missing"})
	require.NoError(t, err)
	o := overviewOf(t, next)
	require.NotNil(t, o.Problem)
	assert.Equal(t, errors.ErrorTypeNotFound, o.Problem.Err.Type)
}

func TestInvalidStateTransitions(t *testing.T) {
	s := withVideos(t, loaded(t))

	for _, m := range []Msg{Exit{}, Finish{}} {
		next, _, err := s.Update(m)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
		assert.IsType(t, Overview{}, next.Mode)
	}

	watching, _, err := s.Update(Select{VideoID: "a"})
	require.NoError(t, err)
	for _, m := range []Msg{Subscribe{Input: "https://example.com/c/x"}, Remove{ChannelID: uc1}, Select{VideoID: "old"}} {
		next, _, err := watching.Update(m)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
		assert.IsType(t, Watching{}, next.Mode)
	}
}

func TestWatching_IncomingUpdatesStateAndDropsProblems(t *testing.T) {
	s := withVideos(t, loaded(t))
	watching, _, err := s.Update(Select{VideoID: "a"})
	require.NoError(t, err)

	next, effects, err := watching.Update(Incoming{Event: reconcile.VideoFetchFailed{ChannelID: uc1, Err: errors.NewTransportError("timeout", nil)}})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.IsType(t, Watching{}, next.Mode)

	next, _, err = next.Update(Incoming{Event: reconcile.VideosFetched{ChannelID: uc1, Videos: []domain.Video{{ID: "b"}}}})
	require.NoError(t, err)
	w := next.Mode.(Watching)
	_, ok := w.State.FindVideo("b")
	assert.True(t, ok)
	assert.Equal(t, "a", w.Video.ID)

	_, effects, err = next.Update(Refresh{})
	require.NoError(t, err)
	assert.Len(t, effects, 1)
}

func TestRemove(t *testing.T) {
	s := withVideos(t, loaded(t))

	next, effects, err := s.Update(Remove{ChannelID: uc1})
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Effect{reconcile.Persist{}}, effects)
	o := overviewOf(t, next)
	assert.False(t, o.State.HasChannel(uc1))
	assert.True(t, o.State.IsSeen("old"))
}

func TestProblemExpiry(t *testing.T) {
	s := loaded(t)

	first, _, _ := s.Update(Subscribe{Input: "bad one"})
	firstID := overviewOf(t, first).Problem.ID

	second, _, _ := first.Update(Subscribe{Input: "bad two"})
	secondID := overviewOf(t, second).Problem.ID
	assert.NotEqual(t, firstID, secondID)

	// the older clear must not remove the newer problem
	stale, _, err := second.Update(ProblemExpired{ID: firstID})
	require.NoError(t, err)
	require.NotNil(t, overviewOf(t, stale).Problem)
	assert.Equal(t, secondID, overviewOf(t, stale).Problem.ID)

	cleared, _, err := stale.Update(ProblemExpired{ID: secondID})
	require.NoError(t, err)
	assert.Nil(t, overviewOf(t, cleared).Problem)
}

func TestProblemSurvivesUnrelatedEvents(t *testing.T) {
	s := loaded(t)
	s, _, _ = s.Update(Subscribe{Input: "bad"})
	id := overviewOf(t, s).Problem.ID

	s, _, err := s.Update(Refresh{})
	require.NoError(t, err)
	require.NotNil(t, overviewOf(t, s).Problem)
	assert.Equal(t, id, overviewOf(t, s).Problem.ID)
}

func TestFetchFailureBecomesProblem(t *testing.T) {
	s := loaded(t)

	next, effects, err := s.Update(Incoming{Event: reconcile.HandleResolutionFailed{
		Handle: "ghost",
		Err:    errors.NewNotFoundError("No channel found for ghost"),
	}})
	require.NoError(t, err)

	o := overviewOf(t, next)
	require.NotNil(t, o.Problem)
	assert.Equal(t, errors.ErrorTypeNotFound, o.Problem.Err.Type)
	assert.Equal(t, []reconcile.Effect{reconcile.ClearProblem{ID: o.Problem.ID, Delay: time.Second}}, effects)
	assert.False(t, o.Problem.Err.Fatal())
}
