package reconcile

import (
	"time"

	"subfeed/internal/domain"
)

// Event is something that happened: a catalog result, a failure or a user
// action on the subscription state
type Event interface {
	event()
}

// ChannelResolved carries channel info for a new subscription
type ChannelResolved struct {
	Channel domain.Channel
}

// HandleResolved carries the channel id a handle search returned
type HandleResolved struct {
	Handle    string
	ChannelID domain.ChannelID
}

// VideosFetched carries one page of a channel's recent uploads
type VideosFetched struct {
	ChannelID domain.ChannelID
	Videos    []domain.Video
}

// ChannelRemoved unsubscribes a channel
type ChannelRemoved struct {
	ChannelID domain.ChannelID
}

// VideoWatched marks a video as opened in the player
type VideoWatched struct {
	VideoID string
}

// VideoFinished marks a video as watched to the end
type VideoFinished struct {
	VideoID string
}

// RefreshRequested asks for the recent uploads of every channel
type RefreshRequested struct{}

// HandleResolutionFailed reports a failed handle search
type HandleResolutionFailed struct {
	Handle string
	Err    error
}

// InfoFetchFailed reports a failed channel info lookup
type InfoFetchFailed struct {
	ChannelID domain.ChannelID
	Err       error
}

// VideoFetchFailed reports a failed uploads fetch
type VideoFetchFailed struct {
	ChannelID domain.ChannelID
	Err       error
}

func (ChannelResolved) event()        {}
func (HandleResolved) event()         {}
func (VideosFetched) event()          {}
func (ChannelRemoved) event()         {}
func (VideoWatched) event()           {}
func (VideoFinished) event()          {}
func (RefreshRequested) event()       {}
func (HandleResolutionFailed) event() {}
func (InfoFetchFailed) event()        {}
func (VideoFetchFailed) event()       {}

// Effect is a follow-up the runtime performs after a transition. Effects
// never run inside Apply.
type Effect interface {
	effect()
}

// SearchChannel looks up the channel id behind a handle
type SearchChannel struct {
	Handle string
}

// FetchChannelInfo loads metadata for a channel id
type FetchChannelInfo struct {
	ChannelID domain.ChannelID
}

// FetchRecentUploads loads the newest items of a channel's uploads playlist
type FetchRecentUploads struct {
	ChannelID  domain.ChannelID
	PlaylistID string
	Limit      int
}

// Persist writes the current snapshot
type Persist struct{}

// ClearProblem drops the visible problem with ID after Delay, unless a
// newer problem has replaced it
type ClearProblem struct {
	ID    uint64
	Delay time.Duration
}

func (SearchChannel) effect()      {}
func (FetchChannelInfo) effect()   {}
func (FetchRecentUploads) effect() {}
func (Persist) effect()            {}
func (ClearProblem) effect()       {}
