// Package reconcile holds the transition rules of the subscription state.
//
// Apply is pure: it never performs I/O and never mutates its input. Work
// that needs the network or the disk is returned as Effects; results of
// that work come back later as new Events, in any order.
package reconcile

import (
	"fmt"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
)

// DefaultUploadsLimit is the page size requested per uploads fetch
const DefaultUploadsLimit = 10

// Engine applies events to a domain.Subscriptions
type Engine struct {
	UploadsLimit int
}

// NewEngine creates an engine requesting limit uploads per channel
func NewEngine(limit int) *Engine {
	if limit <= 0 {
		limit = DefaultUploadsLimit
	}
	return &Engine{UploadsLimit: limit}
}

// Result is the outcome of one transition
type Result struct {
	State   domain.Subscriptions
	Problem *errors.AppError
	Effects []Effect
}

// Apply runs one event against state
func (e *Engine) Apply(state domain.Subscriptions, ev Event) Result {
	switch ev := ev.(type) {
	case HandleResolved:
		if ch, ok := state.Channel(ev.ChannelID); ok {
			return Result{State: state, Problem: errors.NewAlreadySubscribedError(ch.ID.Value(), ch.Title)}
		}
		return Result{State: state, Effects: []Effect{FetchChannelInfo{ChannelID: ev.ChannelID}}}

	case ChannelResolved:
		return e.channelResolved(state, ev.Channel)

	case VideosFetched:
		return Result{State: mergeVideos(state, ev.ChannelID, ev.Videos)}

	case ChannelRemoved:
		if !state.HasChannel(ev.ChannelID) {
			return Result{State: state}
		}
		return Result{State: state.WithoutChannel(ev.ChannelID), Effects: []Effect{Persist{}}}

	case VideoWatched:
		if _, ok := state.FindVideo(ev.VideoID); !ok {
			return Result{State: state}
		}
		return Result{State: state.WithVideoFlag(ev.VideoID)}

	case VideoFinished:
		if _, ok := state.FindVideo(ev.VideoID); !ok {
			return Result{State: state}
		}
		return Result{State: state.WithSeen(ev.VideoID), Effects: []Effect{Persist{}}}

	case RefreshRequested:
		return Result{State: state, Effects: e.FetchAll(state)}

	case HandleResolutionFailed:
		return Result{State: state, Problem: describe(ev.Err, fmt.Sprintf("Could not find channel %s", ev.Handle))}

	case InfoFetchFailed:
		return Result{State: state, Problem: describe(ev.Err, fmt.Sprintf("Could not load channel %s", ev.ChannelID.Value()))}

	case VideoFetchFailed:
		ch, ok := state.Channel(ev.ChannelID)
		if !ok {
			// channel removed while the fetch was in flight
			return Result{State: state}
		}
		return Result{State: state, Problem: describe(ev.Err, fmt.Sprintf("Could not load videos of %s", displayName(ch)))}
	}

	return Result{State: state, Problem: errors.NewUnknownError(fmt.Sprintf("Unhandled event %T", ev), nil)}
}

func (e *Engine) channelResolved(state domain.Subscriptions, ch domain.Channel) Result {
	if existing, ok := state.Channel(ch.ID); ok {
		return Result{State: state, Problem: errors.NewAlreadySubscribedError(existing.ID.Value(), existing.Title)}
	}
	if ch.ID.IsZero() {
		return Result{State: state, Problem: errors.NewUnknownError("Channel info without an id", nil)}
	}
	return Result{
		State: state.WithChannel(ch),
		Effects: []Effect{
			e.fetchUploads(ch),
			Persist{},
		},
	}
}

// FetchAll returns an uploads fetch for every subscribed channel
func (e *Engine) FetchAll(state domain.Subscriptions) []Effect {
	channels := state.Channels()
	effects := make([]Effect, 0, len(channels))
	for _, ch := range channels {
		effects = append(effects, e.fetchUploads(ch))
	}
	return effects
}

func (e *Engine) fetchUploads(ch domain.Channel) FetchRecentUploads {
	limit := e.UploadsLimit
	if limit <= 0 {
		limit = DefaultUploadsLimit
	}
	return FetchRecentUploads{ChannelID: ch.ID, PlaylistID: ch.UploadsPlaylistID, Limit: limit}
}

// mergeVideos folds a fetched page into the channel's list. Existing
// entries are replaced in place by id, entries missing from the page are
// kept, and the seen marker is forced for ids in the canonical set.
func mergeVideos(state domain.Subscriptions, id domain.ChannelID, incoming []domain.Video) domain.Subscriptions {
	if !state.HasChannel(id) {
		return state
	}

	merged := state.Videos(id)
	index := make(map[string]int, len(merged)+len(incoming))
	for i, v := range merged {
		index[v.ID] = i
	}

	for _, v := range incoming {
		if v.ID == "" {
			continue
		}
		v.ChannelID = id
		v.Seen = state.IsSeen(v.ID)

		if i, ok := index[v.ID]; ok {
			v.Seen = v.Seen || merged[i].Seen
			merged[i] = v
			continue
		}
		index[v.ID] = len(merged)
		merged = append(merged, v)
	}

	return state.WithVideos(id, merged)
}

// describe turns a catalog failure into a transient problem. AppErrors
// keep their type; the message names what was being done.
func describe(err error, action string) *errors.AppError {
	appErr := errors.FromError(err)
	if appErr == nil {
		appErr = errors.NewUnknownError("", nil)
	}
	out := *appErr
	if out.Message == "" {
		out.Message = action
	} else {
		out.Message = action + ": " + out.Message
	}
	return &out
}

func displayName(ch domain.Channel) string {
	if ch.Title != "" {
		return ch.Title
	}
	return ch.ID.Value()
}
