// Package session is the top-level state machine of the feed.
//
// A Session is always in exactly one Mode. Overview is the browsing mode
// and carries at most one transient Problem, Watching has one video open
// in the player and Irrecoverable is terminal. Update never performs I/O;
// it returns the effects the runtime must carry out.
package session

import (
	"fmt"
	"time"

	"subfeed/internal/domain"
	"subfeed/internal/persist"
	"subfeed/internal/reconcile"
	"subfeed/internal/resolver"
	"subfeed/pkg/errors"
)

// DefaultProblemDelay is how long a transient problem stays visible
const DefaultProblemDelay = 5 * time.Second

// Mode is one of Overview, Watching or Irrecoverable
type Mode interface {
	mode()
}

// Problem is a transient, user-visible error. ID tells a newer problem
// from the one a pending clear was scheduled for.
type Problem struct {
	ID  uint64
	Err *errors.AppError
}

// Overview is the browsing mode
type Overview struct {
	State   domain.Subscriptions
	Problem *Problem
}

// Watching has one video open in the player
type Watching struct {
	State domain.Subscriptions
	Video domain.Video
}

// Irrecoverable is reached when the stored snapshot is unusable. Nothing
// leaves it; a restart re-reads storage.
type Irrecoverable struct {
	Problem *errors.AppError
}

func (Overview) mode()      {}
func (Watching) mode()      {}
func (Irrecoverable) mode() {}

// Options configures a Session
type Options struct {
	Engine       *reconcile.Engine
	ProblemDelay time.Duration
}

// Session owns the mode, the credential and the problem counter
type Session struct {
	Mode   Mode
	apiKey string

	engine       *reconcile.Engine
	problemDelay time.Duration
	lastProblem  uint64
}

// Load starts a session from a stored blob. A nil blob means nothing was
// stored. The returned effects fetch recent uploads for every channel.
func Load(data []byte, opts Options) (Session, []reconcile.Effect) {
	s := Session{engine: opts.Engine, problemDelay: opts.ProblemDelay}
	if s.engine == nil {
		s.engine = reconcile.NewEngine(0)
	}
	if s.problemDelay <= 0 {
		s.problemDelay = DefaultProblemDelay
	}

	snap := persist.Snapshot{}
	if data != nil {
		decoded, err := persist.Decode(data)
		if err != nil {
			s.Mode = Irrecoverable{Problem: errors.FromError(err)}
			return s, nil
		}
		snap = decoded
	}

	if snap.APIKey == "" {
		s.Mode = Irrecoverable{Problem: errors.NewAPIKeyError("No YouTube API key is stored; add one and restart")}
		return s, nil
	}

	s.apiKey = snap.APIKey
	state := snap.State()
	s.Mode = Overview{State: state}
	return s, s.engine.FetchAll(state)
}

// Failed returns an Irrecoverable session, for storage that could not be
// read at all
func Failed(problem *errors.AppError) Session {
	if problem == nil {
		problem = errors.NewUnknownError("Session failed to start", nil)
	}
	return Session{Mode: Irrecoverable{Problem: problem}}
}

// APIKey returns the stored credential; empty when Irrecoverable
func (s Session) APIKey() string {
	return s.apiKey
}

// State returns the subscription state unless the session is Irrecoverable
func (s Session) State() (domain.Subscriptions, bool) {
	switch m := s.Mode.(type) {
	case Overview:
		return m.State, true
	case Watching:
		return m.State, true
	}
	return domain.Subscriptions{}, false
}

// Msg is an input to Update
type Msg interface {
	msg()
}

// Subscribe adds the channel behind a URL
type Subscribe struct {
	Input string
}

// Remove unsubscribes a channel
type Remove struct {
	ChannelID domain.ChannelID
}

// Select opens a video in the player
type Select struct {
	VideoID string
}

// Exit closes the player without marking the video seen
type Exit struct{}

// Finish closes the player and marks the video seen
type Finish struct{}

// Refresh refetches recent uploads of every channel
type Refresh struct{}

// ProblemExpired clears the problem with ID if it is still shown
type ProblemExpired struct {
	ID uint64
}

// Incoming delivers the result of an effect
type Incoming struct {
	Event reconcile.Event
}

func (Subscribe) msg()      {}
func (Remove) msg()         {}
func (Select) msg()         {}
func (Exit) msg()           {}
func (Finish) msg()         {}
func (Refresh) msg()        {}
func (ProblemExpired) msg() {}
func (Incoming) msg()       {}

// Update applies one message. Messages the current mode does not accept
// return an invalid_state error and leave the session unchanged.
func (s Session) Update(m Msg) (Session, []reconcile.Effect, error) {
	switch mode := s.Mode.(type) {
	case Overview:
		return s.updateOverview(mode, m)
	case Watching:
		return s.updateWatching(mode, m)
	case Irrecoverable:
		return s, nil, errors.NewInvalidStateError("The session cannot continue: " + mode.Problem.Message)
	}
	return s, nil, errors.NewUnknownError(fmt.Sprintf("Unknown session mode %T", s.Mode), nil)
}

func (s Session) updateOverview(o Overview, m Msg) (Session, []reconcile.Effect, error) {
	switch m := m.(type) {
	case Subscribe:
		return s.subscribe(o, m.Input)

	case Remove:
		res := s.engine.Apply(o.State, reconcile.ChannelRemoved{ChannelID: m.ChannelID})
		return s.overview(res)

	case Select:
		res := s.engine.Apply(o.State, reconcile.VideoWatched{VideoID: m.VideoID})
		video, ok := res.State.FindVideo(m.VideoID)
		if !ok {
			return s.withProblem(o.State, errors.NewNotFoundError(fmt.Sprintf("Video %s is not in the feed", m.VideoID)), nil)
		}
		s.Mode = Watching{State: res.State, Video: video}
		return s, res.Effects, nil

	case Refresh:
		return s.overview(s.engine.Apply(o.State, reconcile.RefreshRequested{}))

	case ProblemExpired:
		if o.Problem != nil && o.Problem.ID == m.ID {
			s.Mode = Overview{State: o.State}
		}
		return s, nil, nil

	case Incoming:
		return s.overview(s.engine.Apply(o.State, m.Event))

	case Exit, Finish:
		return s, nil, errors.NewInvalidStateError("No video is playing")
	}
	return s, nil, errors.NewUnknownError(fmt.Sprintf("Unknown message %T", m), nil)
}

func (s Session) updateWatching(w Watching, m Msg) (Session, []reconcile.Effect, error) {
	switch m := m.(type) {
	case Exit:
		s.Mode = Overview{State: w.State}
		return s, nil, nil

	case Finish:
		res := s.engine.Apply(w.State, reconcile.VideoFinished{VideoID: w.Video.ID})
		s.Mode = Overview{State: res.State}
		return s, res.Effects, nil

	case Refresh:
		res := s.engine.Apply(w.State, reconcile.RefreshRequested{})
		s.Mode = Watching{State: res.State, Video: w.Video}
		return s, res.Effects, nil

	case Incoming:
		// problems raised while the player is open are not shown
		res := s.engine.Apply(w.State, m.Event)
		s.Mode = Watching{State: res.State, Video: w.Video}
		return s, res.Effects, nil

	case ProblemExpired:
		return s, nil, nil

	case Subscribe, Remove, Select:
		return s, nil, errors.NewInvalidStateError("Close the player first")
	}
	return s, nil, errors.NewUnknownError(fmt.Sprintf("Unknown message %T", m), nil)
}

func (s Session) subscribe(o Overview, input string) (Session, []reconcile.Effect, error) {
	target, err := resolver.Resolve(input)
	if err != nil {
		return s.withProblem(o.State, errors.FromError(err), nil)
	}

	switch target.Kind {
	case resolver.Direct:
		if ch, ok := o.State.Channel(target.ChannelID); ok {
			return s.withProblem(o.State, errors.NewAlreadySubscribedError(ch.ID.Value(), ch.Title), nil)
		}
		return s, []reconcile.Effect{reconcile.FetchChannelInfo{ChannelID: target.ChannelID}}, nil
	case resolver.Handle:
		return s, []reconcile.Effect{reconcile.SearchChannel{Handle: target.Handle}}, nil
	}
	return s.withProblem(o.State, errors.NewURLParseError(input), nil)
}

// overview moves an engine result into Overview, keeping the current
// problem unless the result raised a new one
func (s Session) overview(res reconcile.Result) (Session, []reconcile.Effect, error) {
	if res.Problem != nil {
		return s.withProblem(res.State, res.Problem, res.Effects)
	}
	var current *Problem
	if o, ok := s.Mode.(Overview); ok {
		current = o.Problem
	}
	s.Mode = Overview{State: res.State, Problem: current}
	return s, res.Effects, nil
}

func (s Session) withProblem(state domain.Subscriptions, appErr *errors.AppError, effects []reconcile.Effect) (Session, []reconcile.Effect, error) {
	s.lastProblem++
	p := &Problem{ID: s.lastProblem, Err: appErr}
	s.Mode = Overview{State: state, Problem: p}
	out := append(append([]reconcile.Effect(nil), effects...), reconcile.ClearProblem{ID: p.ID, Delay: s.problemDelay})
	return s, out, nil
}
