package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"subfeed/internal/domain"
	"subfeed/internal/session"
	"subfeed/pkg/errors"
	"subfeed/pkg/logger"
)

// Feed is the part of the feed service the handlers drive
type Feed interface {
	Dispatch(ctx context.Context, msg session.Msg) (session.Session, error)
	View() session.Session
}

// SessionHandler exposes the session over HTTP
type SessionHandler struct {
	feed          Feed
	playerBaseURL string
	logger        *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(feed Feed, playerBaseURL string, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		feed:          feed,
		playerBaseURL: playerBaseURL,
		logger:        log,
	}
}

// SessionView is the rendered session
type SessionView struct {
	Mode        string        `json:"mode"`
	Problem     *ProblemView  `json:"problem,omitempty"`
	Channels    []ChannelView `json:"channels"`
	Feed        []VideoView   `json:"feed"`
	UnseenCount int           `json:"unseen_count"`
	Watching    *VideoView    `json:"watching,omitempty"`
}

// ProblemView is a user-visible error
type ProblemView struct {
	ID      uint64                 `json:"id,omitempty"`
	Type    errors.ErrorType       `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ChannelView is one subscribed channel
type ChannelView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	VideoCount  int    `json:"video_count"`
	UnseenCount int    `json:"unseen_count"`
}

// VideoView is one feed entry
type VideoView struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Seen         bool      `json:"seen"`
	PlayerURL    string    `json:"player_url"`
}

// SubscribeRequest is the body of POST /api/channels
type SubscribeRequest struct {
	Input string `json:"input"`
}

// RegisterRoutes registers session routes with the router
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.GetSession)
	r.Post("/refresh", h.Refresh)

	r.Route("/channels", func(r chi.Router) {
		r.Post("/", h.Subscribe)
		r.Delete("/{channelId}", h.Unsubscribe)
	})

	r.Post("/videos/{videoId}/watch", h.Watch)

	r.Route("/watching", func(r chi.Router) {
		r.Post("/finish", h.Finish)
		r.Post("/exit", h.Exit)
	})
}

// GetSession handles GET /api/session. ?unseen=true limits the feed to
// videos not yet seen.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	unseenOnly := r.URL.Query().Get("unseen") == "true"
	writeSuccess(w, h.logger, h.render(h.feed.View(), unseenOnly), "")
}

// Subscribe handles POST /api/channels
func (h *SessionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, errors.NewValidationError("Request body must be a JSON object with an input field", map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}

	h.dispatch(w, r, session.Subscribe{Input: req.Input}, "Subscription requested")
}

// Unsubscribe handles DELETE /api/channels/{channelId}
func (h *SessionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "channelId"))
	h.dispatch(w, r, session.Remove{ChannelID: domain.NewChannelID(id)}, "Channel removed")
}

// Refresh handles POST /api/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.Refresh{}, "Refresh requested")
}

// Watch handles POST /api/videos/{videoId}/watch
func (h *SessionHandler) Watch(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.Select{VideoID: chi.URLParam(r, "videoId")}, "")
}

// Finish handles POST /api/watching/finish
func (h *SessionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.Finish{}, "Video marked as seen")
}

// Exit handles POST /api/watching/exit
func (h *SessionHandler) Exit(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.Exit{}, "")
}

func (h *SessionHandler) dispatch(w http.ResponseWriter, r *http.Request, msg session.Msg, message string) {
	sess, err := h.feed.Dispatch(r.Context(), msg)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, h.render(sess, false), message)
}

func (h *SessionHandler) render(sess session.Session, unseenOnly bool) SessionView {
	view := SessionView{
		Mode:     modeName(sess),
		Channels: []ChannelView{},
		Feed:     []VideoView{},
	}

	var state domain.Subscriptions
	switch m := sess.Mode.(type) {
	case session.Overview:
		state = m.State
		if m.Problem != nil {
			view.Problem = problemView(m.Problem.ID, m.Problem.Err)
		}
	case session.Watching:
		state = m.State
		video := h.videoView(state, m.Video)
		view.Watching = &video
	case session.Irrecoverable:
		view.Problem = problemView(0, m.Problem)
		return view
	default:
		return view
	}

	for _, ch := range state.SortedChannels() {
		videos := state.Videos(ch.ID)
		unseen := 0
		for _, v := range videos {
			if !v.Seen {
				unseen++
			}
		}
		view.Channels = append(view.Channels, ChannelView{
			ID:          ch.ID.Value(),
			Title:       ch.Title,
			VideoCount:  len(videos),
			UnseenCount: unseen,
		})
	}

	feed := state.Feed()
	if unseenOnly {
		feed = state.Unseen()
	}
	for _, v := range feed {
		view.Feed = append(view.Feed, h.videoView(state, v))
	}
	view.UnseenCount = len(state.Unseen())
	return view
}

func (h *SessionHandler) videoView(state domain.Subscriptions, v domain.Video) VideoView {
	ch, _ := state.Channel(v.ChannelID)
	return VideoView{
		ID:           v.ID,
		ChannelID:    v.ChannelID.Value(),
		ChannelTitle: ch.Title,
		Title:        v.Title,
		Description:  v.Description,
		ThumbnailURL: v.ThumbnailURL,
		PublishedAt:  v.PublishedAt,
		Seen:         v.Seen,
		PlayerURL:    domain.PlayerURL(h.playerBaseURL, v.ID),
	}
}

func problemView(id uint64, appErr *errors.AppError) *ProblemView {
	if appErr == nil {
		return nil
	}
	return &ProblemView{
		ID:      id,
		Type:    appErr.Type,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}
