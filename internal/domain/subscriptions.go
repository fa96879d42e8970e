package domain

import (
	"sort"
	"strings"
)

// Subscriptions is the root aggregate: subscribed channels, their fetched
// videos and the canonical set of seen video ids.
//
// Values are treated as immutable. Every With* method returns a modified
// copy and leaves the receiver untouched, so a Subscriptions handed to a
// reader never changes underneath it.
type Subscriptions struct {
	channels []Channel
	videos   map[ChannelID][]Video
	seen     map[string]struct{}
}

// NewSubscriptions builds state from persisted channels and seen ids.
// Duplicate channel ids keep the first occurrence.
func NewSubscriptions(channels []Channel, seenIDs []string) Subscriptions {
	s := Subscriptions{
		videos: make(map[ChannelID][]Video, len(channels)),
		seen:   make(map[string]struct{}, len(seenIDs)),
	}
	for _, ch := range channels {
		if ch.ID.IsZero() {
			continue
		}
		if _, ok := s.videos[ch.ID]; ok {
			continue
		}
		s.channels = append(s.channels, ch)
		s.videos[ch.ID] = nil
	}
	for _, id := range seenIDs {
		if id != "" {
			s.seen[id] = struct{}{}
		}
	}
	return s
}

func (s Subscriptions) clone() Subscriptions {
	out := Subscriptions{
		channels: append([]Channel(nil), s.channels...),
		videos:   make(map[ChannelID][]Video, len(s.videos)),
		seen:     make(map[string]struct{}, len(s.seen)),
	}
	for id, list := range s.videos {
		out.videos[id] = append([]Video(nil), list...)
	}
	for id := range s.seen {
		out.seen[id] = struct{}{}
	}
	return out
}

// HasChannel reports whether id is subscribed
func (s Subscriptions) HasChannel(id ChannelID) bool {
	_, ok := s.Channel(id)
	return ok
}

// Channel looks up a subscribed channel
func (s Subscriptions) Channel(id ChannelID) (Channel, bool) {
	for _, ch := range s.channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}

// Channels returns the channels in insertion order
func (s Subscriptions) Channels() []Channel {
	return append([]Channel(nil), s.channels...)
}

// SortedChannels returns the channels ordered case-insensitively by title
func (s Subscriptions) SortedChannels() []Channel {
	out := s.Channels()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if a != b {
			return a < b
		}
		return out[i].ID.Value() < out[j].ID.Value()
	})
	return out
}

// Videos returns a channel's stored videos in storage order
func (s Subscriptions) Videos(id ChannelID) []Video {
	return append([]Video(nil), s.videos[id]...)
}

// Feed returns every video across channels, most recently published first
func (s Subscriptions) Feed() []Video {
	var out []Video
	for _, ch := range s.channels {
		out = append(out, s.videos[ch.ID]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Unseen returns the feed without seen videos
func (s Subscriptions) Unseen() []Video {
	feed := s.Feed()
	out := feed[:0]
	for _, v := range feed {
		if !v.Seen {
			out = append(out, v)
		}
	}
	return out
}

// FindVideo looks a video up by id across all channels
func (s Subscriptions) FindVideo(videoID string) (Video, bool) {
	for _, ch := range s.channels {
		for _, v := range s.videos[ch.ID] {
			if v.ID == videoID {
				return v, true
			}
		}
	}
	return Video{}, false
}

// IsSeen reports whether videoID is in the canonical seen set
func (s Subscriptions) IsSeen(videoID string) bool {
	_, ok := s.seen[videoID]
	return ok
}

// SeenIDs returns the canonical seen set, sorted
func (s Subscriptions) SeenIDs() []string {
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// WithChannel appends a channel with an empty video list.
// The caller is responsible for rejecting duplicates.
func (s Subscriptions) WithChannel(ch Channel) Subscriptions {
	out := s.clone()
	out.channels = append(out.channels, ch)
	out.videos[ch.ID] = nil
	return out
}

// WithoutChannel drops a channel and its videos; seen ids are kept
func (s Subscriptions) WithoutChannel(id ChannelID) Subscriptions {
	out := s.clone()
	kept := out.channels[:0]
	for _, ch := range out.channels {
		if ch.ID != id {
			kept = append(kept, ch)
		}
	}
	out.channels = kept
	delete(out.videos, id)
	return out
}

// WithVideos replaces a channel's stored video list
func (s Subscriptions) WithVideos(id ChannelID, videos []Video) Subscriptions {
	out := s.clone()
	out.videos[id] = append([]Video(nil), videos...)
	return out
}

// WithVideoFlag sets the Seen flag on every stored copy of videoID without
// touching the canonical set
func (s Subscriptions) WithVideoFlag(videoID string) Subscriptions {
	out := s.clone()
	for id, list := range out.videos {
		for i := range list {
			if list[i].ID == videoID {
				list[i].Seen = true
			}
		}
		out.videos[id] = list
	}
	return out
}

// WithSeen adds videoID to the canonical set and flags stored copies
func (s Subscriptions) WithSeen(videoID string) Subscriptions {
	out := s.WithVideoFlag(videoID)
	out.seen[videoID] = struct{}{}
	return out
}
