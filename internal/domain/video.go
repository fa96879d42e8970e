package domain

import (
	"strings"
	"time"
)

// Video represents one upload of a subscribed channel
type Video struct {
	ID           string
	ChannelID    ChannelID
	PublishedAt  time.Time
	ThumbnailURL string
	Title        string
	Description  string
	// Seen is the local watched marker; never taken from the catalog
	Seen bool
}

// PlayerURL builds the embeddable player address for a video
func PlayerURL(base, videoID string) string {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + videoID
}
