package domain

// ChannelID is the platform's stable identifier for a channel.
// It is kept distinct from plain strings so it cannot be mixed up with
// display handles or video ids.
type ChannelID struct {
	value string
}

// NewChannelID wraps a raw platform identifier
func NewChannelID(raw string) ChannelID {
	return ChannelID{value: raw}
}

// Value unwraps the identifier
func (id ChannelID) Value() string {
	return id.value
}

// IsZero reports whether the identifier is empty
func (id ChannelID) IsZero() bool {
	return id.value == ""
}

// Channel represents a subscribed channel
type Channel struct {
	ID                ChannelID
	Title             string
	UploadsPlaylistID string
}
