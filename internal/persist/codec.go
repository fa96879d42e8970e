// Package persist converts subscription state to and from the stored blob.
//
// The blob is a JSON object:
//
//	{"apiKey": "...", "channels": [{"id", "title", "uploadPlaylistId"}], "seen": ["videoId", ...]}
//
// Older blobs may lack channels or seen, may list seen entries as
// {"id", "seen"} objects, or may spell the playlist key uploadsPlaylistId.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
)

// Snapshot is the durable projection of the session
type Snapshot struct {
	APIKey   string
	Channels []domain.Channel
	Seen     []string
}

// State rebuilds the subscription state; video lists start empty
func (s Snapshot) State() domain.Subscriptions {
	return domain.NewSubscriptions(s.Channels, s.Seen)
}

type channelRecord struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	UploadPlaylistID string `json:"uploadPlaylistId"`
}

type blob struct {
	APIKey   string          `json:"apiKey"`
	Channels []channelRecord `json:"channels"`
	Seen     []string        `json:"seen"`
}

// Take projects state into a Snapshot. Seen is the canonical set plus
// every loaded video whose flag is set.
func Take(apiKey string, state domain.Subscriptions) Snapshot {
	seen := make(map[string]struct{})
	for _, id := range state.SeenIDs() {
		seen[id] = struct{}{}
	}
	for _, v := range state.Feed() {
		if v.Seen {
			seen[v.ID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return Snapshot{APIKey: apiKey, Channels: state.Channels(), Seen: ids}
}

// Encode serializes state for storage
func Encode(apiKey string, state domain.Subscriptions) ([]byte, error) {
	return EncodeSnapshot(Take(apiKey, state))
}

// EncodeSnapshot serializes a Snapshot. Channels keep their order; later
// duplicates of an id are dropped.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	out := blob{
		APIKey:   s.APIKey,
		Channels: make([]channelRecord, 0, len(s.Channels)),
		Seen:     append([]string{}, s.Seen...),
	}

	present := make(map[domain.ChannelID]struct{}, len(s.Channels))
	for _, ch := range s.Channels {
		if _, dup := present[ch.ID]; dup || ch.ID.IsZero() {
			continue
		}
		present[ch.ID] = struct{}{}
		out.Channels = append(out.Channels, channelRecord{
			ID:               ch.ID.Value(),
			Title:            ch.Title,
			UploadPlaylistID: ch.UploadsPlaylistID,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.NewStorageError("Failed to encode snapshot", err)
	}
	return data, nil
}

// Decode parses a stored blob. Structural problems yield a storage
// AppError; missing optional fields default to empty.
func Decode(data []byte) (Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Snapshot{}, errors.NewStorageError("Stored data is not a JSON object", err)
	}

	var snap Snapshot

	if raw, ok := present(fields, "apiKey"); ok {
		if err := json.Unmarshal(raw, &snap.APIKey); err != nil {
			return Snapshot{}, errors.NewStorageError("Stored apiKey is not a string", err)
		}
	}

	if raw, ok := present(fields, "channels"); ok {
		channels, err := decodeChannels(raw)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Channels = channels
	}

	raw, ok := present(fields, "seen")
	if !ok {
		raw, ok = present(fields, "seenVideoIds")
	}
	if ok {
		seen, err := decodeSeen(raw)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Seen = seen
	}

	return snap, nil
}

// present returns a field unless it is absent or null
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeChannels(raw json.RawMessage) ([]domain.Channel, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewStorageError("Stored channels are not a list of objects", err)
	}

	channels := make([]domain.Channel, 0, len(items))
	for i, item := range items {
		var id, title, playlist string
		if err := stringField(item, "id", &id); err != nil || id == "" {
			return nil, errors.NewStorageError(fmt.Sprintf("Stored channel %d has no valid id", i), err)
		}
		if err := stringField(item, "title", &title); err != nil {
			return nil, errors.NewStorageError(fmt.Sprintf("Stored channel %s has an invalid title", id), err)
		}
		key := "uploadPlaylistId"
		if _, ok := present(item, key); !ok {
			key = "uploadsPlaylistId"
		}
		if err := stringField(item, key, &playlist); err != nil {
			return nil, errors.NewStorageError(fmt.Sprintf("Stored channel %s has an invalid playlist id", id), err)
		}
		channels = append(channels, domain.Channel{
			ID:                domain.NewChannelID(id),
			Title:             title,
			UploadsPlaylistID: playlist,
		})
	}
	return channels, nil
}

func stringField(item map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := present(item, key)
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

type seenRecord struct {
	ID   string `json:"id"`
	Seen bool   `json:"seen"`
}

// decodeSeen accepts ["id", ...] and [{"id": "...", "seen": true}, ...],
// mixed freely. Object entries with seen false are skipped.
func decodeSeen(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewStorageError("Stored seen list is not a list", err)
	}

	ids := make([]string, 0, len(items))
	for i, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			if id != "" {
				ids = append(ids, id)
			}
			continue
		}

		var rec seenRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, errors.NewStorageError(fmt.Sprintf("Stored seen entry %d is neither an id nor an {id, seen} object", i), err)
		}
		if rec.Seen && rec.ID != "" {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}
