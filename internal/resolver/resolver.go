// Package resolver classifies user-entered channel URLs.
//
// It performs no I/O: a recognized handle still needs a catalog search
// before it becomes a channel id, and a direct id is not checked for
// existence here.
package resolver

import (
	"net/url"
	"strings"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
)

// Kind tells whether a Target already names a channel or needs a search
type Kind int

const (
	// Direct targets carry a channel id
	Direct Kind = iota + 1
	// Handle targets carry a display handle to search for
	Handle
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Handle:
		return "handle"
	default:
		return "unknown"
	}
}

// Target is the result of a successful Resolve
type Target struct {
	Kind      Kind
	ChannelID domain.ChannelID
	Handle    string
}

// ParseError is returned for input that is not a recognized channel URL
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return errors.NewURLParseError(e.Input).Message
}

// Unwrap exposes the url_parse AppError
func (e *ParseError) Unwrap() error {
	return errors.NewURLParseError(e.Input)
}

// Resolve classifies raw as a direct channel id or a handle.
//
// Recognized paths are /channel/<id>, /c/<handle>, /user/<name> and
// /@<handle>. Anything after the id or handle (tabs such as /videos, query
// strings, fragments) is ignored. A missing scheme is tolerated when the
// input otherwise looks like host/path.
func Resolve(raw string) (Target, error) {
	input := strings.TrimSpace(raw)
	if input == "" || strings.ContainsAny(input, " \t\n") {
		return Target{}, &ParseError{Input: raw}
	}

	candidate := input
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return Target{}, &ParseError{Input: raw}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, &ParseError{Input: raw}
	}

	segments := splitPath(u.Path)
	if len(segments) == 0 {
		return Target{}, &ParseError{Input: raw}
	}

	first := segments[0]
	switch {
	case first == "channel" && len(segments) > 1:
		return Target{Kind: Direct, ChannelID: domain.NewChannelID(segments[1])}, nil
	case (first == "c" || first == "user") && len(segments) > 1:
		return Target{Kind: Handle, Handle: segments[1]}, nil
	case strings.HasPrefix(first, "@") && len(first) > 1:
		return Target{Kind: Handle, Handle: first}, nil
	}
	return Target{}, &ParseError{Input: raw}
}

// splitPath returns the path segments. An empty second segment (as in
// /channel//x) truncates the result so a later segment is never taken as
// the id.
func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	if len(parts) > 1 && parts[1] == "" {
		return parts[:1]
	}
	return parts
}
