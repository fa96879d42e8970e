package resolver

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subfeed/internal/domain"
	"subfeed/pkg/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		kind      Kind
		channelID string
		handle    string
	}{
		{"direct id", "https://example.com/channel/UC123", Direct, "UC123", ""},
		{"direct id with tab", "https://www.youtube.com/channel/UC123/videos", Direct, "UC123", ""},
		{"direct id with query", "https://www.youtube.com/channel/UC123?view=0#top", Direct, "UC123", ""},
		{"direct id trailing slash", "https://example.com/channel/UC123/", Direct, "UC123", ""},
		{"no scheme", "www.youtube.com/channel/UC123", Direct, "UC123", ""},
		{"surrounding spaces", "  https://example.com/channel/UC123  ", Direct, "UC123", ""},
		{"legacy custom url", "https://example.com/c/somehandle", Handle, "", "somehandle"},
		{"user url", "http://www.youtube.com/user/someone", Handle, "", "someone"},
		{"at handle", "https://www.youtube.com/@somebody/featured", Handle, "", "@somebody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, target.Kind)
			assert.Equal(t, domain.NewChannelID(tt.channelID), target.ChannelID)
			assert.Equal(t, tt.handle, target.Handle)
		})
	}
}

func TestResolve_ParseFailure(t *testing.T) {
	inputs := []string{
		"not a url",
		"",
		"   ",
		"https://example.com",
		"https://example.com/",
		"https://example.com/watch?v=abc",
		"https://example.com/channel",
		"https://example.com/channel/",
		"https://example.com/channel//UC123",
		"https://example.com/c/",
		"https://example.com/@",
		"ftp://example.com/channel/UC123",
		"mailto:someone@example.com",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Resolve(input)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, stderrors.As(err, &parseErr))
			assert.Equal(t, input, parseErr.Input)
			assert.True(t, errors.IsType(err, errors.ErrorTypeURLParse))
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Input: "nope"}
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "handle", Handle.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
