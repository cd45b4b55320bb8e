package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckWebURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want error
	}{
		{"trello board", "https://trello.com/b/abc123/guadalajara-open", nil},
		{"plain http", "http://example.com/venue", nil},
		{"surrounding spaces", "  https://trello.com/b/x  ", nil},
		{"no scheme", "trello.com/b/abc", ErrURLScheme},
		{"ftp", "ftp://example.com", ErrURLScheme},
		{"no host", "https://", ErrURLHost},
		{"malformed", "ht!tp://example.com", ErrURLMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, CheckWebURL(tt.url), tt.want)
		})
	}
}

func TestCheckWCACompetitionURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want error
	}{
		{"competition page", "https://www.worldcubeassociation.org/competitions/GuadalajaraOpen2027", nil},
		{"without www and trailing slash", "https://worldcubeassociation.org/competitions/CDMXSpeedcubing2027/", nil},
		{"competitions index", "https://www.worldcubeassociation.org/competitions/", ErrURLNotWCA},
		{"registration subpage", "https://www.worldcubeassociation.org/competitions/X2027/register", ErrURLNotWCA},
		{"other host", "https://trello.com/competitions/X2027", ErrURLNotWCA},
		{"not a url", "worldcubeassociation.org/competitions/X2027", ErrURLScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, CheckWCACompetitionURL(tt.url), tt.want)
		})
	}
}
