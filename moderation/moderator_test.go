package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-gateway/internal"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The").
func TestModeratorCensor(t *testing.T) {
	req := require.New(t)
	log := internal.GetLoggerFromString("DEBUG")
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple word, spacing preserved",
			input:    "The badger is here",
			expected: "The ****** is here",
		},
		{
			name:     "multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
		},
		{
			name:     "leet speak substitution",
			input:    "a sn4ke appears",
			expected: "a ***** appears",
		},
		{
			name:     "separators inside the word are masked with it",
			input:    "mu.sh-room",
			expected: "**********",
		},
		{
			name:     "mixed case",
			input:    "BaDgEr",
			expected: "******",
		},
		{
			name:     "clean message untouched",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "empty message",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModeratorEmptyDictionary(t *testing.T) {
	req := require.New(t)
	log := internal.GetLoggerFromString("DEBUG")

	mod, err := NewModerator(nil, replacementChar, log)
	req.NoError(err)
	req.Equal("badger", mod.Censor("badger"))
}
