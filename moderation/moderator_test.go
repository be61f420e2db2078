package moderation

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// Spaces are noise too, so dictionary words must not appear across word
// boundaries of the inputs below.
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"spam", "scam", "idiot"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Word inside a chat line",
			input:    "stop the spam please",
			expected: "stop the **** please",
			words:    []string{"spam"},
		},
		{
			name:     "Repeated word keeps its spacing",
			input:    "spam spam spam",
			expected: "**** **** ****",
			words:    []string{"spam", "spam", "spam"},
		},
		{
			name:     "Leet speak",
			input:    "buy $p4m now",
			expected: "buy **** now",
			words:    []string{"spam"},
		},
		{
			name:     "Leet speak split by dots masks the dots too",
			input:    "you 1.d.1.0.t",
			expected: "you *********",
			words:    []string{"idiot"},
		},
		{
			name:     "Uppercase and separators",
			input:    "S-C-A-M alert, I D I O T",
			expected: "******* alert, *********",
			words:    []string{"scam", "idiot"},
		},
		{
			name:     "Accented text around a match",
			input:    "ça c'est du spam",
			expected: "ça c'est du ****",
			words:    []string{"spam"},
		},
		{
			name:     "Trailing punctuation is kept",
			input:    "what a scam.",
			expected: "what a ****.",
			words:    []string{"scam"},
		},
		{
			name:     "Nothing to censor",
			input:    "see you in the general room",
			expected: "see you in the general room",
			words:    nil,
		},
		{
			name:     "Empty message",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise and not Leet Speak associated
	dictionary := []string{"...", ",,,", "", "spam"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	// Then the sentence is censored
	input := "No spam here"
	expected := "No **** here"
	content, words := mod.Censor(input)
	req.Equal(expected, content)
	req.Equal([]string{"spam"}, words)

	// Then real noise is uncensored
	input = "Hello ..."
	expected = "Hello ..."
	content, words = mod.Censor(input)
	req.Equal(expected, content)
	req.Nil(words)
}

func TestModerator_Empty_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given no censored word at all
	mod, err := NewModerator(nil, replacementChar, log)
	req.NoError(err)

	// Then every text goes through untouched
	content, words := mod.Censor("spam scam idiot")
	req.Equal("spam scam idiot", content)
	req.Nil(words)
}

func BenchmarkModerator_Censor(b *testing.B) {
	dictionary := make([]string, 0, 10_000)
	for i := range 10_000 {
		dictionary = append(dictionary, fmt.Sprintf("word%dx", i))
	}
	mod, err := NewModerator(dictionary, replacementChar, slog.Default())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for range b.N {
		mod.Censor("hey everyone, word42x, see you later in the general room")
	}
}
