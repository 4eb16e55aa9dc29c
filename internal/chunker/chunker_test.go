package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		want      []string
	}{
		{
			name:      "empty input",
			text:      "",
			maxLength: 100,
			want:      nil,
		},
		{
			name:      "whitespace only",
			text:      "   \n\t  ",
			maxLength: 100,
			want:      nil,
		},
		{
			name:      "single short word",
			text:      "hello",
			maxLength: 100,
			want:      []string{"hello"},
		},
		{
			name:      "fits in one fragment",
			text:      "the quick brown fox",
			maxLength: 100,
			want:      []string{"the quick brown fox"},
		},
		{
			name:      "closes fragment at boundary",
			text:      "a b c d e",
			maxLength: 3,
			want:      []string{"a", "b", "c", "d", "e"},
		},
		{
			name:      "pairs under a wider boundary",
			text:      "aa bb cc",
			maxLength: 6,
			want:      []string{"aa bb", "cc"},
		},
		{
			name:      "oversized token emitted verbatim",
			text:      "tiny supercalifragilistic word",
			maxLength: 10,
			want:      []string{"tiny", "supercalifragilistic", "word"},
		},
		{
			name:      "collapses interior whitespace",
			text:      "one\n\ntwo\tthree",
			maxLength: 100,
			want:      []string{"one two three"},
		},
		{
			name:      "non-positive max falls back to default",
			text:      "a b",
			maxLength: 0,
			want:      []string{"a b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.text, tt.maxLength))
		})
	}
}

func TestSplitPreservesEveryWord(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit ", 40)
	fragments := Split(text, 80)
	require.NotEmpty(t, fragments)

	rejoined := strings.Fields(strings.Join(fragments, " "))
	assert.Equal(t, strings.Fields(text), rejoined)
}

func TestSplitDeterministic(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	first := Split(text, 12)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Split(text, 12))
	}
}
