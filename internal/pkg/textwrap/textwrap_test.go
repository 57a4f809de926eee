package textwrap

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestFill(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{name: "empty", text: "  \n ", width: 10, want: ""},
		{name: "fits", text: "hello world", width: 20, want: "hello world"},
		{name: "breaks", text: "aaa bbb ccc", width: 7, want: "aaa bbb\nccc"},
		{name: "collapses whitespace", text: "a\n\nb\t c", width: 80, want: "a b c"},
		{name: "splits long word", text: "abcdefghij", width: 4, want: "abcd\nefgh\nij"},
		{name: "long word after text", text: "xy abcdefgh", width: 4, want: "xy\nabcd\nefgh"},
		{name: "no width", text: "a  b", width: 0, want: "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Fill(tt.text, tt.width))
		})
	}
}

func TestFillLineWidth(t *testing.T) {
	text := strings.Repeat("Ketanji Brown Jackson ", 40)
	for _, line := range strings.Split(Fill(text, 100), "\n") {
		require.LessOrEqual(t, utf8.RuneCountInString(line), 100)
		require.NotEmpty(t, line)
	}
}
