package loader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		key    string
		format model.DocumentFormat
		ok     bool
	}{
		{"a.txt", model.DocumentFormatText, true},
		{"dir/B.MD", model.DocumentFormatMarkdown, true},
		{"notes.markdown", model.DocumentFormatMarkdown, true},
		{"report.pdf", model.DocumentFormatPDF, true},
		{"data.csv", model.DocumentFormatText, true},
		{"photo.jpg", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		format, ok := FormatOf(tt.key)
		require.Equal(t, tt.ok, ok, tt.key)
		require.Equal(t, tt.format, format, tt.key)
	}
}

func TestParseMarkdown(t *testing.T) {
	src := "# Heading\n\nFirst line\nsecond line with [a link](http://example.com).\n\n- item one\n- item two\n\n```go\nfmt.Println(\"hi\")\n```\n"
	text, err := Parse(model.DocumentFormatMarkdown, []byte(src))
	require.NoError(t, err)
	require.Contains(t, text, "Heading")
	require.Contains(t, text, "First line\nsecond line with a link.")
	require.Contains(t, text, "item one")
	require.Contains(t, text, "item two")
	require.Contains(t, text, `fmt.Println("hi")`)
	require.NotContains(t, text, "http://example.com")
	require.NotContains(t, text, "```")
}

func TestParsePlainTextDropsInvalidUTF8(t *testing.T) {
	text, err := Parse(model.DocumentFormatText, []byte("ok\xffok"))
	require.NoError(t, err)
	require.Equal(t, "okok", text)
}

func TestParsePDFRejectsGarbage(t *testing.T) {
	_, err := Parse(model.DocumentFormatPDF, []byte("definitely not a pdf"))
	require.Error(t, err)
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := Parse(model.DocumentFormat("docx"), []byte("x"))
	require.Error(t, err)
}
