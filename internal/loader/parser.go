package loader

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/docqa/internal/model"
)

type parseFunc func(data []byte) (string, error)

var formatByExt = map[string]model.DocumentFormat{
	".txt":      model.DocumentFormatText,
	".text":     model.DocumentFormatText,
	".log":      model.DocumentFormatText,
	".csv":      model.DocumentFormatText,
	".json":     model.DocumentFormatText,
	".md":       model.DocumentFormatMarkdown,
	".markdown": model.DocumentFormatMarkdown,
	".pdf":      model.DocumentFormatPDF,
}

var parsers = map[model.DocumentFormat]parseFunc{
	model.DocumentFormatText:     parsePlainText,
	model.DocumentFormatMarkdown: parseMarkdown,
	model.DocumentFormatPDF:      parsePDF,
}

func FormatOf(key string) (model.DocumentFormat, bool) {
	format, ok := formatByExt[strings.ToLower(path.Ext(key))]
	return format, ok
}

func Parse(format model.DocumentFormat, data []byte) (string, error) {
	fn, ok := parsers[format]
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return fn(data)
}

func parsePlainText(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}

func parseMarkdown(data []byte) (string, error) {
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)
	var parts []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var txt string
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			txt = segmentsText(n, data)
		default:
			txt = extractText(n, data)
		}
		if txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func segmentsText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimSpace(sb.String())
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString("\n")
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func parsePDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
