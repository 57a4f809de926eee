package model

type DocumentFormat string

const (
	DocumentFormatText     DocumentFormat = "text"
	DocumentFormatMarkdown DocumentFormat = "markdown"
	DocumentFormatPDF      DocumentFormat = "pdf"
)

type Document struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Format   DocumentFormat         `json:"format"`
	Metadata map[string]interface{} `json:"metadata"`
}
