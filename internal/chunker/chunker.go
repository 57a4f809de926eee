package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xxxsen/docqa/internal/model"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 20
)

// Chunker splits documents into rune windows of at most size runes, each
// window starting overlap runes before the end of the previous one.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

func ChunkID(documentID string, offset int) string {
	return fmt.Sprintf("%s#%08d", documentID, offset)
}

func (c *Chunker) Split(doc *model.Document) []model.Chunk {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	runes := []rune(doc.Text)
	n := len(runes)
	var chunks []model.Chunk
	start := 0
	for start < n {
		end := c.windowEnd(runes, start)
		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, c.newChunk(doc, text, start, len(chunks)))
		}
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// windowEnd prefers to cut after whitespace found in the last quarter of the
// window so words are kept whole.
func (c *Chunker) windowEnd(runes []rune, start int) int {
	end := start + c.size
	if end >= len(runes) {
		return len(runes)
	}
	floor := start + c.size*3/4
	if floor <= start+c.overlap {
		floor = start + c.overlap + 1
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func (c *Chunker) newChunk(doc *model.Document, text string, offset, position int) model.Chunk {
	metadata := make(map[string]interface{}, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadata["document_id"] = doc.ID
	metadata["offset"] = offset
	metadata["position"] = position
	return model.Chunk{
		ID:         ChunkID(doc.ID, offset),
		DocumentID: doc.ID,
		Text:       text,
		Offset:     offset,
		Position:   position,
		Metadata:   metadata,
	}
}
