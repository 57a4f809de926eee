package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
)

const maxFileSize = 64 << 20

// Loader reads every supported file of a Source into documents. The document
// id is the file key relative to the source root, so it stays stable across
// runs.
type Loader struct {
	source Source
}

func New(source Source) *Loader {
	return &Loader{source: source}
}

func (l *Loader) Load(ctx context.Context) ([]model.Document, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("source", l.source.Type()))
	entries, err := l.source.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(entries))
	for _, entry := range entries {
		format, ok := FormatOf(entry.Key)
		if !ok {
			logger.Warn("skip unsupported file", zap.String("key", entry.Key))
			continue
		}
		if entry.Size > maxFileSize {
			logger.Warn("skip oversized file", zap.String("key", entry.Key), zap.Int64("size", entry.Size))
			continue
		}
		doc, err := l.loadOne(ctx, entry, format)
		if err != nil {
			logger.Warn("skip unreadable file", zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		// emptied files stay in the batch so their old chunks get dropped
		if strings.TrimSpace(doc.Text) == "" {
			logger.Warn("empty file", zap.String("key", entry.Key))
			doc.Text = ""
		}
		docs = append(docs, *doc)
	}
	logger.Info("documents loaded", zap.Int("files", len(entries)), zap.Int("documents", len(docs)))
	return docs, nil
}

func (l *Loader) loadOne(ctx context.Context, entry Entry, format model.DocumentFormat) (*model.Document, error) {
	rc, err := l.source.Open(ctx, entry.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Key, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", entry.Key, maxFileSize)
	}
	content, err := Parse(format, data)
	if err != nil {
		return nil, err
	}
	return &model.Document{
		ID:       entry.Key,
		Text:     content,
		Format:   format,
		Metadata: fileMetadata(l.source.Type(), entry, len(data)),
	}, nil
}

func fileMetadata(source string, entry Entry, size int) map[string]interface{} {
	ext := path.Ext(entry.Key)
	fileType := mime.TypeByExtension(ext)
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	meta := map[string]interface{}{
		"file_path": entry.Key,
		"file_name": path.Base(entry.Key),
		"file_type": fileType,
		"file_size": size,
		"source":    source,
	}
	if !entry.ModTime.IsZero() {
		meta["last_modified_date"] = entry.ModTime.UTC().Format(time.DateOnly)
	}
	return meta
}
