package ai

import (
	"fmt"

	"github.com/xxxsen/docqa/internal/config"
)

func BuildEmbedder(items []config.ProviderConfig) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, len(items))
	for i, item := range items {
		p, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %d (%s): %w", i, item.Provider, err)
		}
		e := NewEmbedder(p, item.Model)
		entries = append(entries, EmbedderEntry{Name: e.ModelName(), Embedder: e})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no embedder configured: %w", ErrUnavailable)
	}
	return NewGroupEmbedder(entries), nil
}

func BuildGenerator(items []config.ProviderConfig) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(items))
	for i, item := range items {
		p, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %d (%s): %w", i, item.Provider, err)
		}
		entries = append(entries, GeneratorEntry{Name: p.Name() + ":" + item.Model, Generator: NewGenerator(p, item.Model)})
	}
	return NewGroupGenerator(entries), nil
}
