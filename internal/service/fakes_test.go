package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/pkg/retry"
)

var vocabulary = []string{"ketanji", "brown", "jackson", "judge", "economy", "inflation", "jobs", "ukraine", "putin", "vaccine"}

// keywordEmbedder counts vocabulary words; the last dimension is a constant
// so that no vector is zero.
type keywordEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures map[string]int
	err      error
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	for marker, left := range e.failures {
		if left > 0 && strings.Contains(text, marker) {
			e.failures[marker] = left - 1
			e.mu.Unlock()
			return nil, e.err
		}
	}
	e.mu.Unlock()
	vec := make([]float32, len(vocabulary)+1)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for i, v := range vocabulary {
			if word == v {
				vec[i]++
			}
		}
	}
	vec[len(vocabulary)] = 0.1
	return vec, nil
}

func (e *keywordEmbedder) ModelName() string {
	return "fake:keyword"
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	errs    []error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	return g.answer, nil
}

var _ ai.IEmbedder = (*keywordEmbedder)(nil)
var _ ai.IGenerator = (*recordingGenerator)(nil)

var fastRetry = retry.Config{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}
