package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const qaPromptTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// Synthesizer turns a query plus retrieved passages into an answer.
type Synthesizer struct {
	gen     IGenerator
	timeout time.Duration
}

func NewSynthesizer(gen IGenerator, timeout time.Duration) *Synthesizer {
	return &Synthesizer{gen: gen, timeout: timeout}
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, passages []string) (string, error) {
	if s == nil || s.gen == nil {
		return "", fmt.Errorf("synthesizer not configured: %w", ErrUnavailable)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.gen.Generate(ctx, BuildQAPrompt(query, passages))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp) == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return resp, nil
}

func BuildQAPrompt(query string, passages []string) string {
	return fmt.Sprintf(qaPromptTemplate, strings.Join(passages, "\n\n"), query)
}
