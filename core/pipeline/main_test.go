package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

const testDimensions = 4

var errProviderDown = errors.New("provider down")

// stubEmbedder embeds text by its length and can fail on texts containing failOn.
type stubEmbedder struct {
	failOn  string
	calls   atomic.Int64
	mu      sync.Mutex
	queries []string
}

func (e *stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, errProviderDown
	}
	return []float32{float32(len(text)), 1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	return []float32{0, 0, 0, 1}, nil
}

func (e *stubEmbedder) Dimensions() int { return testDimensions }
func (e *stubEmbedder) Model() string   { return "stub" }
