package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// Embedder turns text into vectors of a fixed dimension.
// Documents and queries are embedded in separate modes, asymmetric models
// embed them differently. Implementations never return an empty or zero vector.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// IndexReference identifies the embedding space an index was built in.
// Changing the model or the dimension invalidates every stored vector.
func IndexReference(e Embedder) string {
	return fmt.Sprintf("%s@%d", e.Model(), e.Dimensions())
}

// checkEmbedding validates a vector returned by a provider.
func checkEmbedding(embedding []float32, dimensions int) ([]float32, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding generated", model.ErrProvider)
	}
	if dimensions > 0 && len(embedding) != dimensions {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", model.ErrProvider, dimensions, len(embedding))
	}

	var norm float64
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: embedding contains invalid values", model.ErrProvider)
		}
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero embedding generated", model.ErrProvider)
	}

	return embedding, nil
}

// HugotEmbedder runs a sentence transformer model locally.
// Asymmetric models (e5, bge) are used with a document and a query prefix.
type HugotEmbedder struct {
	model          string
	dimensions     int
	documentPrefix string
	queryPrefix    string

	mu      sync.Mutex
	run     func(texts []string) ([][]float32, error)
	destroy func() error
}

// HugotOptions configures a HugotEmbedder.
type HugotOptions struct {
	Model          string
	ModelDir       string // Download cache, defaults to ./models
	OnnxFilePath   string
	Dimensions     int
	DocumentPrefix string
	QueryPrefix    string
}

// DefaultEmbedder creates an embedder using a real sentence transformer model
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings
func DefaultEmbedder() (*HugotEmbedder, error) {
	return NewHugotEmbedder(HugotOptions{
		Model:        "sentence-transformers/all-MiniLM-L6-v2",
		OnnxFilePath: "onnx/model.onnx",
		Dimensions:   384,
	})
}

// NewHugotEmbedder downloads the model if needed and starts a hugot session with the Go backend.
func NewHugotEmbedder(opts HugotOptions) (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(opts.ModelDir, opts.Model, opts.OnnxFilePath)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &HugotEmbedder{
		model:          opts.Model,
		dimensions:     opts.Dimensions,
		documentPrefix: opts.DocumentPrefix,
		queryPrefix:    opts.QueryPrefix,
		run: func(texts []string) ([][]float32, error) {
			result, err := sentencePipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
		destroy: session.Destroy,
	}, nil
}

// EmbedDocument embeds a chunk for storage.
func (e *HugotEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.documentPrefix+text)
}

// EmbedQuery embeds a search query.
func (e *HugotEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.queryPrefix+text)
}

func (e *HugotEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProvider, err)
	}

	e.mu.Lock()
	embeddings, err := e.run([]string{text})
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate embedding: %w", model.ErrProvider, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding generated", model.ErrProvider)
	}

	return checkEmbedding(embeddings[0], e.dimensions)
}

// Dimensions returns the configured vector size.
func (e *HugotEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model name.
func (e *HugotEmbedder) Model() string {
	return e.model
}

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	if e.destroy == nil {
		return nil
	}
	return e.destroy()
}
