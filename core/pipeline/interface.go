package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/retriever/model"
	"golang.org/x/sync/errgroup"
)

// ChunkFunc is a function that splits text into chunk texts in document order
type ChunkFunc func(text string) ([]string, error)

// Pipeline combines chunking and embedding
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder Embedder
	// MaxConcurrency bounds the parallel embedding calls of one document.
	MaxConcurrency int
	// EmbedTimeout bounds every single embedding call, zero means no limit.
	EmbedTimeout time.Duration
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder Embedder, maxConcurrency int) *Pipeline {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Pipeline{
		Chunker:        chunker,
		Embedder:       embedder,
		MaxConcurrency: maxConcurrency,
	}
}

// Process chunks the text of a document and embeds every chunk in document mode.
// The chunks carry deterministic ids and the fixed metadata plus tags.
// The first failing embedding cancels the remaining ones and fails the whole document.
func (p *Pipeline) Process(ctx context.Context, documentID string, text string, tags map[string]string) ([]*model.Chunk, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is empty", model.ErrInvalidInput)
	}
	if err := model.ValidateTags(tags); err != nil {
		return nil, err
	}

	texts, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, model.ErrNoContent
	}

	chunks := make([]*model.Chunk, len(texts))
	for i, t := range texts {
		metadata, err := model.NewChunkMetadata(documentID, i, len(texts), t, tags)
		if err != nil {
			return nil, err
		}
		chunks[i] = &model.Chunk{
			ID:         model.ChunkID(documentID, i),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    t,
			Metadata:   metadata,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			callCtx, cancel := gctx, context.CancelFunc(func() {})
			if p.EmbedTimeout > 0 {
				callCtx, cancel = context.WithTimeout(gctx, p.EmbedTimeout)
			}
			embedding, err := p.Embedder.EmbedDocument(callCtx, chunk.Content)
			cancel()
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
			}
			chunk.Embedding = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return chunks, nil
}
