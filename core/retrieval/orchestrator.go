package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/siherrmann/retriever/extract"
	"github.com/siherrmann/retriever/model"
)

// OrchestratorStats counts the outcomes of the orchestrator.
type OrchestratorStats struct {
	RAG            int64 `json:"rag"`
	FullText       int64 `json:"full_text"`
	Errors         int64 `json:"errors"`
	SearchFailures int64 `json:"search_failures"`
	ThinResults    int64 `json:"thin_results"`
}

// Orchestrator produces the content for generation. It prefers indexed retrieval and falls back
// to a full text extraction if the document is not indexed, the search fails or its result is too short.
// It never returns an error, failures end in a result with source error.
type Orchestrator struct {
	engine    *Engine
	extractor extract.Extractor
	config    model.RetrievalConfig
	log       *slog.Logger

	rag            atomic.Int64
	fullText       atomic.Int64
	failed         atomic.Int64
	searchFailures atomic.Int64
	thinResults    atomic.Int64
}

// NewOrchestrator creates an orchestrator. The extractor may be nil, then there is no fallback.
func NewOrchestrator(engine *Engine, extractor extract.Extractor, config model.RetrievalConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		engine:    engine,
		extractor: extractor,
		config:    config.WithDefaults(),
		log:       logger,
	}
}

// GetContentForGeneration returns up to chunkCount chunks of the document selected by the task query,
// or the full text of the document.
func (o *Orchestrator) GetContentForGeneration(ctx context.Context, doc *model.Document, task model.TaskType, chunkCount int) model.RetrievalResult {
	return o.Retrieve(ctx, doc, model.RetrievalQuery{
		K:        chunkCount,
		TaskType: task,
	})
}

// Retrieve is GetContentForGeneration for a free query. A question replaces the task query, e.g. for chat.
func (o *Orchestrator) Retrieve(ctx context.Context, doc *model.Document, query model.RetrievalQuery) model.RetrievalResult {
	if doc == nil {
		o.failed.Add(1)
		return model.NewErrorResult(fmt.Errorf("%w: no document", model.ErrInvalidInput))
	}
	documentID := doc.DocumentID()
	query.DocumentID = documentID
	if query.K <= 0 {
		query.K = o.config.DefaultChunkCount
	}

	if doc.HasEmbeddings() {
		result, err := o.retrieveIndexed(ctx, query)
		if err == nil {
			o.rag.Add(1)
			return result
		}
		if errors.Is(err, model.ErrNoContent) {
			o.thinResults.Add(1)
			o.log.Info("Retrieved content below quality floor, falling back to full text", slog.String("document_id", documentID), slog.String("reason", err.Error()))
		} else {
			o.searchFailures.Add(1)
			o.log.Warn("Vector search failed, falling back to full text", slog.String("document_id", documentID), slog.Any("error", err))
		}
	}

	result, err := o.retrieveFullText(ctx, doc)
	if err != nil {
		o.failed.Add(1)
		o.log.Error("Could not retrieve content", slog.String("document_id", documentID), slog.Any("error", err))
		return model.NewErrorResult(fmt.Errorf("could not retrieve content for document %s: %w", documentID, err))
	}
	o.fullText.Add(1)
	return result
}

func (o *Orchestrator) retrieveIndexed(ctx context.Context, query model.RetrievalQuery) (model.RetrievalResult, error) {
	hits, err := o.engine.Search(ctx, query)
	if err != nil {
		return model.RetrievalResult{}, err
	}

	content, scores := Assemble(hits)
	if len(hits) == 0 || len(content) < o.config.MinContentLength {
		return model.RetrievalResult{}, thinResultError(len(content), o.config.MinContentLength)
	}

	metadata := map[string]string{
		"retrieval_method": model.RetrievalMethodVector,
		"task_context":     string(query.TaskType),
		"chunks_requested": strconv.Itoa(query.K),
	}
	if question := strings.TrimSpace(query.Question); question != "" {
		metadata["question"] = question
	}

	return model.RetrievalResult{
		Content:          content,
		Source:           model.SourceRAG,
		ChunksUsed:       len(hits),
		SimilarityScores: scores,
		Metadata:         metadata,
	}, nil
}

func (o *Orchestrator) retrieveFullText(ctx context.Context, doc *model.Document) (model.RetrievalResult, error) {
	if o.extractor == nil {
		return model.RetrievalResult{}, fmt.Errorf("%w: no extractor configured", model.ErrExtraction)
	}

	extractCtx, cancel := context.WithTimeout(ctx, o.config.ExtractTimeout)
	defer cancel()
	text, err := o.extractor.Extract(extractCtx, doc.ContentLocator, doc.ContentType)
	if err != nil {
		return model.RetrievalResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return model.RetrievalResult{}, fmt.Errorf("%w: extraction returned no text", model.ErrExtraction)
	}

	return model.RetrievalResult{
		Content:    text,
		Source:     model.SourceFullText,
		ChunksUsed: 0,
		Metadata: map[string]string{
			"retrieval_method": model.RetrievalMethodExtraction,
			"content_type":     string(doc.ContentType),
		},
	}, nil
}

// Stats returns a snapshot of the outcome counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	return OrchestratorStats{
		RAG:            o.rag.Load(),
		FullText:       o.fullText.Load(),
		Errors:         o.failed.Load(),
		SearchFailures: o.searchFailures.Load(),
		ThinResults:    o.thinResults.Load(),
	}
}
