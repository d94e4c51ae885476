package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/extract"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"golang.org/x/sync/errgroup"
)

// MetadataStore records the index state of documents.
type MetadataStore interface {
	SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error)
	UpdateIndexState(ctx context.Context, rid uuid.UUID, state model.IndexState, reference string, chunkCount int) (*model.Document, error)
}

var _ MetadataStore = (database.DocumentsDBHandlerFunctions)(nil)

// IndexRequest is one document and its text to index.
type IndexRequest struct {
	Document *model.Document
	Text     string
	Tags     map[string]string
}

// IndexOutcome reports a finished indexing attempt.
type IndexOutcome struct {
	Document      *model.Document
	ChunksDeleted int
	ChunksAdded   int
	Err           error
}

// ReindexStats counts the results of ReindexAll.
type ReindexStats struct {
	Total     int
	Succeeded int
	Failed    int
}

// Indexer moves documents through the indexing states.
// Indexing of one document is serialized, different documents are indexed in parallel.
type Indexer struct {
	pipeline *pipeline.Pipeline
	index    database.VectorIndex
	store    MetadataStore
	config   model.RetrievalConfig
	locks    *keyedMutex
	log      *slog.Logger
}

// NewIndexer creates an indexer chunking with the configured window.
func NewIndexer(embedder pipeline.Embedder, index database.VectorIndex, store MetadataStore, config model.RetrievalConfig, logger *slog.Logger) *Indexer {
	config = config.WithDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := pipeline.NewPipeline(
		pipeline.SentenceWindowChunker(config.ChunkSize, config.ChunkOverlap),
		embedder,
		config.MaxConcurrentEmbeddings,
	)
	p.EmbedTimeout = config.EmbedTimeout
	return &Indexer{
		pipeline: p,
		index:    index,
		store:    store,
		config:   config,
		locks:    newKeyedMutex(),
		log:      logger,
	}
}

// Pipeline returns the chunking and embedding pipeline of the indexer.
func (x *Indexer) Pipeline() *pipeline.Pipeline {
	return x.pipeline
}

// IndexDocument chunks, embeds and stores the text of doc, replacing earlier chunks.
// The document ends in state indexed, or index_failed if any step fails.
func (x *Indexer) IndexDocument(ctx context.Context, doc *model.Document, text string, tags map[string]string) (*IndexOutcome, error) {
	if doc == nil || doc.RID == uuid.Nil {
		return nil, helper.NewError("index document", fmt.Errorf("%w: document without id", model.ErrInvalidInput))
	}
	documentID := doc.DocumentID()

	unlock := x.locks.Lock(documentID)
	defer unlock()

	current, err := x.store.SelectDocument(ctx, doc.RID)
	if err != nil {
		return nil, helper.NewError("select document", err)
	}
	if !current.IndexState.CanTransition(model.IndexStateIndexing) {
		return nil, helper.NewError("index document", fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.IndexState, model.IndexStateIndexing))
	}

	_, err = x.store.UpdateIndexState(ctx, doc.RID, model.IndexStateIndexing, current.IndexReference, current.ChunkCount)
	if err != nil {
		return nil, helper.NewError("mark indexing", err)
	}
	x.log.Info("Indexing document", slog.String("document_id", documentID), slog.Int("length", len(text)))

	if tags == nil {
		tags = current.Tags()
	}
	deleted, added, indexErr := x.replace(ctx, documentID, text, tags)

	// The terminal state is stored even if the caller context is done,
	// a document must never stay in indexing.
	doneCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.config.StoreTimeout)
	defer cancel()

	if indexErr == nil {
		indexed, err := x.store.UpdateIndexState(doneCtx, doc.RID, model.IndexStateIndexed, pipeline.IndexReference(x.pipeline.Embedder), added)
		if err == nil {
			x.log.Info("Indexed document", slog.String("document_id", documentID), slog.Int("chunks", added), slog.Int("replaced", deleted))
			*doc = *indexed
			return &IndexOutcome{
				Document:      indexed,
				ChunksDeleted: deleted,
				ChunksAdded:   added,
			}, nil
		}
		indexErr = fmt.Errorf("mark indexed: %w", err)
	}

	failed, err := x.store.UpdateIndexState(doneCtx, doc.RID, model.IndexStateFailed, "", 0)
	if err != nil {
		x.log.Error("Error storing failed index state", slog.String("document_id", documentID), slog.Any("error", err))
		failed = current
	}
	x.log.Error("Error indexing document", slog.String("document_id", documentID), slog.Any("error", indexErr))
	return &IndexOutcome{Document: failed, ChunksDeleted: deleted, ChunksAdded: added, Err: indexErr}, helper.NewError("index document", indexErr)
}

func (x *Indexer) replace(ctx context.Context, documentID string, text string, tags map[string]string) (int, int, error) {
	chunks, err := x.pipeline.Process(ctx, documentID, text, tags)
	if err != nil {
		return 0, 0, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, x.config.StoreTimeout)
	defer cancel()
	return x.index.ReplaceDocumentChunks(storeCtx, documentID, chunks)
}

// IndexDocuments indexes the requests in parallel, at most MaxConcurrentDocuments at once.
// A failing document does not stop the others, the outcomes are returned in request order.
func (x *Indexer) IndexDocuments(ctx context.Context, requests []IndexRequest) []*IndexOutcome {
	outcomes := make([]*IndexOutcome, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.config.MaxConcurrentDocuments)
	for i, req := range requests {
		g.Go(func() error {
			outcome, err := x.IndexDocument(gctx, req.Document, req.Text, req.Tags)
			if outcome == nil {
				outcome = &IndexOutcome{Document: req.Document}
			}
			outcome.Err = err
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// DeleteDocument removes the chunks of doc and resets it to not_indexed.
func (x *Indexer) DeleteDocument(ctx context.Context, doc *model.Document) (int, error) {
	if doc == nil || doc.RID == uuid.Nil {
		return 0, helper.NewError("delete document", fmt.Errorf("%w: document without id", model.ErrInvalidInput))
	}
	documentID := doc.DocumentID()

	unlock := x.locks.Lock(documentID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, x.config.StoreTimeout)
	defer cancel()
	deleted, err := x.index.DeleteChunksByDocument(storeCtx, documentID)
	if err != nil {
		return 0, helper.NewError("delete chunks", err)
	}

	updated, err := x.store.UpdateIndexState(ctx, doc.RID, model.IndexStateNotIndexed, "", 0)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return deleted, helper.NewError("reset index state", err)
	}
	if updated != nil {
		*doc = *updated
	}

	x.log.Info("Deleted document chunks", slog.String("document_id", documentID), slog.Int("deleted", deleted))
	return deleted, nil
}

// ReindexAll extracts the text of every stored document again and indexes it.
func (x *Indexer) ReindexAll(ctx context.Context, extractor extract.Extractor, pageSize int) (*ReindexStats, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	stats := &ReindexStats{}
	var lastCreatedAt *time.Time
	for {
		documents, err := x.store.SelectAllDocuments(ctx, lastCreatedAt, pageSize)
		if err != nil {
			return stats, helper.NewError("select documents", err)
		}

		requests := make([]IndexRequest, 0, len(documents))
		for _, doc := range documents {
			stats.Total++

			extractCtx, cancel := context.WithTimeout(ctx, x.config.ExtractTimeout)
			text, err := extractor.Extract(extractCtx, doc.ContentLocator, doc.ContentType)
			cancel()
			if err != nil {
				stats.Failed++
				x.log.Warn("Error extracting document for reindex", slog.String("document_id", doc.DocumentID()), slog.Any("error", err))
				continue
			}
			requests = append(requests, IndexRequest{Document: doc, Text: text, Tags: doc.Tags()})
		}

		for _, outcome := range x.IndexDocuments(ctx, requests) {
			if outcome.Err != nil {
				stats.Failed++
			} else {
				stats.Succeeded++
			}
		}

		if len(documents) < pageSize {
			break
		}
		createdAt := documents[len(documents)-1].CreatedAt
		lastCreatedAt = &createdAt
	}

	x.log.Info("Reindexed documents", slog.Int("total", stats.Total), slog.Int("succeeded", stats.Succeeded), slog.Int("failed", stats.Failed))
	return stats, ctx.Err()
}
