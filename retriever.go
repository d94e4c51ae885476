package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/indexing"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/core/retrieval"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/extract"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// Retriever provides a unified interface to indexing and retrieval
type Retriever struct {
	DB           *helper.Database // Only set for the postgres backend
	Index        database.VectorIndex
	Documents    database.DocumentsDBHandlerFunctions
	Embedder     pipeline.Embedder
	Extractor    extract.Extractor
	Indexer      *indexing.Indexer
	Engine       *retrieval.Engine
	Orchestrator *retrieval.Orchestrator
	Config       model.RetrievalConfig
	// Logging
	log *slog.Logger
}

// Stats combines the index statistics with the retrieval outcome counters.
type Stats struct {
	Index     *model.IndexStats           `json:"index"`
	Retrieval retrieval.OrchestratorStats `json:"retrieval"`
}

// NewRetriever creates a Retriever on postgres with pgvector.
// The chunk table is created with the dimension of the embedder.
func NewRetriever(dbConfig *helper.DatabaseConfiguration, embedder pipeline.Embedder, extractor extract.Extractor, config model.RetrievalConfig) (*Retriever, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	return NewRetrieverWithLogger(dbConfig, embedder, extractor, config, logger)
}

// NewRetrieverWithLogger is NewRetriever logging to logger.
func NewRetrieverWithLogger(dbConfig *helper.DatabaseConfiguration, embedder pipeline.Embedder, extractor extract.Extractor, config model.RetrievalConfig, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, helper.NewError("create retriever", fmt.Errorf("%w: embedder is nil", model.ErrInvalidInput))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Initialize database
	db, err := helper.NewDatabase("retriever", dbConfig, logger)
	if err != nil {
		return nil, helper.NewError("create retriever", fmt.Errorf("%w: %w", model.ErrStore, err))
	}
	err = loadSql.Init(db.Instance)
	if err != nil {
		_ = db.Close()
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		_ = db.Close()
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embedder.Dimensions(), false)
	if err != nil {
		_ = db.Close()
		return nil, helper.NewError("create chunks handler", err)
	}

	r, err := NewRetrieverWithIndex(chunks, documents, embedder, extractor, config, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.DB = db
	return r, nil
}

// NewRetrieverWithIndex creates a Retriever on any vector index and document store,
// e.g. the embedded sqlite backend.
func NewRetrieverWithIndex(index database.VectorIndex, documents database.DocumentsDBHandlerFunctions, embedder pipeline.Embedder, extractor extract.Extractor, config model.RetrievalConfig, logger *slog.Logger) (*Retriever, error) {
	if index == nil || documents == nil || embedder == nil {
		return nil, helper.NewError("create retriever", fmt.Errorf("%w: index, document store and embedder are required", model.ErrInvalidInput))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	config = config.WithDefaults()
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, helper.NewError("create retriever", fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", model.ErrInvalidInput, config.ChunkOverlap, config.ChunkSize))
	}

	engine := retrieval.NewEngine(index, embedder, config)

	return &Retriever{
		Index:        index,
		Documents:    documents,
		Embedder:     embedder,
		Extractor:    extractor,
		Indexer:      indexing.NewIndexer(embedder, index, documents, config, logger),
		Engine:       engine,
		Orchestrator: retrieval.NewOrchestrator(engine, extractor, config, logger),
		Config:       config,
		log:          logger,
	}, nil
}

// Close closes the database connection
func (r *Retriever) Close() error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// AddDocument inserts the document metadata and indexes doc.Content if it is set.
// The content is not stored with the document.
func (r *Retriever) AddDocument(ctx context.Context, doc *model.Document) (*indexing.IndexOutcome, error) {
	if doc == nil {
		return nil, helper.NewError("add document", fmt.Errorf("%w: document is nil", model.ErrInvalidInput))
	}

	content := doc.Content
	if err := r.Documents.InsertDocument(ctx, doc); err != nil {
		return nil, helper.NewError("insert document", err)
	}
	r.log.Info("Inserted document", slog.String("document_id", doc.DocumentID()), slog.String("title", doc.Title))

	if content == "" {
		return &indexing.IndexOutcome{Document: doc}, nil
	}
	return r.IndexDocument(ctx, doc, content)
}

// IndexDocument (re)indexes text as the content of an inserted document.
func (r *Retriever) IndexDocument(ctx context.Context, doc *model.Document, text string) (*indexing.IndexOutcome, error) {
	return r.Indexer.IndexDocument(ctx, doc, text, nil)
}

// IndexDocuments indexes several documents in parallel.
func (r *Retriever) IndexDocuments(ctx context.Context, requests []indexing.IndexRequest) []*indexing.IndexOutcome {
	return r.Indexer.IndexDocuments(ctx, requests)
}

// ReindexAll extracts and indexes every stored document again, e.g. after the embedding model changed.
func (r *Retriever) ReindexAll(ctx context.Context) (*indexing.ReindexStats, error) {
	if r.Extractor == nil {
		return nil, helper.NewError("reindex all", fmt.Errorf("%w: no extractor configured", model.ErrExtraction))
	}
	return r.Indexer.ReindexAll(ctx, r.Extractor, 100)
}

// Document returns the stored document by id.
func (r *Retriever) Document(ctx context.Context, documentID string) (*model.Document, error) {
	return r.Documents.SelectDocumentByID(ctx, documentID)
}

// UnindexDocument removes the chunks of a document and keeps its metadata.
func (r *Retriever) UnindexDocument(ctx context.Context, documentID string) (int, error) {
	doc, err := r.Documents.SelectDocumentByID(ctx, documentID)
	if err != nil {
		return 0, helper.NewError("select document", err)
	}
	return r.Indexer.DeleteDocument(ctx, doc)
}

// DeleteDocument removes the chunks and the metadata of a document.
// Deleting an unknown document deletes no chunks and is not an error.
func (r *Retriever) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	rid, err := uuid.Parse(documentID)
	if err != nil {
		return 0, helper.NewError("parse document id", fmt.Errorf("%w: %w", model.ErrInvalidInput, err))
	}

	deleted, err := r.Indexer.DeleteDocument(ctx, &model.Document{RID: rid})
	if err != nil {
		return 0, err
	}

	_, err = r.Documents.DeleteDocument(ctx, rid)
	if err != nil {
		return deleted, helper.NewError("delete document", err)
	}

	r.log.Info("Deleted document", slog.String("document_id", documentID), slog.Int("chunks", deleted))
	return deleted, nil
}

// Search returns the nearest chunks for a query, restricted to query.DocumentID if set.
func (r *Retriever) Search(ctx context.Context, query model.RetrievalQuery) ([]*model.SearchHit, error) {
	return r.Engine.Search(ctx, query)
}

// GetContentForGeneration returns the content a generator of the task should use for the document.
// It never fails, errors are reported in a result with source error.
func (r *Retriever) GetContentForGeneration(ctx context.Context, documentID string, task model.TaskType, chunkCount int) model.RetrievalResult {
	return r.Retrieve(ctx, documentID, model.RetrievalQuery{
		TaskType: task,
		K:        chunkCount,
	})
}

// Retrieve is GetContentForGeneration with a question, e.g. for chat.
func (r *Retriever) Retrieve(ctx context.Context, documentID string, query model.RetrievalQuery) model.RetrievalResult {
	doc, err := r.Documents.SelectDocumentByID(ctx, documentID)
	if err != nil {
		r.log.Error("Error loading document", slog.String("document_id", documentID), slog.Any("error", err))
		return model.NewErrorResult(fmt.Errorf("could not load document %s: %w", documentID, err))
	}
	return r.Orchestrator.Retrieve(ctx, doc, query)
}

// Chunks returns the stored chunks of a document.
func (r *Retriever) Chunks(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	return r.Index.SelectChunksByDocument(ctx, documentID)
}

// Stats returns the index statistics and the retrieval counters.
func (r *Retriever) Stats(ctx context.Context) (*Stats, error) {
	indexStats, err := r.Index.SelectIndexStats(ctx)
	if err != nil {
		return nil, helper.NewError("select index stats", err)
	}
	return &Stats{
		Index:     indexStats,
		Retrieval: r.Orchestrator.Stats(),
	}, nil
}

// ChangeIndexType rebuilds the approximate nearest neighbour index of the postgres backend.
func (r *Retriever) ChangeIndexType(ctx context.Context, indexType string, params database.IndexParams) error {
	chunks, ok := r.Index.(*database.ChunksDBHandler)
	if !ok {
		return helper.NewError("change index type", fmt.Errorf("%w: index type can only be changed on postgres", model.ErrInvalidInput))
	}
	return chunks.ChangeIndexType(ctx, indexType, params)
}
