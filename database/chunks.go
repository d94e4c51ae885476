package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// ChunksDBHandler is the postgres VectorIndex backed by pgvector.
type ChunksDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

var _ VectorIndex = (*ChunksDBHandler)(nil)

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("%w: embedding dimension must be positive", model.ErrInvalidInput))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", "dimensions", embeddingDim)

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, h.embeddingDim)
	if err != nil {
		return StoreError("init chunks table", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// Dimensions returns the vector size of the index.
func (h *ChunksDBHandler) Dimensions() int {
	return h.embeddingDim
}

// InsertChunks inserts all chunks of a document in one transaction
func (h *ChunksDBHandler) InsertChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, error) {
	if err := ValidateChunks(documentID, chunks, h.embeddingDim); err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return 0, StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertChunks(ctx, tx, chunks)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, StoreError("commit", err)
	}

	return inserted, nil
}

// ReplaceDocumentChunks deletes the old chunks of a document and inserts the new ones in one transaction.
// Readers see either the old or the new chunk set.
func (h *ChunksDBHandler) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, int, error) {
	if err := ValidateChunks(documentID, chunks, h.embeddingDim); err != nil {
		return 0, 0, helper.NewError("replace chunks", err)
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int
	err = tx.QueryRowContext(ctx, `SELECT delete_chunks_by_document($1)`, documentID).Scan(&deleted)
	if err != nil {
		return 0, 0, StoreError("delete chunks", err)
	}

	inserted, err := insertChunks(ctx, tx, chunks)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, StoreError("commit", err)
	}

	return deleted, inserted, nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*model.Chunk) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return 0, StoreError("prepare", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		var id string
		err := stmt.QueryRowContext(
			ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.Metadata,
		).Scan(&id, &chunk.CreatedAt)
		if err != nil {
			return 0, StoreError(fmt.Sprintf("insert chunk %s", chunk.ID), err)
		}
	}

	return len(chunks), nil
}

// SelectChunksBySimilarity returns the k nearest chunks by cosine distance
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, embedding []float32, k int, filter *model.SearchFilter) ([]*model.SearchHit, error) {
	if err := ValidateQuery(embedding, k, h.embeddingDim); err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	var documentID sql.NullString
	if filter != nil && filter.DocumentID != "" {
		documentID = sql.NullString{String: filter.DocumentID, Valid: true}
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3)`,
		pgvector.NewVector(embedding),
		k,
		documentID,
	)
	if err != nil {
		return nil, StoreError("query", err)
	}
	defer rows.Close()

	hits := []*model.SearchHit{}
	for rows.Next() {
		var id, content string
		var metadata model.ChunkMetadata
		var distance float64
		err := rows.Scan(&id, &content, &metadata, &distance)
		if err != nil {
			return nil, StoreError("scan", err)
		}
		hits = append(hits, model.NewSearchHit(id, content, metadata, distance))
	}

	err = rows.Err()
	if err != nil {
		return nil, StoreError("rows error", err)
	}

	return hits, nil
}

// SelectChunksByDocument retrieves all chunks for a document
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, StoreError("query", err)
	}
	defer rows.Close()

	chunks := []*model.Chunk{}
	for rows.Next() {
		chunk := &model.Chunk{}
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&embedding,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, StoreError("scan", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, StoreError("rows error", err)
	}

	return chunks, nil
}

// DeleteChunksByDocument deletes all chunks of a document and returns how many were removed
func (h *ChunksDBHandler) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT delete_chunks_by_document($1)`, documentID).Scan(&deleted)
	if err != nil {
		return 0, StoreError("delete chunks", err)
	}
	return deleted, nil
}

// SelectIndexStats counts the stored chunks and documents
func (h *ChunksDBHandler) SelectIndexStats(ctx context.Context) (*model.IndexStats, error) {
	stats := &model.IndexStats{}
	err := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_chunk_stats()`).Scan(
		&stats.TotalChunks,
		&stats.UniqueDocuments,
		pq.Array(&stats.DocumentIDs),
	)
	if err != nil {
		return nil, StoreError("scan", err)
	}
	return stats, nil
}

// ClearIndex deletes every chunk
func (h *ChunksDBHandler) ClearIndex(ctx context.Context) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT clear_chunks()`).Scan(&deleted)
	if err != nil {
		return 0, StoreError("clear chunks", err)
	}
	h.db.Logger.Warn("Cleared vector index", "deleted", deleted)
	return deleted, nil
}
