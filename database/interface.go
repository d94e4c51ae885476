package database

import (
	"context"
	"fmt"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// VectorIndex stores chunk vectors and answers nearest neighbour queries by cosine distance.
// It is implemented by the postgres ChunksDBHandler and the embedded sqlite index.
type VectorIndex interface {
	// InsertChunks stores the chunks of one document in a single batch.
	InsertChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, error)
	// ReplaceDocumentChunks deletes the chunks of a document and inserts the new ones atomically.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (deleted int, inserted int, err error)
	// SelectChunksBySimilarity returns up to k hits ordered by distance, ties by ordinal.
	SelectChunksBySimilarity(ctx context.Context, embedding []float32, k int, filter *model.SearchFilter) ([]*model.SearchHit, error)
	// SelectChunksByDocument returns the stored chunks of a document in ordinal order.
	SelectChunksByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error)
	// DeleteChunksByDocument removes all chunks of a document, deleting nothing is not an error.
	DeleteChunksByDocument(ctx context.Context, documentID string) (int, error)
	// SelectIndexStats counts chunks and distinct documents.
	SelectIndexStats(ctx context.Context) (*model.IndexStats, error)
	// ClearIndex removes every chunk.
	ClearIndex(ctx context.Context) (int, error)
}

// ValidateChunks checks the preconditions of a batch insert: all chunks belong to documentID,
// carry their deterministic id, have text and a vector of the index dimension.
func ValidateChunks(documentID string, chunks []*model.Chunk, dimensions int) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is empty", model.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to insert", model.ErrInvalidInput)
	}

	seen := make(map[int]struct{}, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil {
			return fmt.Errorf("%w: nil chunk", model.ErrInvalidInput)
		}
		if chunk.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to document %q, not %q", model.ErrInvalidInput, chunk.ID, chunk.DocumentID, documentID)
		}
		if chunk.ID != model.ChunkID(documentID, chunk.ChunkIndex) {
			return fmt.Errorf("%w: chunk id %q does not match ordinal %d", model.ErrInvalidInput, chunk.ID, chunk.ChunkIndex)
		}
		if _, ok := seen[chunk.ChunkIndex]; ok {
			return fmt.Errorf("%w: duplicate chunk ordinal %d", model.ErrInvalidInput, chunk.ChunkIndex)
		}
		seen[chunk.ChunkIndex] = struct{}{}
		if chunk.Content == "" {
			return fmt.Errorf("%w: chunk %s has no text", model.ErrInvalidInput, chunk.ID)
		}
		if len(chunk.Embedding) != dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d", model.ErrInvalidInput, chunk.ID, len(chunk.Embedding), dimensions)
		}
	}
	return nil
}

// ValidateQuery checks the arguments of a similarity search.
func ValidateQuery(embedding []float32, k int, dimensions int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", model.ErrInvalidInput, k)
	}
	if len(embedding) != dimensions {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", model.ErrInvalidInput, len(embedding), dimensions)
	}
	return nil
}

// StoreError marks err as a store failure and adds the operation trace.
func StoreError(trace string, err error) error {
	return helper.NewError(trace, fmt.Errorf("%w: %w", model.ErrStore, err))
}
