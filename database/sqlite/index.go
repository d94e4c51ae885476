package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Index is an embedded VectorIndex on SQLite. Vectors are stored as blobs
// and searched by brute force cosine distance.
type Index struct {
	db         *sql.DB
	dimensions int
	log        *slog.Logger
}

var _ database.VectorIndex = (*Index)(nil)

// Open opens or creates the database at path. MemoryPath gives an in-memory database.
// The dimension is recorded on first use, opening it later with another dimension fails.
func Open(path string, dimensions int, logger *slog.Logger) (*Index, error) {
	if dimensions <= 0 {
		return nil, helper.NewError("open sqlite index", fmt.Errorf("%w: dimensions must be positive", model.ErrInvalidInput))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, helper.NewError("create data directory", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, database.StoreError("open sqlite", err)
	}
	// One connection: an in-memory database exists per connection and sqlite has a single writer.
	db.SetMaxOpenConns(1)

	index := &Index{
		db:         db,
		dimensions: dimensions,
		log:        logger,
	}

	if err := index.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Opened sqlite vector index", slog.String("path", path), slog.Int("dimensions", dimensions))

	return index, nil
}

func (s *Index) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return database.StoreError("create schema", err)
	}

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimensions'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('dimensions', ?)`, strconv.Itoa(s.dimensions))
		if err != nil {
			return database.StoreError("store dimensions", err)
		}
		return nil
	}
	if err != nil {
		return database.StoreError("read dimensions", err)
	}

	if stored != strconv.Itoa(s.dimensions) {
		return helper.NewError("open sqlite index", fmt.Errorf("%w: index was built with %s dimensions, not %d", model.ErrInvalidInput, stored, s.dimensions))
	}
	return nil
}

// DB returns the underlying database, shared with the DocumentStore.
func (s *Index) DB() *sql.DB {
	return s.db
}

// Dimensions returns the vector size of the index.
func (s *Index) Dimensions() int {
	return s.dimensions
}

// Close closes the database.
func (s *Index) Close() error {
	return s.db.Close()
}

// InsertChunks inserts all chunks of a document in one transaction.
func (s *Index) InsertChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, error) {
	if err := database.ValidateChunks(documentID, chunks, s.dimensions); err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, database.StoreError("commit", err)
	}
	return len(chunks), nil
}

// ReplaceDocumentChunks deletes and inserts the chunks of a document in one transaction.
func (s *Index) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, int, error) {
	if err := database.ValidateChunks(documentID, chunks, s.dimensions); err != nil {
		return 0, 0, helper.NewError("replace chunks", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, database.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, 0, database.StoreError("delete chunks", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, 0, database.StoreError("delete chunks", err)
	}

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, database.StoreError("commit", err)
	}
	return int(deleted), len(chunks), nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*model.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			created_at = excluded.created_at`)
	if err != nil {
		return database.StoreError("prepare", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		_, err := stmt.ExecContext(
			ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Content,
			EncodeEmbedding(chunk.Embedding),
			chunk.Metadata,
			now,
		)
		if err != nil {
			return database.StoreError(fmt.Sprintf("insert chunk %s", chunk.ID), err)
		}
		chunk.CreatedAt = now
	}
	return nil
}

type candidate struct {
	hit     *model.SearchHit
	ordinal int
}

// SelectChunksBySimilarity scans the candidate chunks and returns the k nearest by cosine distance.
func (s *Index) SelectChunksBySimilarity(ctx context.Context, embedding []float32, k int, filter *model.SearchFilter) ([]*model.SearchHit, error) {
	if err := database.ValidateQuery(embedding, k, s.dimensions); err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	query := `SELECT id, chunk_index, content, metadata, embedding FROM chunks`
	var args []any
	if filter != nil && filter.DocumentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, filter.DocumentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.StoreError("query", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var id, content string
		var ordinal int
		var metadata model.ChunkMetadata
		var blob []byte
		if err := rows.Scan(&id, &ordinal, &content, &metadata, &blob); err != nil {
			return nil, database.StoreError("scan", err)
		}

		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, database.StoreError("decode embedding", err)
		}
		distance, err := CosineDistance(embedding, vec)
		if err != nil {
			return nil, helper.NewError("cosine distance", err)
		}

		candidates = append(candidates, candidate{
			hit:     model.NewSearchHit(id, content, metadata, distance),
			ordinal: ordinal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("rows error", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hit.Distance != b.hit.Distance {
			return a.hit.Distance < b.hit.Distance
		}
		if a.ordinal != b.ordinal {
			return a.ordinal < b.ordinal
		}
		return a.hit.ChunkID < b.hit.ChunkID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	hits := make([]*model.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return hits, nil
}

// SelectChunksByDocument returns the chunks of a document in ordinal order.
func (s *Index) SelectChunksByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, embedding, metadata, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, database.StoreError("query", err)
	}
	defer rows.Close()

	chunks := []*model.Chunk{}
	for rows.Next() {
		chunk := &model.Chunk{}
		var blob []byte
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &blob, &chunk.Metadata, &chunk.CreatedAt)
		if err != nil {
			return nil, database.StoreError("scan", err)
		}
		chunk.Embedding, err = DecodeEmbedding(blob)
		if err != nil {
			return nil, database.StoreError("decode embedding", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("rows error", err)
	}
	return chunks, nil
}

// DeleteChunksByDocument removes all chunks of a document.
func (s *Index) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, database.StoreError("delete chunks", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, database.StoreError("delete chunks", err)
	}
	return int(deleted), nil
}

// SelectIndexStats counts chunks and distinct documents.
func (s *Index) SelectIndexStats(ctx context.Context) (*model.IndexStats, error) {
	stats := &model.IndexStats{DocumentIDs: []string{}}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, database.StoreError("count chunks", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT document_id FROM chunks ORDER BY document_id`)
	if err != nil {
		return nil, database.StoreError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, database.StoreError("scan", err)
		}
		stats.DocumentIDs = append(stats.DocumentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("rows error", err)
	}

	stats.UniqueDocuments = len(stats.DocumentIDs)
	return stats, nil
}

// ClearIndex removes every chunk.
func (s *Index) ClearIndex(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, database.StoreError("clear chunks", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, database.StoreError("clear chunks", err)
	}
	s.log.Warn("Cleared vector index", slog.Int64("deleted", deleted))
	return int(deleted), nil
}
