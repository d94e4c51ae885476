package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// DocumentStore keeps documents and their index state next to the embedded index.
type DocumentStore struct {
	db *sql.DB
}

var _ database.DocumentsDBHandlerFunctions = (*DocumentStore)(nil)

// NewDocumentStore uses the database of an opened Index.
func NewDocumentStore(index *Index) *DocumentStore {
	return &DocumentStore{db: index.DB()}
}

const documentColumns = `id, rid, title, content_locator, content_type, index_state, index_reference, chunk_count, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	doc := &model.Document{}
	var contentType, indexState string
	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Title,
		&doc.ContentLocator,
		&contentType,
		&indexState,
		&doc.IndexReference,
		&doc.ChunkCount,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ContentType = model.ContentType(contentType)
	doc.IndexState = model.IndexState(indexState)
	return doc, nil
}

// InsertDocument inserts a new document in state not_indexed.
func (s *DocumentStore) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ContentLocator == "" || !doc.ContentType.Valid() {
		return helper.NewError("insert document", fmt.Errorf("%w: document needs a locator and a known content type", model.ErrInvalidInput))
	}
	if doc.RID == uuid.Nil {
		doc.RID = uuid.New()
	}

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (rid, title, content_locator, content_type, index_state, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+documentColumns,
		doc.RID.String(),
		doc.Title,
		doc.ContentLocator,
		string(doc.ContentType),
		string(model.IndexStateNotIndexed),
		doc.Metadata,
		now,
		now,
	)

	inserted, err := scanDocument(row)
	if err != nil {
		return database.StoreError("insert document", err)
	}
	content := doc.Content
	*doc = *inserted
	doc.Content = content
	return nil
}

// SelectDocument retrieves a document by RID.
func (s *DocumentStore) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE rid = ?`, rid.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select document", fmt.Errorf("%w: document %s", model.ErrNotFound, rid))
	}
	if err != nil {
		return nil, database.StoreError("select document", err)
	}
	return doc, nil
}

// SelectDocumentByID retrieves a document by the id its chunks are stored under.
func (s *DocumentStore) SelectDocumentByID(ctx context.Context, documentID string) (*model.Document, error) {
	rid, err := uuid.Parse(documentID)
	if err != nil {
		return nil, helper.NewError("parse document id", fmt.Errorf("%w: %w", model.ErrInvalidInput, err))
	}
	return s.SelectDocument(ctx, rid)
}

// SelectAllDocuments retrieves documents created after lastCreatedAt, oldest first.
func (s *DocumentStore) SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if lastCreatedAt != nil {
		query += ` WHERE created_at > ?`
		args = append(args, lastCreatedAt.UTC())
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.StoreError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, database.StoreError("scan", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("rows error", err)
	}
	return documents, nil
}

// UpdateIndexState stores the indexing state, the index reference and the chunk count of a document.
func (s *DocumentStore) UpdateIndexState(ctx context.Context, rid uuid.UUID, state model.IndexState, reference string, chunkCount int) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents SET index_state = ?, index_reference = ?, chunk_count = ?, updated_at = ?
		WHERE rid = ?
		RETURNING `+documentColumns,
		string(state),
		reference,
		chunkCount,
		time.Now().UTC(),
		rid.String(),
	)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("update index state", fmt.Errorf("%w: document %s", model.ErrNotFound, rid))
	}
	if err != nil {
		return nil, database.StoreError("update index state", err)
	}
	return doc, nil
}

// DeleteDocument deletes a document by RID.
func (s *DocumentStore) DeleteDocument(ctx context.Context, rid uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE rid = ?`, rid.String())
	if err != nil {
		return 0, database.StoreError("delete document", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, database.StoreError("delete document", err)
	}
	return int(deleted), nil
}
