package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error)
	SelectDocumentByID(ctx context.Context, documentID string) (*model.Document, error)
	SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error)
	UpdateIndexState(ctx context.Context, rid uuid.UUID, state model.IndexState, reference string, chunkCount int) (*model.Document, error)
	DeleteDocument(ctx context.Context, rid uuid.UUID) (int, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

var _ DocumentsDBHandlerFunctions = (*DocumentsDBHandler)(nil)

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return StoreError("init documents table", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, doc *model.Document) error {
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
		return err
	}
	doc.ContentType = model.ContentType(contentType)
	doc.IndexState = model.IndexState(indexState)
	return nil
}

// InsertDocument inserts a new document in state not_indexed
func (h *DocumentsDBHandler) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ContentLocator == "" || !doc.ContentType.Valid() {
		return helper.NewError("insert document", fmt.Errorf("%w: document needs a locator and a known content type", model.ErrInvalidInput))
	}

	var rid interface{}
	if doc.RID != uuid.Nil {
		rid = doc.RID
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_document($1, $2, $3, $4, $5)`,
		rid,
		doc.Title,
		doc.ContentLocator,
		string(doc.ContentType),
		doc.Metadata,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return StoreError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by RID
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		rid,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select document", fmt.Errorf("%w: document %s", model.ErrNotFound, rid))
	}
	if err != nil {
		return nil, StoreError("scan", err)
	}

	return doc, nil
}

// SelectDocumentByID retrieves a document by the id its chunks are stored under
func (h *DocumentsDBHandler) SelectDocumentByID(ctx context.Context, documentID string) (*model.Document, error) {
	rid, err := uuid.Parse(documentID)
	if err != nil {
		return nil, helper.NewError("parse document id", fmt.Errorf("%w: %w", model.ErrInvalidInput, err))
	}
	return h.SelectDocument(ctx, rid)
}

// SelectAllDocuments retrieves all documents with pagination
func (h *DocumentsDBHandler) SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_all_documents($1, $2)`,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, StoreError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		err := scanDocument(rows, doc)
		if err != nil {
			return nil, StoreError("scan", err)
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, StoreError("rows error", err)
	}

	return documents, nil
}

// UpdateIndexState stores the indexing state, the index reference and the chunk count of a document
func (h *DocumentsDBHandler) UpdateIndexState(ctx context.Context, rid uuid.UUID, state model.IndexState, reference string, chunkCount int) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM update_document_index_state($1, $2, $3, $4)`,
		rid,
		string(state),
		reference,
		chunkCount,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("update index state", fmt.Errorf("%w: document %s", model.ErrNotFound, rid))
	}
	if err != nil {
		return nil, StoreError("scan", err)
	}

	return doc, nil
}

// DeleteDocument deletes a document by RID
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, rid uuid.UUID) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_document($1)`,
		rid,
	).Scan(&deleted)
	if err != nil {
		return 0, StoreError("delete document", err)
	}
	return deleted, nil
}
