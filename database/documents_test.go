package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocument(t *testing.T, locator string) *model.Document {
	doc, err := model.NewDocument("Test Document", locator, model.ContentTypeFile, model.Metadata{"author": "Test Author"})
	require.NoError(t, err)
	return doc
}

func TestDocumentsNewDocumentsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewDocumentsDBHandler", func(t *testing.T) {
		documentsDbHandler, err := NewDocumentsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")
		require.NotNil(t, documentsDbHandler, "Expected NewDocumentsDBHandler to return a non-nil instance")
		require.NotNil(t, documentsDbHandler.db.Instance, "Expected NewDocumentsDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewDocumentsDBHandler with nil database", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating DocumentsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})

	t.Run("CreateTable on a closed database returns a store error", func(t *testing.T) {
		closed := initDB(t)
		require.NoError(t, closed.Close())

		documentsDbHandler := &DocumentsDBHandler{db: closed}
		assert.NotPanics(t, func() {
			err := documentsDbHandler.CreateTable()
			assert.ErrorIs(t, err, model.ErrStore)
			assert.Contains(t, err.Error(), "init documents table")
		})
	})
}

func TestDocumentsInsert(t *testing.T) {
	database := initDB(t)
	documentsDbHandler, err := NewDocumentsDBHandler(database, false)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Insert document", func(t *testing.T) {
		doc := newTestDocument(t, "notes.txt")
		rid := doc.RID

		err := documentsDbHandler.InsertDocument(ctx, doc)
		require.NoError(t, err, "Expected Insert to not return an error")
		assert.Equal(t, rid, doc.RID, "Expected the given RID to be kept")
		assert.NotZero(t, doc.ID)
		assert.Equal(t, model.IndexStateNotIndexed, doc.IndexState)
		assert.Equal(t, model.ContentTypeFile, doc.ContentType)
		assert.Equal(t, "Test Author", doc.Metadata["author"])
		assert.WithinDuration(t, time.Now(), doc.CreatedAt, 5*time.Second, "Expected CreatedAt to be set")
		assert.False(t, doc.HasEmbeddings())
	})

	t.Run("Insert document without RID generates one", func(t *testing.T) {
		doc := newTestDocument(t, "generated.txt")
		doc.RID = uuid.Nil

		err := documentsDbHandler.InsertDocument(ctx, doc)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, doc.RID)
	})

	t.Run("Insert document without locator", func(t *testing.T) {
		err := documentsDbHandler.InsertDocument(ctx, &model.Document{ContentType: model.ContentTypeFile})
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})
}

func TestDocumentsSelect(t *testing.T) {
	database := initDB(t)
	documentsDbHandler, err := NewDocumentsDBHandler(database, false)
	require.NoError(t, err)
	ctx := context.Background()

	doc := newTestDocument(t, "select.txt")
	require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))

	t.Run("Select document by RID", func(t *testing.T) {
		selected, err := documentsDbHandler.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, selected.ID)
		assert.Equal(t, "select.txt", selected.ContentLocator)
	})

	t.Run("Select document by document id", func(t *testing.T) {
		selected, err := documentsDbHandler.SelectDocumentByID(ctx, doc.DocumentID())
		require.NoError(t, err)
		assert.Equal(t, doc.RID, selected.RID)
	})

	t.Run("Select unknown document", func(t *testing.T) {
		_, err := documentsDbHandler.SelectDocument(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Select with invalid document id", func(t *testing.T) {
		_, err := documentsDbHandler.SelectDocumentByID(ctx, "doc1")
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("Select all documents with pagination", func(t *testing.T) {
		for _, locator := range []string{"page1.txt", "page2.txt", "page3.txt"} {
			require.NoError(t, documentsDbHandler.InsertDocument(ctx, newTestDocument(t, locator)))
		}

		first, err := documentsDbHandler.SelectAllDocuments(ctx, nil, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)

		lastCreatedAt := first[len(first)-1].CreatedAt
		next, err := documentsDbHandler.SelectAllDocuments(ctx, &lastCreatedAt, 100)
		require.NoError(t, err)
		require.NotEmpty(t, next)
		for _, d := range next {
			assert.True(t, d.CreatedAt.After(lastCreatedAt))
		}
	})
}

func TestDocumentsUpdateIndexState(t *testing.T) {
	database := initDB(t)
	documentsDbHandler, err := NewDocumentsDBHandler(database, false)
	require.NoError(t, err)
	ctx := context.Background()

	doc := newTestDocument(t, "state.txt")
	require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))

	t.Run("Store indexed state with reference", func(t *testing.T) {
		updated, err := documentsDbHandler.UpdateIndexState(ctx, doc.RID, model.IndexStateIndexed, "hash@8", 3)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateIndexed, updated.IndexState)
		assert.Equal(t, "hash@8", updated.IndexReference)
		assert.Equal(t, 3, updated.ChunkCount)
		assert.True(t, updated.HasEmbeddings())
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})

	t.Run("Reject unknown state", func(t *testing.T) {
		_, err := documentsDbHandler.UpdateIndexState(ctx, doc.RID, model.IndexState("done"), "", 0)
		assert.ErrorIs(t, err, model.ErrStore)
	})

	t.Run("Update unknown document", func(t *testing.T) {
		_, err := documentsDbHandler.UpdateIndexState(ctx, uuid.New(), model.IndexStateIndexing, "", 0)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDocumentsDelete(t *testing.T) {
	database := initDB(t)
	documentsDbHandler, err := NewDocumentsDBHandler(database, false)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Delete document", func(t *testing.T) {
		doc := newTestDocument(t, "delete.txt")
		require.NoError(t, documentsDbHandler.InsertDocument(ctx, doc))

		deleted, err := documentsDbHandler.DeleteDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = documentsDbHandler.SelectDocument(ctx, doc.RID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Delete unknown document", func(t *testing.T) {
		deleted, err := documentsDbHandler.DeleteDocument(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
	})
}
