package indexing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/database/sqlite"
	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimensions = 8

type hashEmbedder struct {
	failOn string
	calls  atomic.Int64
}

func (e *hashEmbedder) embed(text string) ([]float32, error) {
	e.calls.Add(1)
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, fmt.Errorf("%w: quota exceeded", model.ErrProvider)
	}
	vec := make([]float32, testDimensions)
	for _, word := range strings.Fields(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%testDimensions]++
	}
	vec[0] += 0.1
	return vec, nil
}

func (e *hashEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text)
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text)
}

func (e *hashEmbedder) Dimensions() int { return testDimensions }
func (e *hashEmbedder) Model() string   { return "hash" }

// blockingEmbedder never answers until its context is done.
type blockingEmbedder struct{}

func (blockingEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", model.ErrProvider, ctx.Err())
}

func (blockingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", model.ErrProvider, ctx.Err())
}

func (blockingEmbedder) Dimensions() int { return testDimensions }
func (blockingEmbedder) Model() string   { return "blocking" }

// cancellingIndex cancels the caller context right after the chunks are replaced.
type cancellingIndex struct {
	*sqlite.Index
	cancel context.CancelFunc
}

func (c *cancellingIndex) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []*model.Chunk) (int, int, error) {
	deleted, added, err := c.Index.ReplaceDocumentChunks(ctx, documentID, chunks)
	c.cancel()
	return deleted, added, err
}

// failingIndexedStore rejects the indexed state.
type failingIndexedStore struct {
	*sqlite.DocumentStore
}

func (f *failingIndexedStore) UpdateIndexState(ctx context.Context, rid uuid.UUID, state model.IndexState, reference string, chunkCount int) (*model.Document, error) {
	if state == model.IndexStateIndexed {
		return nil, fmt.Errorf("%w: disk full", model.ErrStore)
	}
	return f.DocumentStore.UpdateIndexState(ctx, rid, state, reference, chunkCount)
}

type staticExtractor struct {
	texts map[string]string
}

func (s *staticExtractor) Extract(ctx context.Context, locator string, contentType model.ContentType) (string, error) {
	text, ok := s.texts[locator]
	if !ok {
		return "", fmt.Errorf("%w: %s not found", model.ErrExtraction, locator)
	}
	return text, nil
}

func initStores(t *testing.T) (*sqlite.Index, *sqlite.DocumentStore) {
	index, err := sqlite.Open(sqlite.MemoryPath, testDimensions, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index, sqlite.NewDocumentStore(index)
}

func insertDocument(t *testing.T, store *sqlite.DocumentStore, locator string) *model.Document {
	doc, err := model.NewDocument("Doc "+locator, locator, model.ContentTypeFile, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertDocument(context.Background(), doc))
	return doc
}

func smallConfig() model.RetrievalConfig {
	config := model.DefaultRetrievalConfig()
	config.ChunkSize = 200
	config.ChunkOverlap = 40
	return config
}

var sampleText = strings.Repeat("Rivers carry sediment to the sea. Deltas form where rivers slow down. ", 15)

func TestIndexDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Index a new document", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		outcome, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)
		assert.Greater(t, outcome.ChunksAdded, 1)
		assert.Equal(t, 0, outcome.ChunksDeleted)
		assert.Equal(t, model.IndexStateIndexed, doc.IndexState)
		assert.Equal(t, "hash@8", doc.IndexReference)
		assert.Equal(t, outcome.ChunksAdded, doc.ChunkCount)
		assert.True(t, doc.HasEmbeddings())

		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateIndexed, stored.IndexState)

		chunks, err := index.SelectChunksByDocument(ctx, doc.DocumentID())
		require.NoError(t, err)
		require.Len(t, chunks, outcome.ChunksAdded)
		assert.Equal(t, "Doc rivers.txt", chunks[0].Metadata.Tags[model.TagTitle])
		assert.Equal(t, outcome.ChunksAdded, chunks[0].Metadata.TotalChunks)
	})

	t.Run("Reindexing replaces the chunks", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		first, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)
		second, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)

		assert.Equal(t, first.ChunksAdded, second.ChunksAdded)
		assert.Equal(t, first.ChunksAdded, second.ChunksDeleted)

		stats, err := index.SelectIndexStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ChunksAdded, stats.TotalChunks)
		assert.Equal(t, 1, stats.UniqueDocuments)
	})

	t.Run("Embedding failure marks the document failed", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{failOn: "Deltas"}, index, store, smallConfig(), nil)

		outcome, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrProvider)
		require.NotNil(t, outcome)
		assert.Equal(t, model.IndexStateFailed, outcome.Document.IndexState)

		stats, err := index.SelectIndexStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalChunks, "Expected no partial index")
	})

	t.Run("Failed reindex keeps the previous chunks", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		embedder := &hashEmbedder{}
		indexer := NewIndexer(embedder, index, store, smallConfig(), nil)

		first, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)

		embedder.failOn = "Deltas"
		_, err = indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.Error(t, err)

		chunks, err := index.SelectChunksByDocument(ctx, doc.DocumentID())
		require.NoError(t, err)
		assert.Len(t, chunks, first.ChunksAdded)

		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.False(t, stored.HasEmbeddings())
	})

	t.Run("Cancel after the chunks are stored still ends in indexed", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")

		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		indexer := NewIndexer(&hashEmbedder{}, &cancellingIndex{Index: index, cancel: cancel}, store, smallConfig(), nil)

		outcome, err := indexer.IndexDocument(callCtx, doc, sampleText, nil)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateIndexed, outcome.Document.IndexState)

		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateIndexed, stored.IndexState, "Expected the document not to stay in indexing")
		assert.Equal(t, outcome.ChunksAdded, stored.ChunkCount)

		_, err = NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil).IndexDocument(ctx, doc, sampleText, nil)
		assert.NoError(t, err, "Expected the document to be indexable again")
	})

	t.Run("Failing indexed write ends in index failed", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, &failingIndexedStore{DocumentStore: store}, smallConfig(), nil)

		outcome, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		assert.ErrorIs(t, err, model.ErrStore)
		require.NotNil(t, outcome)
		assert.Equal(t, model.IndexStateFailed, outcome.Document.IndexState)

		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateFailed, stored.IndexState)
	})

	t.Run("Embedding call that does not answer times out", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		config := smallConfig()
		config.EmbedTimeout = 50 * time.Millisecond
		indexer := NewIndexer(blockingEmbedder{}, index, store, config, nil)

		start := time.Now()
		outcome, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, model.ErrProvider)
		require.NotNil(t, outcome)
		assert.Equal(t, model.IndexStateFailed, outcome.Document.IndexState)

		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateFailed, stored.IndexState)
	})

	t.Run("Empty text fails with no content", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "empty.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		_, err := indexer.IndexDocument(ctx, doc, "   \n ", nil)
		assert.ErrorIs(t, err, model.ErrNoContent)
	})

	t.Run("Document that is indexing cannot be indexed again", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		_, err := store.UpdateIndexState(ctx, doc.RID, model.IndexStateIndexing, "", 0)
		require.NoError(t, err)

		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)
		_, err = indexer.IndexDocument(ctx, doc, sampleText, nil)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("Unknown document", func(t *testing.T) {
		index, store := initStores(t)
		doc, err := model.NewDocument("Missing", "missing.txt", model.ContentTypeFile, nil)
		require.NoError(t, err)

		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)
		_, err = indexer.IndexDocument(ctx, doc, sampleText, nil)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Concurrent indexing of one document is serialized", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d := *doc
				_, errs[i] = indexer.IndexDocument(ctx, &d, sampleText, nil)
			}()
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		stored, err := store.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, model.IndexStateIndexed, stored.IndexState)

		chunks, err := index.SelectChunksByDocument(ctx, doc.DocumentID())
		require.NoError(t, err)
		assert.Len(t, chunks, stored.ChunkCount)
		assert.Equal(t, 0, indexer.locks.size())
	})
}

func TestIndexDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("Index several documents and report each outcome", func(t *testing.T) {
		index, store := initStores(t)
		good := insertDocument(t, store, "good.txt")
		bad := insertDocument(t, store, "bad.txt")
		other := insertDocument(t, store, "other.txt")
		indexer := NewIndexer(&hashEmbedder{failOn: "poison"}, index, store, smallConfig(), nil)

		outcomes := indexer.IndexDocuments(ctx, []IndexRequest{
			{Document: good, Text: sampleText},
			{Document: bad, Text: "This text contains poison. It cannot be embedded."},
			{Document: other, Text: sampleText},
		})
		require.Len(t, outcomes, 3)
		assert.NoError(t, outcomes[0].Err)
		assert.ErrorIs(t, outcomes[1].Err, model.ErrProvider)
		assert.NoError(t, outcomes[2].Err)

		stats, err := index.SelectIndexStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.UniqueDocuments)
		assert.ElementsMatch(t, []string{good.DocumentID(), other.DocumentID()}, stats.DocumentIDs)
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Delete chunks and reset the state", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		keep := insertDocument(t, store, "keep.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		outcome, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)
		_, err = indexer.IndexDocument(ctx, keep, sampleText, nil)
		require.NoError(t, err)

		deleted, err := indexer.DeleteDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, outcome.ChunksAdded, deleted)
		assert.Equal(t, model.IndexStateNotIndexed, doc.IndexState)
		assert.False(t, doc.HasEmbeddings())

		chunks, err := index.SelectChunksByDocument(ctx, doc.DocumentID())
		require.NoError(t, err)
		assert.Empty(t, chunks)

		kept, err := index.SelectChunksByDocument(ctx, keep.DocumentID())
		require.NoError(t, err)
		assert.NotEmpty(t, kept)
	})

	t.Run("Deleting twice deletes nothing the second time", func(t *testing.T) {
		index, store := initStores(t)
		doc := insertDocument(t, store, "rivers.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		_, err := indexer.IndexDocument(ctx, doc, sampleText, nil)
		require.NoError(t, err)
		_, err = indexer.DeleteDocument(ctx, doc)
		require.NoError(t, err)

		deleted, err := indexer.DeleteDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
	})
}

func TestReindexAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Reindex every stored document", func(t *testing.T) {
		index, store := initStores(t)
		a := insertDocument(t, store, "a.txt")
		b := insertDocument(t, store, "b.txt")
		insertDocument(t, store, "missing.txt")

		extractor := &staticExtractor{texts: map[string]string{
			"a.txt": sampleText,
			"b.txt": strings.Repeat("Glaciers carve valleys. Ice moves slowly. ", 10),
		}}
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		stats, err := indexer.ReindexAll(ctx, extractor, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.Succeeded)
		assert.Equal(t, 1, stats.Failed)

		for _, doc := range []*model.Document{a, b} {
			stored, err := store.SelectDocument(ctx, doc.RID)
			require.NoError(t, err)
			assert.Equal(t, model.IndexStateIndexed, stored.IndexState)
		}
	})

	t.Run("Cancelled context stops the reindex", func(t *testing.T) {
		index, store := initStores(t)
		insertDocument(t, store, "a.txt")
		indexer := NewIndexer(&hashEmbedder{}, index, store, smallConfig(), nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := indexer.ReindexAll(cancelled, &staticExtractor{}, 10)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
