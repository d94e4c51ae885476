package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/database/sqlite"
	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/require"
)

const testDimensions = 16

// hashEmbedder embeds text as a bag of hashed words.
type hashEmbedder struct {
	queryErr error
}

func hashVector(text string) []float32 {
	vec := make([]float32, testDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%(testDimensions-1)]++
	}
	vec[testDimensions-1] = 0.5
	return vec
}

func (e *hashEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return hashVector(text), nil
}

func (e *hashEmbedder) Dimensions() int { return testDimensions }
func (e *hashEmbedder) Model() string   { return "hash" }

// staticExtractor returns the same text for every document.
type staticExtractor struct {
	text  string
	err   error
	calls int
}

func (s *staticExtractor) Extract(ctx context.Context, locator string, contentType model.ContentType) (string, error) {
	s.calls++
	return s.text, s.err
}

var errExtract = errors.New("extractor unavailable")

func initIndex(t *testing.T) *sqlite.Index {
	index, err := sqlite.Open(sqlite.MemoryPath, testDimensions, nil)
	require.NoError(t, err, "failed to open in-memory index")
	t.Cleanup(func() { _ = index.Close() })
	return index
}

// indexText stores the chunks of text and returns an indexed document descriptor.
func indexText(t *testing.T, index *sqlite.Index, text string, chunkSize int, overlap int) *model.Document {
	doc, err := model.NewDocument("Test Document", "test.txt", model.ContentTypeFile, nil)
	require.NoError(t, err)

	p := pipeline.NewPipeline(pipeline.SentenceWindowChunker(chunkSize, overlap), &hashEmbedder{}, 2)
	chunks, err := p.Process(context.Background(), doc.DocumentID(), text, doc.Tags())
	require.NoError(t, err)

	_, inserted, err := index.ReplaceDocumentChunks(context.Background(), doc.DocumentID(), chunks)
	require.NoError(t, err)

	doc.IndexState = model.IndexStateIndexed
	doc.IndexReference = "hash@16"
	doc.ChunkCount = inserted
	return doc
}

func notIndexedDocument(t *testing.T) *model.Document {
	return &model.Document{
		RID:            uuid.New(),
		ContentLocator: "https://example.com/article",
		ContentType:    model.ContentTypeWebArticle,
		IndexState:     model.IndexStateNotIndexed,
	}
}
