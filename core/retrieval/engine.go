package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// taskQueries bias the semantic search towards the content a task needs.
var taskQueries = map[model.TaskType]string{
	model.TaskTypeSummary: "main points key concepts important information overview",
	model.TaskTypeNotes:   "detailed information concepts explanations examples definitions",
	model.TaskTypeQuiz:    "facts definitions concepts terms important details testable information",
}

// DefaultTaskQuery is used for chat and unknown task types.
const DefaultTaskQuery = "key information important content"

// TaskQuery returns the fixed search query of a task type.
func TaskQuery(task model.TaskType) string {
	if q, ok := taskQueries[task]; ok {
		return q
	}
	return DefaultTaskQuery
}

// Engine embeds queries and searches the vector index.
type Engine struct {
	index    database.VectorIndex
	embedder pipeline.Embedder
	config   model.RetrievalConfig
}

// NewEngine creates a new retrieval engine
func NewEngine(index database.VectorIndex, embedder pipeline.Embedder, config model.RetrievalConfig) *Engine {
	return &Engine{
		index:    index,
		embedder: embedder,
		config:   config.WithDefaults(),
	}
}

// QueryText returns the text that is embedded for a query, the question if set, otherwise the task query.
func QueryText(query model.RetrievalQuery) string {
	if q := strings.TrimSpace(query.Question); q != "" {
		return q
	}
	return TaskQuery(query.TaskType)
}

// Search embeds the query in query mode and returns the nearest chunks of the queried document.
// An empty DocumentID searches the whole index.
func (e *Engine) Search(ctx context.Context, query model.RetrievalQuery) ([]*model.SearchHit, error) {
	k := query.K
	if k <= 0 {
		k = e.config.DefaultChunkCount
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
	embedding, err := e.embedder.EmbedQuery(embedCtx, QueryText(query))
	cancel()
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	var filter *model.SearchFilter
	if query.DocumentID != "" {
		filter = &model.SearchFilter{DocumentID: query.DocumentID}
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	defer cancel()
	hits, err := e.index.SelectChunksBySimilarity(searchCtx, embedding, k, filter)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	return hits, nil
}

// Assemble joins the hit texts in the returned order with a blank line.
func Assemble(hits []*model.SearchHit) (string, []float64) {
	texts := make([]string, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	for _, hit := range hits {
		texts = append(texts, hit.Text)
		scores = append(scores, hit.Similarity)
	}
	return strings.Join(texts, "\n\n"), scores
}

func thinResultError(length int, floor int) error {
	return fmt.Errorf("%w: retrieved %d characters, need %d", model.ErrNoContent, length, floor)
}
