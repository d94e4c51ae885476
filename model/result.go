package model

import (
	"errors"
	"fmt"
)

// Source tells where the content of a RetrievalResult came from.
type Source string

const (
	SourceRAG      Source = "rag"
	SourceFullText Source = "full_text"
	SourceError    Source = "error"
)

// Retrieval methods recorded in the result metadata.
const (
	RetrievalMethodVector     = "vector_similarity"
	RetrievalMethodExtraction = "on_demand_extraction"
)

// RetrievalQuery is a request for generation context of one document.
type RetrievalQuery struct {
	Question   string   `json:"question,omitempty"` // Overrides the task query if set
	DocumentID string   `json:"document_id"`
	K          int      `json:"k"`
	TaskType   TaskType `json:"task_type"`
}

// RetrievalResult is the content handed to generation.
type RetrievalResult struct {
	Content          string            `json:"content"`
	Source           Source            `json:"source"`
	ChunksUsed       int               `json:"chunks_used"`
	SimilarityScores []float64         `json:"similarity_scores,omitempty"`
	Error            string            `json:"error,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewErrorResult builds the terminal result returned when nothing could be retrieved.
func NewErrorResult(err error) RetrievalResult {
	msg := "no content available"
	if err != nil {
		msg = err.Error()
	}
	return RetrievalResult{
		Source:   SourceError,
		Error:    msg,
		Metadata: map[string]string{},
	}
}

// Validate checks the result against the guarantees of its source.
func (r RetrievalResult) Validate(minContentLength int) error {
	switch r.Source {
	case SourceRAG:
		if r.ChunksUsed <= 0 {
			return errors.New("rag result without chunks")
		}
		if len(r.Content) < minContentLength {
			return fmt.Errorf("rag result shorter than %d bytes", minContentLength)
		}
		if len(r.SimilarityScores) != r.ChunksUsed {
			return errors.New("rag result with mismatching similarity scores")
		}
	case SourceFullText:
		if r.Content == "" {
			return errors.New("full text result without content")
		}
		if r.ChunksUsed != 0 {
			return errors.New("full text result with chunks")
		}
	case SourceError:
		if r.Content != "" {
			return errors.New("error result with content")
		}
		if r.Error == "" {
			return errors.New("error result without message")
		}
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
	return nil
}
