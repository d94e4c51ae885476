package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/siherrmann/retriever/helper"
)

// Tag keys a caller may attach to chunk metadata.
const (
	TagSourceType  = "source_type"
	TagTitle       = "title"
	TagContentType = "content_type"
	TagLanguage    = "language"
)

// AllowedTags is the closed set of caller tags stored next to the fixed chunk metadata.
var AllowedTags = map[string]struct{}{
	TagSourceType:  {},
	TagTitle:       {},
	TagContentType: {},
	TagLanguage:    {},
}

// Chunk represents one stored window of a document's text
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	ChunkIndex int           `json:"chunk_index"`
	Content    string        `json:"content"`
	Embedding  []float32     `json:"embedding,omitempty"`
	Metadata   ChunkMetadata `json:"metadata"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ChunkID returns the deterministic id of the chunk at ordinal within a document.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// ChunkMetadata is the fixed metadata stored with every chunk.
type ChunkMetadata struct {
	DocumentID  string
	ChunkIndex  int
	TotalChunks int
	ChunkLength int
	Tags        map[string]string
}

// NewChunkMetadata builds the metadata of a chunk and validates the caller tags.
func NewChunkMetadata(documentID string, chunkIndex int, totalChunks int, text string, tags map[string]string) (ChunkMetadata, error) {
	if err := ValidateTags(tags); err != nil {
		return ChunkMetadata{}, err
	}

	var copied map[string]string
	if len(tags) > 0 {
		copied = make(map[string]string, len(tags))
		for k, v := range tags {
			copied[k] = v
		}
	}

	return ChunkMetadata{
		DocumentID:  documentID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		ChunkLength: len(text),
		Tags:        copied,
	}, nil
}

// ValidateTags rejects tag keys outside of AllowedTags.
func ValidateTags(tags map[string]string) error {
	var unknown []string
	for k := range tags {
		if _, ok := AllowedTags[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown metadata tags %v", ErrInvalidInput, unknown)
	}
	return nil
}

// MarshalJSON flattens the tags next to the fixed keys.
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 4+len(m.Tags))
	for k, v := range m.Tags {
		out[k] = v
	}
	out["document_id"] = m.DocumentID
	out["chunk_index"] = m.ChunkIndex
	out["total_chunks"] = m.TotalChunks
	out["chunk_length"] = m.ChunkLength
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat layout written by MarshalJSON.
func (m *ChunkMetadata) UnmarshalJSON(b []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = ChunkMetadata{}
	for k, v := range raw {
		switch k {
		case "document_id":
			m.DocumentID, _ = v.(string)
		case "chunk_index":
			m.ChunkIndex = toInt(v)
		case "total_chunks":
			m.TotalChunks = toInt(v)
		case "chunk_length":
			m.ChunkLength = toInt(v)
		default:
			s, ok := v.(string)
			if !ok {
				continue
			}
			if m.Tags == nil {
				m.Tags = map[string]string{}
			}
			m.Tags[k] = s
		}
	}
	return nil
}

// Value implements the driver.Valuer interface for database storage
func (m ChunkMetadata) Value() (driver.Value, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *ChunkMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ChunkMetadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

// SearchFilter restricts a similarity search.
type SearchFilter struct {
	DocumentID string `json:"document_id,omitempty"`
}

// SearchHit is one result of a similarity search
type SearchHit struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Distance   float64       `json:"distance"`
	Similarity float64       `json:"similarity"`
}

// NewSearchHit sets the similarity from the cosine distance.
func NewSearchHit(chunkID string, text string, metadata ChunkMetadata, distance float64) *SearchHit {
	return &SearchHit{
		ChunkID:    chunkID,
		Text:       text,
		Metadata:   metadata,
		Distance:   distance,
		Similarity: 1 - distance,
	}
}

// IndexStats summarizes the content of a vector index.
type IndexStats struct {
	TotalChunks     int      `json:"total_chunks"`
	UniqueDocuments int      `json:"unique_documents"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}
