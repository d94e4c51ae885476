package model

import "time"

// TaskType is the kind of generation a retrieval serves.
type TaskType string

const (
	TaskTypeSummary TaskType = "summary"
	TaskTypeNotes   TaskType = "notes"
	TaskTypeQuiz    TaskType = "quiz"
	TaskTypeChat    TaskType = "chat"
)

// RetrievalConfig holds the tunables of chunking, indexing and retrieval.
type RetrievalConfig struct {
	// Chunking
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval
	DefaultChunkCount int `yaml:"default_chunk_count" json:"default_chunk_count"`
	MinContentLength  int `yaml:"min_content_length" json:"min_content_length"` // Quality floor of a rag result in bytes

	// Timeouts per call
	EmbedTimeout   time.Duration `yaml:"embed_timeout" json:"embed_timeout"`
	StoreTimeout   time.Duration `yaml:"store_timeout" json:"store_timeout"`
	SearchTimeout  time.Duration `yaml:"search_timeout" json:"search_timeout"`
	ExtractTimeout time.Duration `yaml:"extract_timeout" json:"extract_timeout"`

	// Concurrency
	MaxConcurrentEmbeddings int `yaml:"max_concurrent_embeddings" json:"max_concurrent_embeddings"`
	MaxConcurrentDocuments  int `yaml:"max_concurrent_documents" json:"max_concurrent_documents"`
}

// DefaultRetrievalConfig returns the default tunables.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChunkSize:               1000,
		ChunkOverlap:            200,
		DefaultChunkCount:       5,
		MinContentLength:        500,
		EmbedTimeout:            30 * time.Second,
		StoreTimeout:            10 * time.Second,
		SearchTimeout:           5 * time.Second,
		ExtractTimeout:          60 * time.Second,
		MaxConcurrentEmbeddings: 4,
		MaxConcurrentDocuments:  2,
	}
}

// WithDefaults returns a copy with every zero value replaced by its default.
func (c RetrievalConfig) WithDefaults() RetrievalConfig {
	d := DefaultRetrievalConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.DefaultChunkCount <= 0 {
		c.DefaultChunkCount = d.DefaultChunkCount
	}
	if c.MinContentLength < 0 {
		c.MinContentLength = d.MinContentLength
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = d.ExtractTimeout
	}
	if c.MaxConcurrentEmbeddings <= 0 {
		c.MaxConcurrentEmbeddings = d.MaxConcurrentEmbeddings
	}
	if c.MaxConcurrentDocuments <= 0 {
		c.MaxConcurrentDocuments = d.MaxConcurrentDocuments
	}
	return c
}
