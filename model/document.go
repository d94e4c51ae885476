package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ContentType selects the extractor used for the full-text fallback.
type ContentType string

const (
	ContentTypeFile       ContentType = "file"
	ContentTypeWebArticle ContentType = "web-article"
	ContentTypeTranscript ContentType = "streamed-transcript"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeFile, ContentTypeWebArticle, ContentTypeTranscript:
		return true
	}
	return false
}

// IndexState is the indexing state of a document.
type IndexState string

const (
	IndexStateNotIndexed IndexState = "not_indexed"
	IndexStateIndexing   IndexState = "indexing"
	IndexStateIndexed    IndexState = "indexed"
	IndexStateFailed     IndexState = "index_failed"
)

// CanTransition reports whether the state machine allows moving from s to next.
//
//	not_indexed  -> indexing
//	index_failed -> indexing | not_indexed
//	indexed      -> indexing | not_indexed
//	indexing     -> indexed | index_failed
func (s IndexState) CanTransition(next IndexState) bool {
	switch s {
	case "", IndexStateNotIndexed:
		return next == IndexStateIndexing || next == IndexStateNotIndexed
	case IndexStateFailed, IndexStateIndexed:
		return next == IndexStateIndexing || next == IndexStateNotIndexed
	case IndexStateIndexing:
		return next == IndexStateIndexed || next == IndexStateFailed
	}
	return false
}

// Document represents a source document and its indexing state.
type Document struct {
	ID             int64       `json:"id"`
	RID            uuid.UUID   `json:"rid"`
	Title          string      `json:"title"`
	ContentLocator string      `json:"content_locator"`
	ContentType    ContentType `json:"content_type"`
	IndexState     IndexState  `json:"index_state"`
	IndexReference string      `json:"index_reference,omitempty"`
	ChunkCount     int         `json:"chunk_count"`
	Content        string      `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Metadata       Metadata    `json:"metadata,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// DocumentID is the id chunks of this document are stored under.
func (d *Document) DocumentID() string {
	return d.RID.String()
}

// HasEmbeddings reports whether retrieval may use the vector index for this document.
// A failed or unfinished index is treated like no index.
func (d *Document) HasEmbeddings() bool {
	return d.IndexState == IndexStateIndexed && d.IndexReference != ""
}

// Tags returns the chunk metadata tags derived from the document.
func (d *Document) Tags() map[string]string {
	tags := map[string]string{
		TagContentType: string(d.ContentType),
	}
	if d.Title != "" {
		tags[TagTitle] = d.Title
	}
	if lang, ok := d.Metadata["language"].(string); ok && lang != "" {
		tags[TagLanguage] = lang
	}
	if source, ok := d.Metadata["source_type"].(string); ok && source != "" {
		tags[TagSourceType] = source
	}
	return tags
}

// NewDocument creates a not yet indexed document with a fresh RID.
func NewDocument(title string, locator string, contentType ContentType, metadata Metadata) (*Document, error) {
	if locator == "" {
		return nil, fmt.Errorf("%w: content locator is empty", ErrInvalidInput)
	}
	if !contentType.Valid() {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, contentType)
	}
	return &Document{
		RID:            uuid.New(),
		Title:          title,
		ContentLocator: locator,
		ContentType:    contentType,
		IndexState:     IndexStateNotIndexed,
		Metadata:       metadata,
	}, nil
}

// NewDocumentFromFile reads a file and creates a Document with the file content
// The title defaults to the filename, and the locator to the file path
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// Get filename without extension for default title
	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	doc, err := NewDocument(title, filePath, ContentTypeFile, metadata)
	if err != nil {
		return nil, err
	}
	doc.Content = string(content)
	return doc, nil
}
