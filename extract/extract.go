package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// Extractor returns the full text of a document on demand.
// Implementations must not modify the document or the index.
type Extractor interface {
	Extract(ctx context.Context, locator string, contentType model.ContentType) (string, error)
}

// Source extracts text from one kind of content locator.
type Source interface {
	Extract(ctx context.Context, locator string) (string, error)
}

// Router dispatches to the Source registered for a content type.
type Router struct {
	sources map[model.ContentType]Source
}

var _ Extractor = (*Router)(nil)

// NewRouter creates a router without sources, add them with Register.
func NewRouter() *Router {
	return &Router{sources: map[model.ContentType]Source{}}
}

// Register sets the source for a content type, replacing an earlier one.
func (r *Router) Register(contentType model.ContentType, source Source) *Router {
	r.sources[contentType] = source
	return r
}

// Extract calls the source registered for contentType.
// An empty result is reported as an extraction error.
func (r *Router) Extract(ctx context.Context, locator string, contentType model.ContentType) (string, error) {
	source, ok := r.sources[contentType]
	if !ok {
		return "", helper.NewError("route extraction", fmt.Errorf("%w: no extractor for content type %q", model.ErrExtraction, contentType))
	}

	text, err := source.Extract(ctx, locator)
	if err != nil {
		return "", helper.NewError(string(contentType), wrapExtraction(err))
	}
	if strings.TrimSpace(text) == "" {
		return "", helper.NewError(string(contentType), fmt.Errorf("%w: no text extracted from %s", model.ErrExtraction, locator))
	}
	return text, nil
}

func wrapExtraction(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrExtraction) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrExtraction, err)
}
