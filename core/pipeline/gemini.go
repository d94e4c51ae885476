package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/model"
	"google.golang.org/genai"
)

// Gemini embedding task types
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbedder embeds text with the Gemini embedding API.
// Documents and queries use the retrieval task types of the API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates a Gemini API client for the given model.
// An empty baseURL uses the public Gemini API endpoint.
func NewGeminiEmbedder(ctx context.Context, apiKey string, baseURL string, modelName string, dimensions int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", model.ErrInvalidInput)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", model.ErrInvalidInput)
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      strings.TrimPrefix(modelName, "models/"),
		dimensions: dimensions,
	}, nil
}

// EmbedDocument embeds a chunk for storage.
func (e *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, geminiTaskDocument)
}

// EmbedQuery embeds a search query.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, geminiTaskQuery)
}

func (e *GeminiEmbedder) embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	dimensions := int32(e.dimensions) // #nosec G115 -- dimensions are small positive numbers
	result, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed content: %w", model.ErrProvider, err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: no embedding generated", model.ErrProvider)
	}

	return checkEmbedding(result.Embeddings[0].Values, e.dimensions)
}

// Dimensions returns the configured output dimensionality.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model name.
func (e *GeminiEmbedder) Model() string {
	return e.model
}
