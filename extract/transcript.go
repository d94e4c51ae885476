package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siherrmann/retriever/model"
)

// TranscriptExtractor fetches the transcript of a streamed video from a transcript API.
// The API is called as GET {Endpoint}?url={locator}&lang={Language} with the key in the x-api-key header.
type TranscriptExtractor struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Language string
}

var _ Source = (*TranscriptExtractor)(nil)

// NewTranscriptExtractor creates a TranscriptExtractor preferring english transcripts.
func NewTranscriptExtractor(endpoint string, apiKey string) *TranscriptExtractor {
	return &TranscriptExtractor{
		Client:   &http.Client{Timeout: 30 * time.Second},
		Endpoint: endpoint,
		APIKey:   apiKey,
		Language: "en",
	}
}

type transcriptSegment struct {
	Text string `json:"text"`
}

type transcriptResponse struct {
	Content  json.RawMessage     `json:"content"`
	Segments []transcriptSegment `json:"segments"`
}

// Extract returns the transcript text of the video at locator.
// Segments are joined by single spaces.
func (t *TranscriptExtractor) Extract(ctx context.Context, locator string) (string, error) {
	if t.Endpoint == "" {
		return "", fmt.Errorf("%w: transcript endpoint is not configured", model.ErrExtraction)
	}
	if t.APIKey == "" {
		return "", fmt.Errorf("%w: transcript api key is not configured", model.ErrExtraction)
	}

	text, err := t.fetch(ctx, locator, t.Language)
	if err != nil && t.Language != "" {
		// Not every video has a transcript in the preferred language.
		text, err = t.fetch(ctx, locator, "")
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (t *TranscriptExtractor) fetch(ctx context.Context, locator string, language string) (string, error) {
	endpoint, err := url.Parse(t.Endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid transcript endpoint: %w", model.ErrExtraction, err)
	}
	query := endpoint.Query()
	query.Set("url", locator)
	if language != "" {
		query.Set("lang", language)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	req.Header.Set("x-api-key", t.APIKey)
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, _, err := get(client, req)
	if err != nil {
		return "", err
	}

	return parseTranscript(body)
}

func parseTranscript(body []byte) (string, error) {
	var resp transcriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode transcript: %w", model.ErrExtraction, err)
	}

	var parts []string
	if len(resp.Content) > 0 {
		var plain string
		var segments []transcriptSegment
		switch {
		case json.Unmarshal(resp.Content, &plain) == nil:
			parts = append(parts, plain)
		case json.Unmarshal(resp.Content, &segments) == nil:
			for _, s := range segments {
				parts = append(parts, s.Text)
			}
		default:
			return "", fmt.Errorf("%w: unexpected transcript content", model.ErrExtraction)
		}
	}
	for _, s := range resp.Segments {
		parts = append(parts, s.Text)
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return "", fmt.Errorf("%w: transcript has no content", model.ErrExtraction)
	}
	return strings.Join(nonEmpty, " "), nil
}
