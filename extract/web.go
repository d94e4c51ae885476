package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siherrmann/retriever/model"
)

// DefaultWebMaxLength is the number of characters kept from a web article.
const DefaultWebMaxLength = 15000

const maxResponseSize = 10 << 20

// WebExtractor downloads a web page and returns its text.
type WebExtractor struct {
	Client    *http.Client
	UserAgent string
	MaxLength int
}

var _ Source = (*WebExtractor)(nil)

// NewWebExtractor creates a WebExtractor. A maxLength of zero uses DefaultWebMaxLength.
func NewWebExtractor(userAgent string, maxLength int) *WebExtractor {
	if maxLength <= 0 {
		maxLength = DefaultWebMaxLength
	}
	return &WebExtractor{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: userAgent,
		MaxLength: maxLength,
	}
}

// Extract fetches rawURL and converts the HTML body to text.
func (w *WebExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid web url %q", model.ErrExtraction, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	if w.UserAgent != "" {
		req.Header.Set("User-Agent", w.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	body, contentType, err := get(w.client(), req)
	if err != nil {
		return "", err
	}

	text := string(body)
	if !strings.HasPrefix(contentType, "text/plain") {
		text = StripHTML(text)
	}
	return Truncate(text, w.MaxLength), nil
}

func (w *WebExtractor) client() *http.Client {
	if w.Client == nil {
		return http.DefaultClient
	}
	return w.Client
}

func get(client *http.Client, req *http.Request) ([]byte, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: %s returned status %d", model.ErrExtraction, req.URL.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", model.ErrExtraction, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
