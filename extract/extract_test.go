package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	text string
	err  error
}

func (s staticSource) Extract(ctx context.Context, locator string) (string, error) {
	return s.text, s.err
}

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("Route to the source of the content type", func(t *testing.T) {
		router := NewRouter().
			Register(model.ContentTypeFile, staticSource{text: "file text"}).
			Register(model.ContentTypeWebArticle, staticSource{text: "web text"})

		text, err := router.Extract(ctx, "a.txt", model.ContentTypeFile)
		require.NoError(t, err)
		assert.Equal(t, "file text", text)

		text, err = router.Extract(ctx, "https://example.com", model.ContentTypeWebArticle)
		require.NoError(t, err)
		assert.Equal(t, "web text", text)
	})

	t.Run("Unknown content type is an extraction error", func(t *testing.T) {
		_, err := NewRouter().Extract(ctx, "x", model.ContentTypeTranscript)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Source errors are wrapped as extraction errors", func(t *testing.T) {
		cause := errors.New("boom")
		router := NewRouter().Register(model.ContentTypeFile, staticSource{err: cause})

		_, err := router.Extract(ctx, "a.txt", model.ContentTypeFile)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrExtraction)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Empty text is an extraction error", func(t *testing.T) {
		router := NewRouter().Register(model.ContentTypeFile, staticSource{text: ""})

		_, err := router.Extract(ctx, "a.txt", model.ContentTypeFile)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Whitespace only text is an extraction error", func(t *testing.T) {
		router := NewRouter().Register(model.ContentTypeFile, staticSource{text: " \n\t\r\n "})

		_, err := router.Extract(ctx, "blank.txt", model.ContentTypeFile)
		assert.ErrorIs(t, err, model.ErrExtraction)
		assert.Contains(t, err.Error(), "no text extracted from blank.txt")
	})
}

func TestFileExtractor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("Read a text file", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("  Photosynthesis converts light.  \n"), 0o600))

		text, err := NewFileExtractor().Extract(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis converts light.", text)
	})

	t.Run("Strip html files", func(t *testing.T) {
		path := filepath.Join(dir, "page.html")
		content := `<html><head><title>T</title></head><body><p>Hello &amp; welcome</p><script>var x = 1;</script></body></html>`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		text, err := NewFileExtractor().Extract(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "Hello & welcome", text)
	})

	t.Run("Unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "slides.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

		_, err := NewFileExtractor().Extract(ctx, path)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := NewFileExtractor().Extract(ctx, filepath.Join(dir, "missing.txt"))
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("File larger than the limit", func(t *testing.T) {
		path := filepath.Join(dir, "large.txt")
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 64)), 0o600))

		_, err := (&FileExtractor{MaxSize: 10}).Extract(ctx, path)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}

func TestStripHTML(t *testing.T) {
	t.Run("Remove invisible elements and keep block structure", func(t *testing.T) {
		content := `<!DOCTYPE html>
<html>
<head><style>p { color: red; }</style><title>Ignored</title></head>
<body>
<!-- a comment -->
<h1>Cells</h1>
<p>The   cell is the <b>basic</b> unit.</p>
<noscript>Enable javascript</noscript>
<ul><li>Nucleus</li><li>Membrane</li></ul>
<svg><text>chart</text></svg>
</body>
</html>`

		text := StripHTML(content)
		assert.Equal(t, "Cells\n\nThe cell is the basic unit.\n\nNucleus\n\nMembrane", text)
		assert.NotContains(t, text, "color")
		assert.NotContains(t, text, "comment")
		assert.NotContains(t, text, "javascript")
		assert.NotContains(t, text, "chart")
	})

	t.Run("Unescape entities", func(t *testing.T) {
		assert.Equal(t, `5 < 6 & "quoted"`, StripHTML(`<p>5 &lt; 6 &amp; &quot;quoted&quot;</p>`))
	})
}

func TestTruncate(t *testing.T) {
	t.Run("Short text is unchanged", func(t *testing.T) {
		assert.Equal(t, "short", Truncate("short", 10))
	})

	t.Run("Long text is cut and marked", func(t *testing.T) {
		text := Truncate(strings.Repeat("ä", 20), 10)
		assert.Equal(t, strings.Repeat("ä", 10)+TruncationMarker, text)
	})
}

func TestWebExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("Fetch and strip a page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "retriever-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><article><p>Mitochondria produce energy.</p></article></body></html>`))
		}))
		defer server.Close()

		text, err := NewWebExtractor("retriever-test", 0).Extract(ctx, server.URL)
		require.NoError(t, err)
		assert.Equal(t, "Mitochondria produce energy.", text)
	})

	t.Run("Truncate long pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		text, err := NewWebExtractor("", 40).Extract(ctx, server.URL)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("x", 40)+TruncationMarker, text)
	})

	t.Run("Non success status is an extraction error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewWebExtractor("", 0).Extract(ctx, server.URL)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Invalid url", func(t *testing.T) {
		_, err := NewWebExtractor("", 0).Extract(ctx, "ftp://example.com/file")
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}

func TestTranscriptExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("Join transcript segments", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret", r.Header.Get("x-api-key"))
			assert.Equal(t, "https://video.example/watch?v=1", r.URL.Query().Get("url"))
			assert.Equal(t, "en", r.URL.Query().Get("lang"))
			_, _ = w.Write([]byte(`{"content":[{"text":"Hello everyone."},{"text":""},{"text":"Today we learn."}]}`))
		}))
		defer server.Close()

		text, err := NewTranscriptExtractor(server.URL, "secret").Extract(ctx, "https://video.example/watch?v=1")
		require.NoError(t, err)
		assert.Equal(t, "Hello everyone. Today we learn.", text)
	})

	t.Run("Accept plain content and segments", func(t *testing.T) {
		text, err := parseTranscript([]byte(`{"content":"Full transcript."}`))
		require.NoError(t, err)
		assert.Equal(t, "Full transcript.", text)

		text, err = parseTranscript([]byte(`{"segments":[{"text":"One."},{"text":"Two."}]}`))
		require.NoError(t, err)
		assert.Equal(t, "One. Two.", text)
	})

	t.Run("Retry without language", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if r.URL.Query().Get("lang") != "" {
				_, _ = w.Write([]byte(`{"content":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"content":"Bonjour."}`))
		}))
		defer server.Close()

		text, err := NewTranscriptExtractor(server.URL, "secret").Extract(ctx, "https://video.example/watch?v=2")
		require.NoError(t, err)
		assert.Equal(t, "Bonjour.", text)
		assert.Equal(t, 2, calls)
	})

	t.Run("Missing api key", func(t *testing.T) {
		_, err := NewTranscriptExtractor("http://localhost", "").Extract(ctx, "https://video.example/watch?v=3")
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}
