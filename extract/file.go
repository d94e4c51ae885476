package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/siherrmann/retriever/model"
)

// MaxFileSize is the largest file the FileExtractor reads.
const MaxFileSize = 50 << 20

// FileExtractor reads text files from the local filesystem.
// HTML files are reduced to their text, other formats are returned as is.
type FileExtractor struct {
	MaxSize int64
}

var _ Source = (*FileExtractor)(nil)

// NewFileExtractor creates a FileExtractor with the MaxFileSize limit.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{MaxSize: MaxFileSize}
}

// SupportedExtensions returns the file extensions the extractor can read.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".csv", ".json", ".html", ".htm"}
}

func supported(ext string) bool {
	for _, e := range SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// Extract reads the file at path.
func (f *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supported(ext) {
		return "", fmt.Errorf("%w: unsupported file type %q", model.ErrExtraction, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", model.ErrExtraction, path)
	}

	maxSize := f.MaxSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if info.Size() > maxSize {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d", model.ErrExtraction, info.Size(), maxSize)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxSize))
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}

	if ext == ".html" || ext == ".htm" {
		return StripHTML(string(content)), nil
	}
	return strings.TrimSpace(string(content)), nil
}
