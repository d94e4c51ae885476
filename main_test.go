package retriever

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"strings"
	"testing"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/testcontainers/testcontainers-go"
)

const testDimensions = 16

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

// wordEmbedder embeds text as a bag of hashed words.
type wordEmbedder struct{}

func wordVector(text string) []float32 {
	vec := make([]float32, testDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%(testDimensions-1)]++
	}
	vec[testDimensions-1] = 0.5
	return vec
}

func (wordEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return wordVector(text), nil
}

func (wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return wordVector(text), nil
}

func (wordEmbedder) Dimensions() int { return testDimensions }
func (wordEmbedder) Model() string   { return "words" }

// staticExtractor returns the same text for every document.
type staticExtractor struct {
	text string
}

func (s staticExtractor) Extract(ctx context.Context, locator string, contentType model.ContentType) (string, error) {
	if s.text == "" {
		return "", errors.New("nothing to extract")
	}
	return s.text, nil
}
