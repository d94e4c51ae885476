package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/siherrmann/retriever/model"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgHiBlack)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func printField(out io.Writer, label string, value any) {
	labelColor.Fprintf(out, "%-14s", label+":")
	fmt.Fprintf(out, " %v\n", value)
}

func sourceColor(source model.Source) *color.Color {
	switch source {
	case model.SourceRAG:
		return okColor
	case model.SourceFullText:
		return warnColor
	}
	return errorColor
}

func printDocument(out io.Writer, doc *model.Document) {
	headingColor.Fprintln(out, doc.Title)
	printField(out, "id", doc.DocumentID())
	printField(out, "locator", doc.ContentLocator)
	printField(out, "type", doc.ContentType)
	printField(out, "state", doc.IndexState)
	if doc.IndexReference != "" {
		printField(out, "reference", doc.IndexReference)
	}
	printField(out, "chunks", doc.ChunkCount)
}

func printResult(out io.Writer, result model.RetrievalResult) {
	sourceColor(result.Source).Fprintf(out, "source: %s\n", result.Source)
	if result.Error != "" {
		printField(out, "error", result.Error)
		return
	}
	printField(out, "chunks used", result.ChunksUsed)
	if len(result.SimilarityScores) > 0 {
		scores := make([]string, len(result.SimilarityScores))
		for i, s := range result.SimilarityScores {
			scores[i] = fmt.Sprintf("%.3f", s)
		}
		printField(out, "similarity", strings.Join(scores, ", "))
	}
	for k, v := range result.Metadata {
		printField(out, k, v)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.Content)
}

func printHits(out io.Writer, hits []*model.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	for i, hit := range hits {
		headingColor.Fprintf(out, "[%d] %s", i+1, hit.ChunkID)
		labelColor.Fprintf(out, " (%.3f)\n", hit.Similarity)
		fmt.Fprintf(out, "    %s\n\n", snippet(hit.Text, 200))
	}
}

func snippet(text string, maxLength int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength]) + "..."
}
