package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/core/indexing"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/database/sqlite"
	"github.com/siherrmann/retriever/extract"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

const cellsContent = `Cells are the basic unit of life. Every organism is made of one or more cells.

The cell membrane separates the inside of the cell from its environment.
It is made of a lipid bilayer with embedded proteins that control what enters and leaves.

The nucleus holds the genetic material of eukaryotic cells.
DNA is transcribed into RNA in the nucleus and translated into proteins by ribosomes.

Mitochondria produce most of the ATP a cell needs through cellular respiration.
They have their own DNA, a hint that they descend from bacteria.`

const noteContent = `Short note: mitosis splits one cell into two.`

func main() {
	ctx := context.Background()

	logger := slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
	}))

	dir, err := os.MkdirTemp("", "retriever-advanced")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	// Source files the full-text fallback reads from
	files := map[string]string{
		"cells.md": cellsContent,
		"note.txt": noteContent,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer embedder.Close()

	// Embedded index, no database server needed
	index, err := sqlite.Open(filepath.Join(dir, "index.db"), embedder.Dimensions(), logger)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	defer index.Close()

	config := model.DefaultRetrievalConfig()
	config.ChunkSize = 250
	config.ChunkOverlap = 50
	config.MinContentLength = 300

	extractor := extract.NewRouter().Register(model.ContentTypeFile, extract.NewFileExtractor())
	r, err := retriever.NewRetrieverWithIndex(index, sqlite.NewDocumentStore(index), embedder, extractor, config, logger)
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}

	// Insert the documents and index them in parallel
	var requests []indexing.IndexRequest
	for name := range files {
		path := filepath.Join(dir, name)
		doc, err := model.NewDocument(name, path, model.ContentTypeFile, nil)
		if err != nil {
			log.Fatalf("Failed to create document: %v", err)
		}
		if _, err := r.AddDocument(ctx, doc); err != nil {
			log.Fatalf("Failed to insert document: %v", err)
		}

		text, err := extractor.Extract(ctx, path, model.ContentTypeFile)
		if err != nil {
			log.Fatalf("Failed to extract %s: %v", name, err)
		}
		requests = append(requests, indexing.IndexRequest{Document: doc, Text: text})
	}

	var ids []string
	for _, outcome := range r.IndexDocuments(ctx, requests) {
		if outcome.Err != nil {
			log.Fatalf("Failed to index %s: %v", outcome.Document.Title, outcome.Err)
		}
		fmt.Printf("Indexed %s into %d chunks\n", outcome.Document.Title, outcome.ChunksAdded)
		ids = append(ids, outcome.Document.DocumentID())
	}

	// The short note is below the quality floor and falls back to its full text
	for _, id := range ids {
		result := r.Retrieve(ctx, id, model.RetrievalQuery{
			Question: "How do cells produce energy?",
			TaskType: model.TaskTypeChat,
			K:        3,
		})
		fmt.Printf("\n--- %s (%s, %d chunks) ---\n", id, result.Source, result.ChunksUsed)
		fmt.Println(result.Content)
	}

	// Removing the chunks makes every retrieval use the full text
	if _, err := r.UnindexDocument(ctx, ids[0]); err != nil {
		log.Fatalf("Failed to unindex document: %v", err)
	}
	result := r.GetContentForGeneration(ctx, ids[0], model.TaskTypeSummary, 3)
	fmt.Printf("\nAfter unindexing: %s\n", result.Source)

	stats, err := r.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	fmt.Printf("\nIndex: %d chunks of %d documents, retrievals: %+v\n", stats.Index.TotalChunks, stats.Index.UniqueDocuments, stats.Retrieval)

	fmt.Println("\nAdvanced example completed successfully!")
}
