package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

const sampleContent = `Photosynthesis is the process plants use to turn light into chemical energy.
It takes place in the chloroplasts, which contain the green pigment chlorophyll.

In the light dependent reactions, chlorophyll absorbs light and splits water.
Oxygen is released and the energy is stored in ATP and NADPH.

In the Calvin cycle, the plant uses ATP and NADPH to fix carbon dioxide into sugar.
The enzyme RuBisCO catalyzes the first step of carbon fixation.

Photosynthesis produces the oxygen in the atmosphere and the food at the base of almost every food chain.
Without it, life on earth as we know it would not exist.`

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Local sentence transformer, downloaded on first use
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer embedder.Close()

	// Smaller windows than the default so the sample yields several chunks
	config := model.DefaultRetrievalConfig()
	config.ChunkSize = 300
	config.ChunkOverlap = 50
	config.MinContentLength = 200

	r, err := retriever.NewRetriever(dbConfig, embedder, nil, config)
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}
	defer r.Close()

	doc, err := model.NewDocument("Photosynthesis", "basic_example", model.ContentTypeFile, model.Metadata{
		"language": "en",
		"author":   "Example Author",
	})
	if err != nil {
		log.Fatalf("Failed to create document: %v", err)
	}
	doc.Content = sampleContent

	// Insert and index the document in one call
	fmt.Println("Indexing document...")
	outcome, err := r.AddDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to index document: %v", err)
	}
	fmt.Printf("Document indexed with ID: %s\n", doc.DocumentID())
	fmt.Printf("Stored %d chunks (%s)\n", outcome.ChunksAdded, doc.IndexReference)

	// Retrieve the generation context for every task
	for _, task := range []model.TaskType{model.TaskTypeSummary, model.TaskTypeNotes, model.TaskTypeQuiz} {
		result := r.GetContentForGeneration(ctx, doc.DocumentID(), task, 2)
		fmt.Printf("\n--- %s ---\n", task)
		fmt.Printf("Source: %s, chunks: %d, scores: %v\n", result.Source, result.ChunksUsed, result.SimilarityScores)
		fmt.Println(result.Content)
	}

	// Ask a question about the document
	question := "What does RuBisCO do?"
	fmt.Printf("\nQuestion: %s\n", question)
	hits, err := r.Search(ctx, model.RetrievalQuery{
		Question:   question,
		DocumentID: doc.DocumentID(),
		K:          1,
	})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	for _, hit := range hits {
		fmt.Printf("Best match (%.4f): %s\n", hit.Similarity, strings.ReplaceAll(hit.Text, "\n", " "))
	}

	fmt.Println("\nBasic example completed successfully!")
}
