package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "retriever",
		Short: "Index documents and retrieve generation context",
		Long: `retriever chunks and embeds documents into a vector index and returns
the most relevant content of a document for summaries, notes, quizzes or chat.
Documents without a usable index fall back to their extracted full text.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "retriever.yaml", "path to the yaml config")

	root.AddCommand(initCmd())
	root.AddCommand(indexCmd())
	root.AddCommand(reindexAllCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(retrieveCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(chunksCmd())
	root.AddCommand(statsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
