package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/siherrmann/retriever/model"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists, use --force to overwrite it", configPath)
			}
			if err := model.SaveConfig(configPath, model.DefaultConfig()); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}

func indexCmd() *cobra.Command {
	var contentType, title string
	cmd := &cobra.Command{
		Use:   "index [locator]",
		Short: "Extract, chunk and embed a document",
		Long: `Extracts the text of a file, web article or transcript, stores the document
and indexes its chunks. The printed id is used by the other commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				locator := args[0]
				ct := model.ContentType(contentType)
				if title == "" {
					title = filepath.Base(locator)
				}

				doc, err := model.NewDocument(title, locator, ct, model.Metadata{"source_type": "cli"})
				if err != nil {
					return err
				}

				text, err := a.retriever.Extractor.Extract(ctx, locator, ct)
				if err != nil {
					return err
				}
				doc.Content = text

				outcome, err := a.retriever.AddDocument(ctx, doc)
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), outcome.Document)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", string(model.ContentTypeFile), "content type: file, web-article or streamed-transcript")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: base name of the locator)")
	return cmd
}

func reindexAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex-all",
		Short: "Extract and index every stored document again",
		Long:  `Rebuilds the index of every document, e.g. after changing the embedding model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.retriever.ReindexAll(ctx)
				if stats != nil {
					out := cmd.OutOrStdout()
					printField(out, "total", stats.Total)
					printField(out, "succeeded", okColor.Sprint(stats.Succeeded))
					printField(out, "failed", errorColor.Sprint(stats.Failed))
				}
				return err
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var documentID string
	var k int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the nearest chunks of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				hits, err := a.retriever.Search(ctx, model.RetrievalQuery{
					Question:   args[0],
					DocumentID: documentID,
					K:          k,
				})
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), hits)
				}
				printHits(cmd.OutOrStdout(), hits)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "restrict the search to one document")
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "maximum number of chunks (default: default_chunk_count)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func retrieveCmd() *cobra.Command {
	var task, question string
	var k int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "retrieve [document-id]",
		Short: "Get the generation context of a document",
		Long: `Returns the chunks of the document most relevant to the task or question.
If the document has no usable index or the chunks are too short, the extracted
full text is returned instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result := a.retriever.Retrieve(ctx, args[0], model.RetrievalQuery{
					Question: question,
					TaskType: model.TaskType(task),
					K:        k,
				})
				if asJSON {
					if err := printJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), result)
				}
				if result.Source == model.SourceError {
					return errors.New(result.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", string(model.TaskTypeSummary), "task: summary, notes, quiz or chat")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to retrieve context for, overrides the task query")
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of chunks (default: default_chunk_count)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	return cmd
}

func deleteCmd() *cobra.Command {
	var keepMetadata bool
	cmd := &cobra.Command{
		Use:   "delete [document-id]",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var deleted int
				var err error
				if keepMetadata {
					deleted, err = a.retriever.UnindexDocument(ctx, args[0])
				} else {
					deleted, err = a.retriever.DeleteDocument(ctx, args[0])
				}
				if err != nil {
					return err
				}
				okColor.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks of %s\n", deleted, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepMetadata, "keep-metadata", false, "only remove the chunks and keep the document")
	return cmd
}

func chunksCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chunks [document-id]",
		Short: "List the stored chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				doc, err := a.retriever.Document(ctx, args[0])
				if err != nil {
					return err
				}
				chunks, err := a.retriever.Chunks(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					for _, chunk := range chunks {
						chunk.Embedding = nil
					}
					return printJSON(cmd.OutOrStdout(), chunks)
				}

				out := cmd.OutOrStdout()
				printDocument(out, doc)
				fmt.Fprintln(out)
				for _, chunk := range chunks {
					headingColor.Fprintf(out, "[%d] %s", chunk.ChunkIndex, chunk.ID)
					labelColor.Fprintf(out, " (%d bytes)\n", chunk.Metadata.ChunkLength)
					fmt.Fprintf(out, "    %s\n\n", snippet(chunk.Content, 200))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the chunks as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.retriever.Stats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				out := cmd.OutOrStdout()
				headingColor.Fprintln(out, "Index")
				printField(out, "backend", a.cfg.Index.Backend)
				printField(out, "embedder", a.cfg.Embedder.Provider+" "+a.cfg.Embedder.Model)
				printField(out, "chunks", stats.Index.TotalChunks)
				printField(out, "documents", stats.Index.UniqueDocuments)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the statistics as JSON")
	return cmd
}
