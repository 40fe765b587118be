package main

import (
	"context"
	"drone-helpdesk-go/pkg/watcher"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest every PDF in the corpus directory once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		indexer, cleanup, err := openIndexer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := indexer.IngestDirectory(ctx, cfg.RAG.DocsDir)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), cfg.RAG.DocsDir, summary)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest the corpus directory, then keep ingesting new PDFs as they appear",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		indexer, cleanup, err := openIndexer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := os.MkdirAll(cfg.RAG.DocsDir, os.ModePerm); err != nil {
			return err
		}
		summary, err := indexer.IngestDirectory(ctx, cfg.RAG.DocsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printSummary(out, cfg.RAG.DocsDir, summary)

		debounce, _ := cmd.Flags().GetDuration("debounce")
		w, err := watcher.NewCorpusWatcher(cfg.RAG.DocsDir, debounce, func(ctx context.Context, path string) error {
			res := indexer.IngestFile(ctx, path)
			printResult(out, res)
			return res.Err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, headerColor.Sprintf("Watching %s (Ctrl+C to stop)", cfg.RAG.DocsDir))
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, cleanup, err := openIndex(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := index.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every chunk from the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("reset deletes the whole collection; pass --yes to confirm")
		}
		index, cleanup, err := openIndex(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := index.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("Index reset. ")+
			"Processed flags in the documents table are kept; remove the rows to re-ingest "+filepath.Clean(cfg.RAG.DocsDir)+".")
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", 2*time.Second, "wait after the last write before ingesting a file")
	resetCmd.Flags().Bool("yes", false, "confirm deletion")
	rootCmd.AddCommand(runCmd, watchCmd, statsCmd, resetCmd)
}
