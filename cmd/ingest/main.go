// Command ingest 离线摄取法规 PDF 语料，并提供索引统计与重置。
package main

import (
	"context"
	"drone-helpdesk-go/internal/bootstrap"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/internal/pipeline"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/pkg/database"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/vectorstore"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Index drone regulation PDFs into the vector store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("docs-dir"); dir != "" {
			loaded.RAG.DocsDir = dir
		}
		cfg = loaded
		log.Init(cfg.Log.Level, cfg.Log.Format, "")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./configs/config.yaml", "config file")
	rootCmd.PersistentFlags().String("docs-dir", "", "corpus directory (overrides rag.docs_dir)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer log.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}

// openIndex 只连接向量索引，stats 与 reset 不需要 MySQL。
func openIndex(ctx context.Context) (*vectorstore.Index, func(), error) {
	return bootstrap.NewIndex(ctx, cfg)
}

// openIndexer 连接向量索引与文档登记表。
func openIndexer(ctx context.Context) (*pipeline.Indexer, func(), error) {
	chunker, err := pipeline.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	index, cleanup, err := openIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
		cleanup()
		return nil, nil, err
	}
	docRepo := repository.NewDocumentRepository(database.DB)
	return pipeline.NewIndexer(bootstrap.NewExtractor(cfg), chunker, index, docRepo, nil), cleanup, nil
}
