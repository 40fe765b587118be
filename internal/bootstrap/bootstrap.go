// Package bootstrap 按配置组装 server 与 ingest 共用的组件。
package bootstrap

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/pkg/database"
	"drone-helpdesk-go/pkg/embedding"
	"drone-helpdesk-go/pkg/extract"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/vectorstore"
	"fmt"
)

// NewExtractor 根据 extractor.backend 选择 PDF 文本提取实现。
func NewExtractor(cfg config.Config) extract.Extractor {
	if cfg.Extractor.Backend == "tika" {
		log.Infof("[Bootstrap] 使用 Tika 提取文本: %s", cfg.Tika.ServerURL)
		return extract.NewTikaExtractor(cfg.Tika)
	}
	return extract.NewLocalPDFExtractor()
}

// NewIndex 根据 vectorstore.backend 创建向量索引，并确保索引或表结构存在。
// 返回的 cleanup 释放后端持有的连接。
func NewIndex(ctx context.Context, cfg config.Config) (*vectorstore.Index, func(), error) {
	embedder := embedding.NewClient(cfg.Embedding)
	cleanup := func() {}

	var backend vectorstore.Backend
	switch cfg.VectorStore.Backend {
	case "elasticsearch":
		client, err := vectorstore.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			return nil, cleanup, fmt.Errorf("create elasticsearch client: %w", err)
		}
		es := vectorstore.NewElasticsearchBackend(client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
		if err := es.EnsureIndex(ctx); err != nil {
			return nil, cleanup, err
		}
		backend = es
	case "pgvector":
		pool, err := database.InitPostgres(ctx, cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, cleanup, err
		}
		pg, err := vectorstore.NewPgvectorBackend(pool, cfg.VectorStore.Table, cfg.Embedding.Dimensions)
		if err != nil {
			pool.Close()
			return nil, cleanup, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, cleanup, err
		}
		backend = pg
		cleanup = pool.Close
	case "memory":
		log.Warnf("[Bootstrap] 使用内存向量索引，进程退出后数据丢失")
		backend = vectorstore.NewMemoryBackend()
	default:
		return nil, cleanup, fmt.Errorf("unknown vectorstore backend %q", cfg.VectorStore.Backend)
	}

	log.Infof("[Bootstrap] 向量索引后端: %s (%s)", backend.Name(), backend.Collection())
	return vectorstore.NewIndex(embedder, backend), cleanup, nil
}
