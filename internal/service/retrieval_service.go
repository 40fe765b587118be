// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/vectorstore"
	"fmt"
	"math"
	"strings"
	"time"
)

// Searcher 是检索服务依赖的向量索引能力，由 *vectorstore.Index 实现。
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]model.SearchHit, error)
}

// RetrievalService 将用户问题转换为带相关度的上下文片段与来源列表。
type RetrievalService interface {
	// SearchRelevantContext 返回拼接好的上下文与来源；无结果或检索失败时返回 ("", 空切片)。
	SearchRelevantContext(ctx context.Context, query string, nResults int, docType model.DocumentType) (string, []model.SourceRecord)
}

type retrievalService struct {
	searcher Searcher
	timeout  time.Duration
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。timeout <= 0 表示不额外限时。
func NewRetrievalService(searcher Searcher, timeout time.Duration) RetrievalService {
	return &retrievalService{searcher: searcher, timeout: timeout}
}

func (s *retrievalService) SearchRelevantContext(ctx context.Context, query string, nResults int, docType model.DocumentType) (string, []model.SourceRecord) {
	log.Infof("[RetrievalService] 开始检索, query: '%s', n_results: %d, document_type: '%s'", truncate(query, 100), nResults, docType)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hits, err := s.searcher.Search(ctx, query, nResults, vectorstore.DocumentTypeFilter(docType))
	if err != nil {
		// 检索失败降级为“无上下文”，由回答服务走明确的无信息分支
		log.Errorf("[RetrievalService] 向量检索失败, 按无上下文处理: %v", err)
		return "", []model.SourceRecord{}
	}
	if len(hits) == 0 {
		log.Warnf("[RetrievalService] 未找到相关文档片段")
		return "", []model.SourceRecord{}
	}

	parts := make([]string, 0, len(hits))
	sources := make([]model.SourceRecord, 0, len(hits))
	for i, h := range hits {
		relevance := h.Relevance()
		parts = append(parts, formatFragment(i+1, relevance, h.Metadata.Source, h.Text))
		sources = append(sources, model.SourceRecord{
			Source:       h.Metadata.Source,
			DocumentType: h.Metadata.DocumentType,
			Relevance:    relevance,
			ChunkIndex:   h.Metadata.ChunkIndex,
		})
	}

	log.Infof("[RetrievalService] 找到 %d 个相关片段", len(hits))
	return strings.Join(parts, "\n\n"), sources
}

// formatFragment 生成单个带编号、相关度与来源的片段。
func formatFragment(rank int, relevance float64, source, text string) string {
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("--- Fragment %d (Relevance: %d%%) ---\nSource: %s\n%s",
		rank, int(math.Round(relevance*100)), source, text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
