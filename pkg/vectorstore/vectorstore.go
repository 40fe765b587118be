// Package vectorstore 存储分块向量并回答近邻查询。
//
// Index 负责调用 embedding 模型，具体的存储与检索交给 Backend。写入同一 ID 时覆盖旧记录（upsert）。
package vectorstore

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/embedding"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"sort"
)

// 每次调用 embedding 接口的最大文本数。
const embedBatchSize = 64

// Record 是写入后端的一条分块记录。
type Record struct {
	ID       string
	Text     string
	Metadata model.ChunkMetadata
	Vector   []float32
}

// Filter 是对元数据的精确匹配条件，键为元数据字段名（source、document_type）。
// 未知字段不报错，只是匹配不到任何记录。
type Filter map[string]string

// DocumentTypeFilter 返回按文档类型过滤的条件；docType 为空时返回 nil（不过滤）。
func DocumentTypeFilter(docType model.DocumentType) Filter {
	if docType == "" {
		return nil
	}
	return Filter{"document_type": string(docType)}
}

// Stats 描述索引当前状态。
type Stats struct {
	Backend    string `json:"backend"`
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

// Backend 是向量存储引擎的抽象。Query 返回的 Distance 为余弦距离（1 - cos）。
type Backend interface {
	Name() string
	Collection() string
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]model.SearchHit, error)
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// Index 组合 embedding 客户端与存储后端，进程内构造一次后共享。
type Index struct {
	embedder embedding.Client
	backend  Backend
}

// NewIndex 创建一个新的 Index。
func NewIndex(embedder embedding.Client, backend Backend) *Index {
	return &Index{embedder: embedder, backend: backend}
}

// Add 嵌入并写入分块。三个切片必须等长，ids 在本次调用内不得重复。
func (i *Index) Add(ctx context.Context, texts []string, metadatas []model.ChunkMetadata, ids []string) error {
	if len(texts) != len(metadatas) || len(texts) != len(ids) {
		return fmt.Errorf("texts, metadatas and ids must have the same length (%d, %d, %d)", len(texts), len(metadatas), len(ids))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate chunk id %q", id)
		}
		seen[id] = struct{}{}
	}

	records := make([]Record, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := i.embedder.CreateEmbeddings(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		for j, vec := range vectors {
			records = append(records, Record{
				ID:       ids[start+j],
				Text:     texts[start+j],
				Metadata: metadatas[start+j],
				Vector:   vec,
			})
		}
	}

	if len(records) == 0 {
		return nil
	}
	if err := i.backend.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert %d records into %s: %w", len(records), i.backend.Name(), err)
	}
	log.Infof("[VectorIndex] 写入 %d 个分块到 %s/%s", len(records), i.backend.Name(), i.backend.Collection())
	return nil
}

// AddChunks 是 Add 的便捷形式。
func (i *Index) AddChunks(ctx context.Context, chunks []model.Chunk) error {
	texts := make([]string, len(chunks))
	metas := make([]model.ChunkMetadata, len(chunks))
	ids := make([]string, len(chunks))
	for j, ch := range chunks {
		texts[j], metas[j], ids[j] = ch.Text, ch.Metadata, ch.ID
	}
	return i.Add(ctx, texts, metas, ids)
}

// Search 嵌入查询文本并返回最多 k 个近邻，按距离升序排列。
// 索引为空或过滤条件无匹配时返回空切片而不是错误。
func (i *Index) Search(ctx context.Context, query string, k int, filter Filter) ([]model.SearchHit, error) {
	if k <= 0 {
		return []model.SearchHit{}, nil
	}
	vector, err := i.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := i.backend.Query(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", i.backend.Name(), err)
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count 返回已索引的分块总数。
func (i *Index) Count(ctx context.Context) (int64, error) {
	return i.backend.Count(ctx)
}

// Stats 返回后端名称、集合名称与分块数。
func (i *Index) Stats(ctx context.Context) (Stats, error) {
	n, err := i.backend.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Backend: i.backend.Name(), Collection: i.backend.Collection(), Count: n}, nil
}

// Reset 清空整个集合。
func (i *Index) Reset(ctx context.Context) error {
	log.Warnf("[VectorIndex] 清空集合 %s/%s", i.backend.Name(), i.backend.Collection())
	return i.backend.Reset(ctx)
}

// metadataValue 返回元数据中 key 对应的字符串值；未知字段返回 false。
func metadataValue(md model.ChunkMetadata, key string) (string, bool) {
	switch key {
	case "source":
		return md.Source, true
	case "document_type":
		return string(md.DocumentType), true
	default:
		return "", false
	}
}

// validFilter 判断过滤条件中的字段是否都可识别。
func validFilter(filter Filter) bool {
	for key := range filter {
		if _, ok := metadataValue(model.ChunkMetadata{}, key); !ok {
			return false
		}
	}
	return true
}
