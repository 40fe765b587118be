package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/log"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esDocument 是存储在 Elasticsearch 中的分块文档结构。
type esDocument struct {
	ChunkID      string    `json:"chunk_id"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector,omitempty"`
	Source       string    `json:"source"`
	DocumentType string    `json:"document_type"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
}

// ElasticsearchBackend 使用 dense_vector（cosine）字段与 kNN 查询。
type ElasticsearchBackend struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// NewElasticsearchClient 按配置创建 Elasticsearch 客户端。
func NewElasticsearchClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// NewElasticsearchBackend 创建后端；调用方应在启动时执行一次 EnsureIndex。
func NewElasticsearchBackend(client *elasticsearch.Client, index string, dims int) *ElasticsearchBackend {
	return &ElasticsearchBackend{client: client, index: index, dims: dims}
}

func (b *ElasticsearchBackend) Name() string       { return "elasticsearch" }
func (b *ElasticsearchBackend) Collection() string { return b.index }

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (b *ElasticsearchBackend) EnsureIndex(ctx context.Context) error {
	res, err := b.client.Indices.Exists([]string{b.index}, b.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", b.index)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"source": { "type": "keyword" },
				"document_type": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"total_chunks": { "type": "integer" }
			}
		}
	}`, b.dims)

	res, err = b.client.Indices.Create(
		b.index,
		b.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		b.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", b.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", b.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", b.index)
	return nil
}

// Upsert 使用 bulk index 写入，相同 _id 的文档被整体覆盖。
func (b *ElasticsearchBackend) Upsert(ctx context.Context, records []Record) error {
	var buf bytes.Buffer
	for _, r := range records {
		action := map[string]map[string]string{"index": {"_index": b.index, "_id": r.ID}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return err
		}
		doc := esDocument{
			ChunkID:      r.ID,
			TextContent:  r.Text,
			Vector:       r.Vector,
			Source:       r.Metadata.Source,
			DocumentType: string(r.Metadata.DocumentType),
			ChunkIndex:   r.Metadata.ChunkIndex,
			TotalChunks:  r.Metadata.TotalChunks,
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   b.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("bulk request failed: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					return fmt.Errorf("bulk index %s: %s: %s", result.ID, result.Error.Type, result.Error.Reason)
				}
			}
		}
		return errors.New("bulk request reported errors")
	}
	return nil
}

// Query 执行 kNN 检索。cosine 相似度下 _score = (1 + cos) / 2，因此距离为 2 - 2*_score。
func (b *ElasticsearchBackend) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]model.SearchHit, error) {
	if !validFilter(filter) {
		return []model.SearchHit{}, nil
	}

	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": numCandidates,
	}
	if len(filter) > 0 {
		terms := make([]map[string]interface{}, 0, len(filter))
		for key, value := range filter {
			terms = append(terms, map[string]interface{}{"term": map[string]string{key: value}})
		}
		knn["filter"] = map[string]interface{}{"bool": map[string]interface{}{"filter": terms}}
	}
	body := map[string]interface{}{
		"size":    k,
		"knn":     knn,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(b.index),
		b.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		// 索引尚未创建，视为空索引
		return []model.SearchHit{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(searchResp.Hits.Hits))
	for _, h := range searchResp.Hits.Hits {
		hits = append(hits, model.SearchHit{
			ID:   h.ID,
			Text: h.Source.TextContent,
			Metadata: model.ChunkMetadata{
				Source:       h.Source.Source,
				DocumentType: model.DocumentType(h.Source.DocumentType),
				ChunkIndex:   h.Source.ChunkIndex,
				TotalChunks:  h.Source.TotalChunks,
			},
			Distance: 2 - 2*h.Score,
		})
	}
	return hits, nil
}

func (b *ElasticsearchBackend) Count(ctx context.Context) (int64, error) {
	res, err := b.client.Count(
		b.client.Count.WithContext(ctx),
		b.client.Count.WithIndex(b.index),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.String())
	}
	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return countResp.Count, nil
}

// Reset 删除索引后按相同映射重建。
func (b *ElasticsearchBackend) Reset(ctx context.Context) error {
	res, err := b.client.Indices.Delete(
		[]string{b.index},
		b.client.Indices.Delete.WithContext(ctx),
		b.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index failed: %s", res.Status())
	}
	return b.EnsureIndex(ctx)
}
