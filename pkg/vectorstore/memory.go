package vectorstore

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"math"
	"sort"
	"sync"
)

// MemoryBackend 在进程内保存向量并做暴力余弦检索，用于本地开发与测试。
type MemoryBackend struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

// NewMemoryBackend 创建一个空的内存后端。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (m *MemoryBackend) Name() string       { return "memory" }
func (m *MemoryBackend) Collection() string { return "in-process" }

func (m *MemoryBackend) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, vector []float32, k int, filter Filter) ([]model.SearchHit, error) {
	if !validFilter(filter) {
		return []model.SearchHit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]model.SearchHit, 0, len(m.records))
	for _, id := range m.order {
		r := m.records[id]
		if !matches(r.Metadata, filter) {
			continue
		}
		hits = append(hits, model.SearchHit{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Distance: cosineDistance(vector, r.Vector),
		})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryBackend) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryBackend) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.records = make(map[string]Record)
	return nil
}

func matches(md model.ChunkMetadata, filter Filter) bool {
	for key, want := range filter {
		got, ok := metadataValue(md, key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// cosineDistance 返回 1 - cos(a, b)，取值 [0, 2]。维度不一致或零向量视为最远。
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
