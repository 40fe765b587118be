package model

// ChunkMetadata 是与每个分块一同写入向量索引的元数据。
type ChunkMetadata struct {
	Source       string       `json:"source"`
	DocumentType DocumentType `json:"document_type"`
	ChunkIndex   int          `json:"chunk_index"`
	TotalChunks  int          `json:"total_chunks"`
}

// Chunk 是一个已切分、待嵌入的文本片段。ID 由文档名（去扩展名）与分块序号组成。
type Chunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

// SearchHit 是向量索引的一条近邻结果。Distance 越小越相关。
type SearchHit struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// Relevance 按 1 - distance 计算相关度。
func (h SearchHit) Relevance() float64 {
	return 1 - h.Distance
}
