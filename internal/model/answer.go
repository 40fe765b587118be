package model

// SourceRecord 是回答引用的一条来源，会作为引用展示给用户。
type SourceRecord struct {
	Source       string       `json:"source"`
	DocumentType DocumentType `json:"document_type"`
	Relevance    float64      `json:"relevance"`
	ChunkIndex   int          `json:"chunk_index"`
}

// AnswerMetadata 合并了生成模型的用量信息与检索结果统计。
type AnswerMetadata struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"tokens_prompt"`
	CompletionTokens int64  `json:"tokens_completion"`
	TotalTokens      int64  `json:"tokens_total"`
	FinishReason     string `json:"finish_reason"`
	SourcesCount     int    `json:"sources_count"`
	HasContext       bool   `json:"has_context"`
}

// GeneratedAnswer 是一次问答的结果，每次请求重新生成，不做缓存。
type GeneratedAnswer struct {
	Content  string         `json:"content"`
	Sources  []SourceRecord `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

// EscalationVerdict 表示是否需要转人工及其原因。
type EscalationVerdict struct {
	Escalate bool   `json:"escalate"`
	Reason   string `json:"reason"`
}

// AsMap 用于写入对话消息的元数据。
func (m AnswerMetadata) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"model":             m.Model,
		"tokens_prompt":     m.PromptTokens,
		"tokens_completion": m.CompletionTokens,
		"tokens_total":      m.TotalTokens,
		"finish_reason":     m.FinishReason,
		"sources_count":     m.SourcesCount,
		"has_context":       m.HasContext,
	}
}
