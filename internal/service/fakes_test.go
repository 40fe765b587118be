package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/llm"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// wordEmbedder 以词表中每个词的出现次数作为向量。
type wordEmbedder struct {
	vocab []string
}

func (e *wordEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v, err := e.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *wordEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		vec := make([]float32, len(e.vocab)+1)
		for j, w := range e.vocab {
			vec[j] = float32(strings.Count(lower, w))
		}
		vec[len(e.vocab)] = 0.01
		out[i] = vec
	}
	return out, nil
}

// fakeLLM 记录收到的消息并返回固定回答。
type fakeLLM struct {
	mu       sync.Mutex
	content  string
	err      error
	messages []llm.Message
	gen      *llm.GenerationParams
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = messages
	f.gen = gen
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{
		Content:      f.content,
		Model:        "fake-model",
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, w llm.MessageWriter) (*llm.Completion, error) {
	c, err := f.Complete(ctx, messages, gen)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(c.Content, " ") {
		if err := w.WriteMessage(websocket.TextMessage, []byte(word)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (f *fakeLLM) lastUserMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].Content
}

// memoryConversations 是内存中的对话仓库。
type memoryConversations struct {
	mu       sync.Mutex
	messages map[string][]model.ChatMessage
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{messages: map[string][]model.ChatMessage{}}
}

func (m *memoryConversations) Append(_ context.Context, id string, msgs ...model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[id] = append(m.messages[id], msgs...)
	return nil
}

func (m *memoryConversations) Recent(_ context.Context, id string, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[id]
	if limit <= 0 {
		return []model.ChatMessage{}, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.ChatMessage, len(all))
	copy(out, all)
	return out, nil
}
