// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/pkg/log"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrGeneration wraps every failure of the completion backend so callers can
// tell "no answer could be produced" apart from other errors.
var ErrGeneration = errors.New("generation failed")

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口，返回完整回答与用量。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*Completion, error)
	// StreamChatMessages 以流式方式调用，并将每个分块写入 writer，返回拼接后的完整回答。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (*Completion, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
}

// Usage holds token accounting reported by the backend.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completion is the result of one generation call.
type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client openai.Client
}

// NewClient creates an LLM client for any OpenAI-compatible chat endpoint.
func NewClient(cfg config.LLMConfig) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

func (c *openAICompatibleClient) params(messages []Message, gen *GenerationParams) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.Model),
		Messages: toOpenAIMessages(messages),
	}
	// 传参优先，否则使用全局配置。temperature 为 0 同样会发送
	temperature, maxTokens := c.cfg.Generation.Temperature, c.cfg.Generation.MaxTokens
	if gen != nil {
		if gen.Temperature != nil {
			temperature = *gen.Temperature
		}
		if gen.MaxTokens != nil {
			maxTokens = *gen.MaxTokens
		}
	}
	params.Temperature = openai.Float(temperature)
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	return params
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Complete calls the chat completion endpoint and waits for the full answer.
func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages, gen))
	if err != nil {
		log.Errorf("[LLMClient] chat completion failed, model: %s, error: %v", c.cfg.Model, err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: backend returned no choices", ErrGeneration)
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamChatMessages streams the answer chunk by chunk to writer.
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	params := c.params(messages, gen)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		sb     strings.Builder
		result Completion
	)
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			result.Usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if reason := chunk.Choices[0].FinishReason; reason != "" {
			result.FinishReason = string(reason)
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		sb.WriteString(content)
		if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
			return nil, fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		log.Errorf("[LLMClient] streaming completion failed, model: %s, error: %v", c.cfg.Model, err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	result.Content = sb.String()
	return &result, nil
}
