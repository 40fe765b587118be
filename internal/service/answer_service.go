package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/llm"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"strings"
)

const defaultSystemPromptTemplate = `You are an expert assistant on %[1]s drone regulations, specialised in the open category subcategories A1, A2 and A3.

You help users with questions about:
- Requirements and limitations of each subcategory
- Safety distances
- Permitted and restricted zones
- Operational procedures
- Required training and certification

IMPORTANT INSTRUCTIONS:
1. Base your answers ONLY on the information provided in the context from the %[1]s documents
2. If the information is not in the context, say clearly "I don't find that information in the documentation I have available"
3. Always cite the source when possible (e.g. "According to the %[1]s regulation...")
4. Be clear, precise and concise
5. If the query needs human intervention (very specific cases, complex legal interpretations), suggest it
6. Use a professional but friendly tone

Remember: aviation safety comes first, so it is better to give a conservative answer than to risk giving incorrect information.`

// AnswerOptions 控制上下文组装与生成参数。
type AnswerOptions struct {
	TopK          int
	HistoryWindow int
	Temperature   float64
	MaxTokens     int
	AuthorityName string
	SystemPrompt  string
}

// AnswerService 组装上下文并调用生成模型。除共享索引外无跨请求状态。
type AnswerService interface {
	GenerateResponse(ctx context.Context, query string, history []model.Turn, docType model.DocumentType) (*model.GeneratedAnswer, error)
	// StreamResponse 与 GenerateResponse 相同，但把生成内容逐块写入 writer。
	StreamResponse(ctx context.Context, query string, history []model.Turn, docType model.DocumentType, writer llm.MessageWriter) (*model.GeneratedAnswer, error)
}

type answerService struct {
	retrieval RetrievalService
	llmClient llm.Client
	opts      AnswerOptions
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(retrieval RetrievalService, llmClient llm.Client, opts AnswerOptions) AnswerService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HistoryWindow < 0 {
		opts.HistoryWindow = 0
	}
	if opts.AuthorityName == "" {
		opts.AuthorityName = "AESA"
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = fmt.Sprintf(defaultSystemPromptTemplate, opts.AuthorityName)
	}
	return &answerService{retrieval: retrieval, llmClient: llmClient, opts: opts}
}

func (s *answerService) GenerateResponse(ctx context.Context, query string, history []model.Turn, docType model.DocumentType) (*model.GeneratedAnswer, error) {
	return s.generate(ctx, query, history, docType, func(messages []llm.Message, gen *llm.GenerationParams) (*llm.Completion, error) {
		return s.llmClient.Complete(ctx, messages, gen)
	})
}

func (s *answerService) StreamResponse(ctx context.Context, query string, history []model.Turn, docType model.DocumentType, writer llm.MessageWriter) (*model.GeneratedAnswer, error) {
	return s.generate(ctx, query, history, docType, func(messages []llm.Message, gen *llm.GenerationParams) (*llm.Completion, error) {
		return s.llmClient.StreamChatMessages(ctx, messages, gen, writer)
	})
}

type completeFunc func(messages []llm.Message, gen *llm.GenerationParams) (*llm.Completion, error)

func (s *answerService) generate(ctx context.Context, query string, history []model.Turn, docType model.DocumentType, complete completeFunc) (*model.GeneratedAnswer, error) {
	log.Infof("[AnswerService] 开始生成回答, query: '%s'", truncate(query, 100))

	contextText, sources := s.retrieval.SearchRelevantContext(ctx, query, s.opts.TopK, docType)
	messages := s.buildMessages(query, contextText, history)

	completion, err := complete(messages, s.generationParams())
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := &model.GeneratedAnswer{
		Content: completion.Content,
		Sources: sources,
		Metadata: model.AnswerMetadata{
			Model:            completion.Model,
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
			FinishReason:     completion.FinishReason,
			SourcesCount:     len(sources),
			HasContext:       contextText != "",
		},
	}
	log.Infow("[AnswerService] 回答生成完成",
		"sources", answer.Metadata.SourcesCount,
		"has_context", answer.Metadata.HasContext,
		"tokens_total", answer.Metadata.TotalTokens,
	)
	return answer, nil
}

// buildMessages 依次放入 system 提示、最近的对话历史与本轮用户消息。
func (s *answerService) buildMessages(query, contextText string, history []model.Turn) []llm.Message {
	history = model.LastTurns(history, s.opts.HistoryWindow)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: model.RoleSystem, Content: s.opts.SystemPrompt})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: s.userMessage(query, contextText)})
	return messages
}

func (s *answerService) userMessage(query, contextText string) string {
	var sb strings.Builder
	if contextText != "" {
		fmt.Fprintf(&sb, "%s DOCUMENT CONTEXT:\n%s\n\n---\n\n", s.opts.AuthorityName, contextText)
		fmt.Fprintf(&sb, "USER QUERY:\n%s\n\n", query)
		sb.WriteString("Answer based on the context provided.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "USER QUERY:\n%s\n\n", query)
	fmt.Fprintf(&sb, "NOTE: No specific information was found in the documents. "+
		"Answer stating that you do not have that information available and recommend contacting %s directly.", s.opts.AuthorityName)
	return sb.String()
}

func (s *answerService) generationParams() *llm.GenerationParams {
	t := s.opts.Temperature
	gp := &llm.GenerationParams{Temperature: &t}
	if s.opts.MaxTokens > 0 {
		m := s.opts.MaxTokens
		gp.MaxTokens = &m
	}
	return gp
}
