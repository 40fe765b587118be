package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/pkg/llm"
	"drone-helpdesk-go/pkg/log"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReasonGenerationFailed 是生成失败时强制转人工的原因。
const ReasonGenerationFailed = "Automatic answer could not be generated"

// categoryDocumentTypes 把工单类别映射到检索过滤条件；未列出的类别不过滤。
var categoryDocumentTypes = map[string]model.DocumentType{
	"licensing": model.DocumentTypeA2,
	"technical": "",
}

// DocumentTypeForCategory 返回类别对应的文档类型，空值表示检索全部文档。
func DocumentTypeForCategory(category string) model.DocumentType {
	return categoryDocumentTypes[category]
}

// AskRequest 是一次用户提问。DocumentType 非空时优先于 Category。
type AskRequest struct {
	ConversationID string
	Query          string
	Category       string
	DocumentType   model.DocumentType
}

// AskResult 是一次提问的结果。
type AskResult struct {
	ConversationID string                  `json:"conversation_id"`
	Answer         *model.GeneratedAnswer  `json:"answer,omitempty"`
	Escalation     model.EscalationVerdict `json:"escalation"`
}

// HelpdeskService 串联历史读取、生成、分类与记录。
type HelpdeskService interface {
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)
	AskStream(ctx context.Context, req AskRequest, writer llm.MessageWriter) (*AskResult, error)
	// ExportConversation 返回最后 limit 条消息；limit <= 0 时使用默认值 20。
	ExportConversation(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error)
}

type helpdeskService struct {
	answers       AnswerService
	classifier    *EscalationClassifier
	convRepo      repository.ConversationRepository
	historyWindow int
	exportWindow  int
}

// NewHelpdeskService 创建一个新的 HelpdeskService 实例。
func NewHelpdeskService(
	answers AnswerService,
	classifier *EscalationClassifier,
	convRepo repository.ConversationRepository,
	historyWindow, exportWindow int,
) HelpdeskService {
	if exportWindow <= 0 {
		exportWindow = 20
	}
	return &helpdeskService{
		answers:       answers,
		classifier:    classifier,
		convRepo:      convRepo,
		historyWindow: historyWindow,
		exportWindow:  exportWindow,
	}
}

func (s *helpdeskService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	return s.ask(ctx, req, func(history []model.Turn, docType model.DocumentType) (*model.GeneratedAnswer, error) {
		return s.answers.GenerateResponse(ctx, req.Query, history, docType)
	})
}

func (s *helpdeskService) AskStream(ctx context.Context, req AskRequest, writer llm.MessageWriter) (*AskResult, error) {
	return s.ask(ctx, req, func(history []model.Turn, docType model.DocumentType) (*model.GeneratedAnswer, error) {
		return s.answers.StreamResponse(ctx, req.Query, history, docType, writer)
	})
}

type generateFunc func(history []model.Turn, docType model.DocumentType) (*model.GeneratedAnswer, error)

func (s *helpdeskService) ask(ctx context.Context, req AskRequest, generate generateFunc) (*AskResult, error) {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	result := &AskResult{ConversationID: req.ConversationID}

	// 历史在写入本轮用户消息之前读取，避免把当前问题重复送入模型
	var history []model.Turn
	if s.historyWindow > 0 {
		// system 消息会被过滤，多取一倍以保证窗口填满
		recent, err := s.convRepo.Recent(ctx, req.ConversationID, s.historyWindow*2)
		if err != nil {
			log.Errorf("[HelpdeskService] 读取对话历史失败, conversation: %s, error: %v", req.ConversationID, err)
		} else {
			history = model.ConversationTurns(recent, s.historyWindow)
		}
	}
	s.record(ctx, req.ConversationID, model.ChatMessage{Role: model.RoleUser, Content: req.Query})

	docType := req.DocumentType
	if docType == "" {
		docType = DocumentTypeForCategory(req.Category)
	}

	answer, err := generate(history, docType)
	if err != nil {
		log.Errorf("[HelpdeskService] 生成回答失败, conversation: %s, error: %v", req.ConversationID, err)
		s.record(ctx, req.ConversationID, model.ChatMessage{
			Role:    model.RoleSystem,
			Content: fmt.Sprintf("Error generating automatic answer: %v", err),
		})
		result.Escalation = model.EscalationVerdict{Escalate: true, Reason: ReasonGenerationFailed}
		if !errors.Is(err, llm.ErrGeneration) {
			err = fmt.Errorf("%w: %w", llm.ErrGeneration, err)
		}
		return result, err
	}
	result.Answer = answer

	metadata := answer.Metadata.AsMap()
	s.record(ctx, req.ConversationID, model.ChatMessage{
		Role:     model.RoleAssistant,
		Content:  answer.Content,
		Sources:  answer.Sources,
		Metadata: metadata,
	})

	result.Escalation = s.classifier.Classify(answer)
	if result.Escalation.Escalate {
		log.Infow("[HelpdeskService] 转人工",
			"conversation", req.ConversationID,
			"reason", result.Escalation.Reason,
		)
		s.record(ctx, req.ConversationID, model.ChatMessage{
			Role:    model.RoleSystem,
			Content: "This query has been escalated to a human operator. Reason: " + result.Escalation.Reason,
		})
	}
	return result, nil
}

// record 写入对话记录；写入失败只记录日志，不影响本轮回答。
func (s *helpdeskService) record(ctx context.Context, conversationID string, msg model.ChatMessage) {
	msg.Timestamp = time.Now()
	if err := s.convRepo.Append(ctx, conversationID, msg); err != nil {
		log.Errorf("[HelpdeskService] 保存对话消息失败, conversation: %s, role: %s, error: %v", conversationID, msg.Role, err)
	}
}

func (s *helpdeskService) ExportConversation(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = s.exportWindow
	}
	return s.convRepo.Recent(ctx, conversationID, limit)
}
