package repository

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	conversationTTL      = 7 * 24 * time.Hour
	conversationMaxItems = 200
)

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	// Recent 返回最后 limit 条消息，顺序为从旧到新。
	Recent(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

// Append 追加消息并刷新过期时间，只保留最近 200 条。
func (r *redisConversationRepository) Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal chat message: %w", err)
		}
		values = append(values, data)
	}

	key := conversationKey(conversationID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -conversationMaxItems, -1)
	pipe.Expire(ctx, key, conversationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) Recent(ctx context.Context, conversationID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		return []model.ChatMessage{}, nil
	}
	raw, err := r.redisClient.LRange(ctx, conversationKey(conversationID), int64(-limit), -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}
