// Package model 包含了应用的数据模型定义。
package model

import "time"

// 对话消息的角色。system 消息只用于记录升级与故障，不会送入生成模型。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Sources   []SourceRecord         `json:"sources,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Turn 是送入生成模型的一轮对话 (role, content)。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationTurns 过滤掉 system 消息，并只保留最后 window 轮，顺序为从旧到新。
func ConversationTurns(messages []ChatMessage, window int) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return LastTurns(turns, window)
}

// LastTurns 返回 turns 的最后 window 项；window <= 0 时返回空。
func LastTurns(turns []Turn, window int) []Turn {
	if window <= 0 {
		return nil
	}
	if len(turns) > window {
		return turns[len(turns)-window:]
	}
	return turns
}
