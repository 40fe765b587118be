package model

import (
	"fmt"
	"testing"
)

func TestConversationTurnsDropsSystemMessages(t *testing.T) {
	var msgs []ChatMessage
	for i := 0; i < 6; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: fmt.Sprint(i)})
		if i == 3 {
			msgs = append(msgs, ChatMessage{Role: RoleSystem, Content: "escalated"})
		}
	}

	turns := ConversationTurns(msgs, 4)
	if len(turns) != 4 || turns[0].Content != "2" || turns[3].Content != "5" {
		t.Errorf("turns = %+v", turns)
	}
	for _, turn := range turns {
		if turn.Role == RoleSystem {
			t.Errorf("system message leaked into turns: %+v", turn)
		}
	}
	if got := ConversationTurns(msgs, 0); len(got) != 0 {
		t.Errorf("window 0 returned %d turns", len(got))
	}
}

func TestSearchHitRelevance(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
	}
	for _, tt := range tests {
		if got := (SearchHit{Distance: tt.distance}).Relevance(); got != tt.want {
			t.Errorf("Relevance(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestDocumentIsReady(t *testing.T) {
	if (Document{Processed: true, VectorCount: 0}).IsReady() {
		t.Error("document without vectors should not be ready")
	}
	if !(Document{Processed: true, VectorCount: 3}).IsReady() {
		t.Error("processed document with vectors should be ready")
	}
}
