package llm

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteSendsGenerationParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model       string    `json:"model"`
			Messages    []Message `json:"messages"`
			Temperature float64   `json:"temperature"`
			MaxTokens   int       `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "gpt-4o-mini" || body.Temperature != 0.2 || body.MaxTokens != 1000 {
			t.Errorf("unexpected request: %+v", body)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Keep 50 m."}}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{
		APIKey:     "test",
		BaseURL:    srv.URL,
		Model:      "gpt-4o-mini",
		Generation: config.LLMGenerationConfig{Temperature: 0.7, MaxTokens: 1000},
	})
	temp := 0.2
	got, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be careful"},
		{Role: "user", Content: "distance?"},
	}, &GenerationParams{Temperature: &temp})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Content != "Keep 50 m." || got.FinishReason != "stop" || got.Usage.TotalTokens != 16 {
		t.Errorf("completion = %+v", got)
	}
}

func TestCompleteSendsZeroTemperature(t *testing.T) {
	cases := []struct {
		name string
		cfg  float64
		gen  *GenerationParams
	}{
		{"from config", 0, nil},
		{"from params", 0.7, &GenerationParams{Temperature: new(float64)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]json.RawMessage
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request: %v", err)
				}
				if got, ok := body["temperature"]; !ok || string(got) != "0" {
					t.Errorf("temperature = %q (present=%v), want 0", got, ok)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
					"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
			}))
			defer srv.Close()

			c := NewClient(config.LLMConfig{
				APIKey:     "test",
				BaseURL:    srv.URL,
				Model:      "gpt-4o-mini",
				Generation: config.LLMGenerationConfig{Temperature: tc.cfg, MaxTokens: 1000},
			})
			if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, tc.gen); err != nil {
				t.Fatalf("Complete: %v", err)
			}
		})
	}
}

func TestCompleteWrapsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

type recordingWriter struct{ frames []string }

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"Keep "}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"50 m."},"finish_reason":"stop"}]}`,
		} {
			_, _ = w.Write([]byte("data: " + line + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	w := &recordingWriter{}
	got, err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "distance?"}}, nil, w)
	if err != nil {
		t.Fatalf("StreamChatMessages: %v", err)
	}
	if got.Content != "Keep 50 m." || got.FinishReason != "stop" {
		t.Errorf("completion = %+v", got)
	}
	if len(w.frames) != 2 {
		t.Errorf("frames = %q", w.frames)
	}
}
