package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/pkg/llm"
	"drone-helpdesk-go/pkg/vectorstore"
	"errors"
	"fmt"
	"strings"
	"testing"
)

var testVocab = []string{"distance", "people", "altitude", "battery", "minimum"}

func newMemoryIndex() *vectorstore.Index {
	return vectorstore.NewIndex(&wordEmbedder{vocab: testVocab}, vectorstore.NewMemoryBackend())
}

var rulesA2Chunks = []string{
	"In subcategory A2 the minimum horizontal distance from uninvolved people is 30 m.",
	"With low-speed mode active the minimum distance from people can be reduced to 5 m.",
	"Never fly directly over assemblies of people; keep the minimum distance at all times.",
}

func indexRulesA2(t *testing.T, idx *vectorstore.Index) {
	t.Helper()
	metas := make([]model.ChunkMetadata, len(rulesA2Chunks))
	ids := make([]string, len(rulesA2Chunks))
	for i := range rulesA2Chunks {
		metas[i] = model.ChunkMetadata{Source: "rules_a2.pdf", DocumentType: model.DocumentTypeA2, ChunkIndex: i, TotalChunks: len(rulesA2Chunks)}
		ids[i] = fmt.Sprintf("rules_a2_%d", i)
	}
	if err := idx.Add(context.Background(), rulesA2Chunks, metas, ids); err != nil {
		t.Fatalf("index chunks: %v", err)
	}
}

func newAnswerService(idx *vectorstore.Index, client llm.Client, window int) AnswerService {
	return NewAnswerService(NewRetrievalService(idx, 0), client, AnswerOptions{
		TopK:          5,
		HistoryWindow: window,
		Temperature:   0.7,
		MaxTokens:     1000,
		AuthorityName: "AESA",
	})
}

func TestSearchRelevantContextEmptyIndex(t *testing.T) {
	r := NewRetrievalService(newMemoryIndex(), 0)
	ctxText, sources := r.SearchRelevantContext(context.Background(), "minimum distance from people", 5, "")
	if ctxText != "" || len(sources) != 0 {
		t.Errorf("got (%q, %v), want empty", ctxText, sources)
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int, vectorstore.Filter) ([]model.SearchHit, error) {
	return nil, errors.New("connection refused")
}

func TestSearchRelevantContextDegradesOnFailure(t *testing.T) {
	r := NewRetrievalService(failingSearcher{}, 0)
	ctxText, sources := r.SearchRelevantContext(context.Background(), "anything", 5, model.DocumentTypeA2)
	if ctxText != "" || sources == nil || len(sources) != 0 {
		t.Errorf("got (%q, %#v), want (\"\", [])", ctxText, sources)
	}
}

func TestSearchRelevantContextFormatsFragments(t *testing.T) {
	idx := newMemoryIndex()
	indexRulesA2(t, idx)
	r := NewRetrievalService(idx, 0)

	ctxText, sources := r.SearchRelevantContext(context.Background(), "minimum distance from people", 5, "")
	if len(sources) != 3 {
		t.Fatalf("sources = %+v", sources)
	}
	if !strings.HasPrefix(ctxText, "--- Fragment 1 (Relevance: ") || !strings.Contains(ctxText, "\nSource: rules_a2.pdf\n") {
		t.Errorf("context = %q", ctxText)
	}
	if strings.Count(ctxText, "--- Fragment ") != 3 || !strings.Contains(ctxText, "\n\n--- Fragment 2 ") {
		t.Errorf("fragments not separated by blank lines: %q", ctxText)
	}
	for i := 1; i < len(sources); i++ {
		if sources[i-1].Relevance < sources[i].Relevance {
			t.Errorf("sources not sorted by relevance: %+v", sources)
		}
	}
	for _, s := range sources {
		if s.Relevance < 0 || s.Relevance > 1 {
			t.Errorf("relevance %v out of range", s.Relevance)
		}
	}

	_, filtered := r.SearchRelevantContext(context.Background(), "distance", 5, model.DocumentTypeA3)
	if len(filtered) != 0 {
		t.Errorf("filter on other document type returned %d sources", len(filtered))
	}
}

func TestGenerateResponseNoContextBranch(t *testing.T) {
	client := &fakeLLM{content: "I don't have information about that. Please contact AESA directly."}
	svc := newAnswerService(newMemoryIndex(), client, 10)

	answer, err := svc.GenerateResponse(context.Background(), "minimum distance from people", nil, "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if answer.Metadata.HasContext || answer.Metadata.SourcesCount != 0 || len(answer.Sources) != 0 {
		t.Errorf("metadata = %+v", answer.Metadata)
	}
	user := client.lastUserMessage()
	if strings.Contains(user, "DOCUMENT CONTEXT") || !strings.Contains(user, "No specific information was found") ||
		!strings.Contains(user, "contacting AESA directly") {
		t.Errorf("no-context user message = %q", user)
	}

	escalate, reason := NewEscalationClassifier("AESA").ShouldEscalate(answer)
	if !escalate || reason != ReasonNoSources {
		t.Errorf("ShouldEscalate() = (%v, %q)", escalate, reason)
	}
}

func TestGenerateResponseHistoryWindow(t *testing.T) {
	client := &fakeLLM{content: "ok"}
	svc := newAnswerService(newMemoryIndex(), client, 10)

	var history []model.Turn
	for i := 0; i < 14; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history = append(history, model.Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	if _, err := svc.GenerateResponse(context.Background(), "q", history, ""); err != nil {
		t.Fatal(err)
	}

	msgs := client.messages
	if len(msgs) != 12 {
		t.Fatalf("got %d messages, want system + 10 history + user", len(msgs))
	}
	if msgs[0].Role != model.RoleSystem || !strings.Contains(msgs[0].Content, "AESA") {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Content != "turn 4" || msgs[10].Content != "turn 13" {
		t.Errorf("history window = %q .. %q", msgs[1].Content, msgs[10].Content)
	}
	if client.gen == nil || *client.gen.Temperature != 0.7 || *client.gen.MaxTokens != 1000 {
		t.Errorf("generation params = %+v", client.gen)
	}
}

func TestGenerateResponseKeepsZeroTemperature(t *testing.T) {
	client := &fakeLLM{content: "ok"}
	svc := NewAnswerService(NewRetrievalService(newMemoryIndex(), 0), client, AnswerOptions{Temperature: 0})
	if _, err := svc.GenerateResponse(context.Background(), "q", nil, ""); err != nil {
		t.Fatal(err)
	}
	if client.gen == nil || client.gen.Temperature == nil || *client.gen.Temperature != 0 {
		t.Errorf("generation params = %+v, want temperature 0", client.gen)
	}
	if client.gen.MaxTokens != nil {
		t.Errorf("max tokens = %d, want unset", *client.gen.MaxTokens)
	}
}

func TestGenerateResponsePropagatesGenerationError(t *testing.T) {
	client := &fakeLLM{err: fmt.Errorf("%w: backend down", llm.ErrGeneration)}
	svc := newAnswerService(newMemoryIndex(), client, 10)
	_, err := svc.GenerateResponse(context.Background(), "q", nil, "")
	if !errors.Is(err, llm.ErrGeneration) {
		t.Errorf("error = %v, want ErrGeneration", err)
	}
}

func TestEndToEndRulesA2(t *testing.T) {
	idx := newMemoryIndex()
	indexRulesA2(t, idx)
	client := &fakeLLM{content: "According to the regulation, keep at least 30 m from uninvolved people (5 m in low-speed mode)."}
	svc := newAnswerService(idx, client, 10)

	answer, err := svc.GenerateResponse(context.Background(), "minimum distance from people", nil, "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if len(answer.Sources) == 0 || len(answer.Sources) > 3 {
		t.Fatalf("sources = %+v", answer.Sources)
	}
	for _, s := range answer.Sources {
		if s.Source != "rules_a2.pdf" {
			t.Errorf("source = %q", s.Source)
		}
	}
	if answer.Metadata.SourcesCount != 3 || !answer.Metadata.HasContext || answer.Metadata.TotalTokens != 15 {
		t.Errorf("metadata = %+v", answer.Metadata)
	}

	prompt := client.lastUserMessage()
	for _, chunk := range rulesA2Chunks {
		if !strings.Contains(prompt, chunk) {
			t.Errorf("prompt is missing chunk %q", chunk)
		}
	}
	if !strings.Contains(prompt, "USER QUERY:\nminimum distance from people") {
		t.Errorf("prompt = %q", prompt)
	}

	if escalate, reason := NewEscalationClassifier("AESA").ShouldEscalate(answer); escalate {
		t.Errorf("unexpected escalation: %q", reason)
	}
}
