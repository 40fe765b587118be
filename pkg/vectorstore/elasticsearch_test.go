package vectorstore

import (
	"bufio"
	"context"
	"drone-helpdesk-go/internal/model"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
)

func newFakeES(t *testing.T, handler http.HandlerFunc) *ElasticsearchBackend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewElasticsearchBackend(client, "regulation_chunks", 4)
}

func TestElasticsearchEnsureIndexCreatesMissingIndex(t *testing.T) {
	var created bool
	b := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"dims": 4`) {
				t.Errorf("mapping missing dims: %s", body)
			}
			created = true
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	if err := b.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !created {
		t.Error("index was not created")
	}
}

func TestElasticsearchUpsertUsesChunkIDs(t *testing.T) {
	var ids []string
	b := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/_bulk") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for line := 0; scanner.Scan(); line++ {
			if line%2 == 1 {
				continue
			}
			var action struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			_ = json.Unmarshal(scanner.Bytes(), &action)
			ids = append(ids, action.Index.ID)
		}
		_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
	})

	err := b.Upsert(context.Background(), []Record{
		{ID: "rules_a2_0", Text: "one", Vector: []float32{1, 0, 0, 0}},
		{ID: "rules_a2_1", Text: "two", Vector: []float32{0, 1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if strings.Join(ids, ",") != "rules_a2_0,rules_a2_1" {
		t.Errorf("ids = %v", ids)
	}
}

func TestElasticsearchUpsertReportsItemErrors(t *testing.T) {
	b := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"took":1,"errors":true,"items":[{"index":{"_id":"x_0","status":400,
			"error":{"type":"mapper_parsing_exception","reason":"wrong dims"}}}]}`))
	})
	err := b.Upsert(context.Background(), []Record{{ID: "x_0", Vector: []float32{1}}})
	if err == nil || !strings.Contains(err.Error(), "wrong dims") {
		t.Errorf("error = %v", err)
	}
}

func TestElasticsearchQueryMapsScoreToDistance(t *testing.T) {
	b := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"term":{"document_type":"pdf_aesa_a2"}`) {
			t.Errorf("missing term filter: %s", body)
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"rules_a2_1","_score":0.9,"_source":{"text_content":"keep 50 m","source":"rules_a2.pdf","document_type":"pdf_aesa_a2","chunk_index":1,"total_chunks":3}},
			{"_id":"rules_a2_0","_score":0.75,"_source":{"text_content":"intro","source":"rules_a2.pdf","document_type":"pdf_aesa_a2","chunk_index":0,"total_chunks":3}}
		]}}`))
	})

	hits, err := b.Query(context.Background(), []float32{1, 0, 0, 0}, 5, DocumentTypeFilter(model.DocumentTypeA2))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	if math.Abs(hits[0].Distance-0.2) > 1e-9 || math.Abs(hits[0].Relevance()-0.8) > 1e-9 {
		t.Errorf("first hit distance = %v", hits[0].Distance)
	}
	if hits[0].Metadata.Source != "rules_a2.pdf" || hits[0].Metadata.ChunkIndex != 1 {
		t.Errorf("metadata = %+v", hits[0].Metadata)
	}
}

func TestElasticsearchQueryMissingIndexIsEmpty(t *testing.T) {
	b := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
	})
	hits, err := b.Query(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("hits=%v err=%v", hits, err)
	}
	n, err := b.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("count=%d err=%v", n, err)
	}
}
