package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/docchat/backend/internal/config"
)

func TestOllamaEmbedderBatchesInput(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model %q", req.Model)
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, server.URL+"/", time.Second)
	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected one request, got %d", requests)
	}
	if len(vectors) != 3 || vectors[2][0] != 2 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if e.Name() != "ollama/nomic-embed-text" || e.Dimensions() != 2 {
		t.Fatalf("unexpected metadata %s %d", e.Name(), e.Dimensions())
	}
}

func TestOllamaEmbedderRejectsShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
	}))
	defer server.Close()

	e := NewOllamaEmbedder("m", 2, server.URL, time.Second)
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestOllamaEmbedderStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEmbedder("m", 2, server.URL, time.Second)
	if _, err := EmbedOne(context.Background(), e, "a"); err == nil {
		t.Fatal("expected status error")
	}
}

func TestOpenAIEmbedderRestoresOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[` +
			`{"object":"embedding","index":1,"embedding":[0,1]},` +
			`{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("key", server.URL+"/v1", "text-embedding-3-small", 2)
	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("vectors out of order: %v", vectors)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "m", Dimensions: 4})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Fatalf("expected ollama embedder, got %T", e)
	}
	if _, err := New(config.EmbeddingConfig{Provider: "gemini"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewOllamaEmbedder("m", 2, "http://127.0.0.1:1", time.Second)
	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("expected no-op for empty input, got %v %v", vectors, err)
	}
}
