package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }
func (s *stubEmbedder) Name() string    { return "stub" }

type stubSearcher struct {
	hits       []document.Hit
	err        error
	gotK       int
	gotFields  []string
	collection string
}

func (s *stubSearcher) Search(_ context.Context, name string, _ []float32, k int, fields []string) ([]document.Hit, error) {
	s.collection = name
	s.gotK = k
	s.gotFields = fields
	return s.hits, s.err
}

func hit(path, text string) document.Hit {
	return document.Hit{Passage: document.Passage{Text: text, SourcePath: path}}
}

func TestAssembleFormatsHitsInStoreOrder(t *testing.T) {
	searcher := &stubSearcher{hits: []document.Hit{
		hit("a.txt", "Paris is the capital of France"),
		hit("b.md", "# Geo\nLyon is in France"),
	}}
	a := NewAssembler(&stubEmbedder{}, searcher, "docs", 0)

	got, err := a.Assemble(context.Background(), "capital of France")
	if err != nil {
		t.Fatalf("Assemble err: %v", err)
	}
	want := "File: a.txt\nRelevance Text: Paris is the capital of France\nFile: b.md\nRelevance Text: # Geo\nLyon is in France"
	if got != want {
		t.Fatalf("unexpected context:\n%s", got)
	}
	if searcher.gotK != 3 || searcher.collection != "docs" {
		t.Fatalf("unexpected search args k=%d collection=%s", searcher.gotK, searcher.collection)
	}
	if len(searcher.gotFields) != 2 || searcher.gotFields[0] != document.FieldText || searcher.gotFields[1] != document.FieldSourcePath {
		t.Fatalf("unexpected fields %v", searcher.gotFields)
	}
}

func TestAssembleEmptyCollection(t *testing.T) {
	a := NewAssembler(&stubEmbedder{}, &stubSearcher{}, "docs", 5)
	got, err := a.Assemble(context.Background(), "anything")
	if err != nil || got != "" {
		t.Fatalf("expected empty context, got %q err=%v", got, err)
	}
}

func TestAssembleWrapsFailures(t *testing.T) {
	a := NewAssembler(&stubEmbedder{err: errors.New("embed down")}, &stubSearcher{}, "docs", 3)
	if _, err := a.Assemble(context.Background(), "q"); !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly from embedder, got %v", err)
	}

	a = NewAssembler(&stubEmbedder{}, &stubSearcher{err: errors.New("store down")}, "docs", 3)
	if _, err := a.Assemble(context.Background(), "q"); !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly from store, got %v", err)
	}
}
