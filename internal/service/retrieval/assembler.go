package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
	"github.com/zhouzirui/docchat/backend/internal/service/embedding"
)

// ErrAssembly wraps embedding and vector search failures.
var ErrAssembly = errors.New("context assembly failed")

const defaultTopK = 3

var searchFields = []string{document.FieldText, document.FieldSourcePath}

// Searcher is the read side of the vector store.
type Searcher interface {
	Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]document.Hit, error)
}

// Assembler turns a user query into a context block of the closest passages.
type Assembler struct {
	embedder   embedding.Embedder
	store      Searcher
	collection string
	topK       int
}

// NewAssembler creates an assembler over collection. topK <= 0 uses 3.
func NewAssembler(embedder embedding.Embedder, store Searcher, collection string, topK int) *Assembler {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Assembler{
		embedder:   embedder,
		store:      store,
		collection: collection,
		topK:       topK,
	}
}

// Passages embeds query and returns the nearest hits in store order.
func (a *Assembler) Passages(ctx context.Context, query string) ([]document.Hit, error) {
	vector, err := embedding.EmbedOne(ctx, a.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrAssembly, err)
	}

	hits, err := a.store.Search(ctx, a.collection, vector, a.topK, searchFields)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrAssembly, a.collection, err)
	}
	return hits, nil
}

// Assemble returns the formatted context for query. An empty collection
// yields an empty string.
func (a *Assembler) Assemble(ctx context.Context, query string) (string, error) {
	hits, err := a.Passages(ctx, query)
	if err != nil {
		return "", err
	}
	log.Printf("[retrieval] %d passages for query (len=%d)", len(hits), len(query))
	return Format(hits), nil
}

// Format renders hits as "File: {path}\nRelevance Text: {text}" blocks joined by newlines.
func Format(hits []document.Hit) string {
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("File: %s\nRelevance Text: %s", hit.SourcePath, hit.Text)
	}
	return strings.Join(blocks, "\n")
}
