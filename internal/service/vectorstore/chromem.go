package vectorstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
)

const metaDimension = "dimension"

// ChromemStore implements Store on top of chromem-go. Vectors are always
// supplied by the caller, so the embedding func only guards against rows
// that arrive without one.
type ChromemStore struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc

	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemStore creates an in-memory store. embedFunc may be nil.
func NewChromemStore(embedFunc chromem.EmbeddingFunc) *ChromemStore {
	if embedFunc == nil {
		embedFunc = func(context.Context, string) ([]float32, error) {
			return nil, fmt.Errorf("row has no vector")
		}
	}
	return &ChromemStore{
		db:        chromem.NewDB(),
		embedFunc: embedFunc,
		dims:      make(map[string]int),
	}
}

// CreateCollection creates name if it does not exist yet.
func (s *ChromemStore) CreateCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dims[name]; ok && existing != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, requested %d", ErrDimensionMismatch, name, existing, dim)
	}

	metadata := map[string]string{metaDimension: strconv.Itoa(dim)}
	if _, err := s.db.GetOrCreateCollection(name, metadata, s.embedFunc); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.dims[name] = dim
	return nil
}

func (s *ChromemStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	delete(s.dims, name)
	log.Printf("[vectorstore] dropped collection %s", name)
	return nil
}

func (s *ChromemStore) HasCollection(name string) bool {
	return s.db.GetCollection(name, s.embedFunc) != nil
}

func (s *ChromemStore) Insert(ctx context.Context, name string, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	col, dim, err := s.collection(name)
	if err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, len(rows))
	for i, row := range rows {
		if dim > 0 && len(row.Vector) != dim {
			return 0, fmt.Errorf("%w: row %d has %d values, collection %s expects %d", ErrDimensionMismatch, i, len(row.Vector), name, dim)
		}
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   row.Text,
			Embedding: row.Vector,
			Metadata: map[string]string{
				document.FieldSourcePath: row.SourcePath,
			},
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", name, err)
	}
	return len(docs), nil
}

func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]document.Hit, error) {
	col, dim, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection %s expects %d", ErrDimensionMismatch, len(vector), name, dim)
	}
	if k <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	k = min(k, count)

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	withText := len(fields) == 0 || slices.Contains(fields, document.FieldText)
	withSource := len(fields) == 0 || slices.Contains(fields, document.FieldSourcePath)

	hits := make([]document.Hit, len(results))
	for i, r := range results {
		hits[i].Similarity = r.Similarity
		if withText {
			hits[i].Text = r.Content
		}
		if withSource {
			hits[i].SourcePath = r.Metadata[document.FieldSourcePath]
		}
	}
	return hits, nil
}

func (s *ChromemStore) Count(name string) int {
	col := s.db.GetCollection(name, s.embedFunc)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Persist exports every collection to path.
func (s *ChromemStore) Persist(path string, compress bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.ExportToFile(path, compress, "")
}

// Load imports collections previously written by Persist. A missing file is
// not an error. Dimensions are re-registered by the next CreateCollection.
func (s *ChromemStore) Load(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, int, error) {
	col := s.db.GetCollection(name, s.embedFunc)
	if col == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	s.mu.RLock()
	dim := s.dims[name]
	s.mu.RUnlock()
	return col, dim, nil
}

// PersistPath normalizes a configured export path so Persist and Load agree
// on the file chromem writes.
func PersistPath(path string, compress bool) string {
	if path == "" {
		return ""
	}
	if compress && !strings.HasSuffix(path, ".gz") {
		return path + ".gz"
	}
	return path
}
