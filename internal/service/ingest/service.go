package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/zhouzirui/docchat/backend/internal/analysis/chunker"
	"github.com/zhouzirui/docchat/backend/internal/service/embedding"
	"github.com/zhouzirui/docchat/backend/internal/service/vectorstore"
	"github.com/zhouzirui/docchat/backend/internal/service/web"
	"github.com/zhouzirui/docchat/backend/internal/store/catalog"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidFilename   = errors.New("invalid file name")
)

const defaultBatchSize = 32

var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// SupportedExtension reports whether path can be converted to text.
func SupportedExtension(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Ledger remembers which file contents were already inserted.
type Ledger interface {
	Has(ctx context.Context, collection, sha string) (bool, error)
	Record(ctx context.Context, e catalog.Entry) error
	Clear(ctx context.Context, collection string) (int64, error)
}

// Config controls chunking and the target collection.
type Config struct {
	Collection string
	Dimensions int
	ChunkMode  chunker.Mode
	MaxWords   int
	UploadDir  string
	BatchSize  int
}

// Result describes one ingested file.
type Result struct {
	Path     string `json:"path"`
	Chunks   int    `json:"chunks"`
	Inserted int    `json:"inserted"`
	Skipped  bool   `json:"skipped"`
}

// Service converts documents to passages and inserts them into the vector store.
type Service struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	ledger   Ledger
	cfg      Config

	// mu serialises writers so a collection reset never interleaves with an insert.
	mu sync.Mutex
}

// NewService wires the pipeline. ledger may be nil.
func NewService(embedder embedding.Embedder, store vectorstore.Store, ledger Ledger, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ChunkMode == "" {
		cfg.ChunkMode = chunker.ModeAuto
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = embedder.Dimensions()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		ledger:   ledger,
		cfg:      cfg,
	}
}

// Collection returns the target collection name.
func (s *Service) Collection() string {
	return s.cfg.Collection
}

// EnsureCollection creates the target collection when missing.
func (s *Service) EnsureCollection(ctx context.Context) error {
	return s.store.CreateCollection(ctx, s.cfg.Collection, s.cfg.Dimensions)
}

// ResetCollection drops and recreates the collection and forgets the ledger.
func (s *Service) ResetCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DropCollection(ctx, s.cfg.Collection); err != nil {
		return err
	}
	if err := s.store.CreateCollection(ctx, s.cfg.Collection, s.cfg.Dimensions); err != nil {
		return err
	}
	if s.ledger != nil {
		if _, err := s.ledger.Clear(ctx, s.cfg.Collection); err != nil {
			return err
		}
	}
	log.Printf("[ingest] collection %s recreated", s.cfg.Collection)
	return nil
}

// SaveUpload writes r into the upload directory under the base name of
// filename and returns the stored path.
func (s *Service) SaveUpload(filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	if !SupportedExtension(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(s.cfg.UploadDir, name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", dst, err)
	}
	return dst, nil
}

// IngestFile reads path and ingests its contents.
func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	if !SupportedExtension(path) {
		return Result{Path: path}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.IngestBytes(ctx, path, data)
}

// IngestBytes chunks, embeds and inserts data. Contents already recorded
// in the ledger are skipped.
func (s *Service) IngestBytes(ctx context.Context, sourcePath string, data []byte) (Result, error) {
	result := Result{Path: sourcePath}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger != nil {
		seen, err := s.ledger.Has(ctx, s.cfg.Collection, digest)
		if err != nil {
			return result, err
		}
		if seen {
			result.Skipped = true
			log.Printf("[ingest] %s already ingested, skipping", sourcePath)
			return result, nil
		}
	}

	text, err := ExtractText(sourcePath, data)
	if err != nil {
		return result, err
	}

	chunks := chunker.Chunk(text, s.cfg.MaxWords, chunker.ModeForPath(s.cfg.ChunkMode, sourcePath))
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		return result, nil
	}

	rows := make([]vectorstore.Row, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		vectors, err := s.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return result, fmt.Errorf("embed %s: %w", sourcePath, err)
		}
		if len(vectors) != end-start {
			return result, fmt.Errorf("embed %s: got %d vectors for %d chunks", sourcePath, len(vectors), end-start)
		}
		for i, vec := range vectors {
			rows = append(rows, vectorstore.Row{
				Text:       chunks[start+i],
				SourcePath: sourcePath,
				Vector:     vec,
			})
		}
	}

	inserted, err := s.store.Insert(ctx, s.cfg.Collection, rows)
	if err != nil {
		return result, err
	}
	result.Inserted = inserted

	if s.ledger != nil {
		if err := s.ledger.Record(ctx, catalog.Entry{
			Collection: s.cfg.Collection,
			Path:       sourcePath,
			SHA256:     digest,
			Chunks:     inserted,
		}); err != nil {
			log.Printf("[ingest] failed to record %s in catalog: %v", sourcePath, err)
		}
	}

	log.Printf("[ingest] %s: %d chunks inserted into %s", sourcePath, inserted, s.cfg.Collection)
	return result, nil
}

// ExtractText converts a supported document to plain text.
func ExtractText(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return web.ExtractReadableText(bytes.NewReader(data), 0)
	case ".txt", ".md", ".markdown":
		if !utf8.Valid(data) && looksBinary(data) {
			return "", fmt.Errorf("%w: %s is not text", ErrUnsupportedFormat, filepath.Base(path))
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func looksBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), 8000)], 0) >= 0
}
