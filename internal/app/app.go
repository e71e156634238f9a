package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/docchat/backend/internal/analysis/chunker"
	"github.com/zhouzirui/docchat/backend/internal/config"
	"github.com/zhouzirui/docchat/backend/internal/model/intent"
	speechModel "github.com/zhouzirui/docchat/backend/internal/model/speech"
	"github.com/zhouzirui/docchat/backend/internal/service/ai"
	"github.com/zhouzirui/docchat/backend/internal/service/embedding"
	"github.com/zhouzirui/docchat/backend/internal/service/ingest"
	intentService "github.com/zhouzirui/docchat/backend/internal/service/intent"
	"github.com/zhouzirui/docchat/backend/internal/service/product"
	"github.com/zhouzirui/docchat/backend/internal/service/prompt"
	"github.com/zhouzirui/docchat/backend/internal/service/resolver"
	"github.com/zhouzirui/docchat/backend/internal/service/retrieval"
	"github.com/zhouzirui/docchat/backend/internal/service/speech"
	"github.com/zhouzirui/docchat/backend/internal/service/vectorstore"
	"github.com/zhouzirui/docchat/backend/internal/service/web"
	"github.com/zhouzirui/docchat/backend/internal/store/catalog"
)

// ErrLLMNotConfigured is reported for every turn when no chat model is set up.
var ErrLLMNotConfigured = errors.New("llm not configured")

// App holds the retrieval side of the service: embeddings, the vector
// store, the ingestion ledger and the pipelines built on them.
type App struct {
	Config    *config.Config
	Embedder  embedding.Embedder
	Store     *vectorstore.ChromemStore
	Catalog   *catalog.Catalog
	Ingest    *ingest.Service
	Assembler *retrieval.Assembler
	// Speech is nil when no transcription service is configured.
	Speech *speech.Service

	persistPath string
}

// New loads the vector store and makes sure the target collection exists.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	store := vectorstore.NewChromemStore(embedding.ToChromemFunc(embedder))
	persistPath := vectorstore.PersistPath(cfg.VectorStore.Path, cfg.VectorStore.Compress)

	var ledger *catalog.Catalog
	if persistPath != "" {
		if err := store.Load(persistPath); err != nil {
			return nil, fmt.Errorf("failed to load vector store: %w", err)
		}
		ledger, err = catalog.Open(cfg.Ingest.CatalogPath)
	} else {
		// A ledger that outlives an in-memory store would skip files the store no longer holds.
		ledger, err = catalog.OpenMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	mode, ok := chunker.ParseMode(cfg.Retrieval.ChunkMode)
	if !ok {
		mode = chunker.ModeAuto
		log.Printf("[app] unknown CHUNK_MODE %q, using %s", cfg.Retrieval.ChunkMode, mode)
	}

	ingestSvc := ingest.NewService(embedder, store, ledger, ingest.Config{
		Collection: cfg.VectorStore.Collection,
		Dimensions: cfg.Embedding.Dimensions,
		ChunkMode:  mode,
		MaxWords:   cfg.Retrieval.ChunkMaxWords,
		UploadDir:  cfg.Ingest.UploadDir,
	})
	if err := ingestSvc.EnsureCollection(ctx); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	a := &App{
		Config:      cfg,
		Embedder:    embedder,
		Store:       store,
		Catalog:     ledger,
		Ingest:      ingestSvc,
		Assembler:   retrieval.NewAssembler(embedder, store, cfg.VectorStore.Collection, cfg.Retrieval.TopK),
		persistPath: persistPath,
	}

	if cfg.Speech.Enabled {
		a.Speech = speech.NewService(&speechModel.SpeechConfig{
			BaseURL:  cfg.Speech.BaseURL,
			Language: cfg.Speech.Language,
			Timeout:  cfg.Speech.Timeout,
		})
	}

	log.Printf("[app] embedder=%s dim=%d collection=%s passages=%d", embedder.Name(), embedder.Dimensions(), cfg.VectorStore.Collection, store.Count(cfg.VectorStore.Collection))
	return a, nil
}

// NewResolver builds the turn resolver. Without a configured chat model
// every turn resolves to a visible failure instead of staying pending.
func (a *App) NewResolver(ctx context.Context) (*resolver.Resolver, error) {
	var (
		router resolver.Router = unavailable{}
		llm    resolver.LLM    = unavailable{}
	)

	if a.Config.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, a.Config.AI)
		if err != nil {
			return nil, err
		}
		intentRouter, err := intentService.NewRouter(ctx, aiSvc.ChatModel())
		if err != nil {
			return nil, err
		}
		router, llm = intentRouter, aiSvc
		log.Printf("[app] chat model %s via %s", a.Config.AI.Model, a.Config.AI.Provider)
	} else {
		log.Println("[app] LLM credentials not configured, replies will fail until LLM_MODEL is set")
	}

	fetcher := web.NewFetcher(web.Config{
		Timeout:       a.Config.Web.Timeout,
		MinLineLength: a.Config.Web.MinLineLength,
		UserAgent:     a.Config.Web.UserAgent,
	})
	products := product.NewClient(product.Config{
		URL:     a.Config.Product.URL,
		Limit:   a.Config.Product.Limit,
		Timeout: a.Config.Product.Timeout,
	})

	return resolver.New(router, a.Assembler, fetcher, products, llm, resolver.Config{
		HistoryDepth: a.Config.Retrieval.HistoryDepth,
		CallTimeout:  a.Config.Resolver.CallTimeout,
	}), nil
}

// Close persists the vector store when a path is configured and closes the ledger.
func (a *App) Close() error {
	var errs []error
	if a.persistPath != "" {
		if err := a.Store.Persist(a.persistPath, a.Config.VectorStore.Compress); err != nil {
			errs = append(errs, fmt.Errorf("persist vector store: %w", err))
		} else {
			log.Printf("[app] vector store saved to %s", a.persistPath)
		}
	}
	if err := a.Catalog.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type unavailable struct{}

func (unavailable) Classify(context.Context, string) (intent.Decision, error) {
	return intent.Decision{}, ErrLLMNotConfigured
}

func (unavailable) Complete(context.Context, prompt.Prompt) (string, error) {
	return "", ErrLLMNotConfigured
}
