package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
	"github.com/zhouzirui/docchat/backend/internal/service/ingest"
	"github.com/zhouzirui/docchat/backend/pkg/utils"
)

const maxDocumentUpload = 64 << 20

// Ingester stores and ingests uploaded documents.
type Ingester interface {
	SaveUpload(filename string, r io.Reader) (string, error)
	IngestFile(ctx context.Context, path string) (ingest.Result, error)
	ResetCollection(ctx context.Context) error
}

// Searcher returns the passages closest to a query.
type Searcher interface {
	Passages(ctx context.Context, query string) ([]document.Hit, error)
}

// UploadResponse reports how many chunks an upload produced.
type UploadResponse struct {
	Message  string `json:"message"`
	Path     string `json:"path"`
	Inserted int    `json:"inserted"`
	Skipped  bool   `json:"skipped"`
}

// Handler exposes document ingestion and a retrieval debug endpoint.
type Handler struct {
	ingester Ingester
	searcher Searcher
}

func New(ingester Ingester, searcher Searcher) *Handler {
	return &Handler{ingester: ingester, searcher: searcher}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/documents", h.handleUpload)
	r.Delete("/documents/collection", h.handleResetCollection)
	r.Get("/search", h.handleSearch)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentUpload)
	if err := r.ParseMultipartForm(maxDocumentUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	path, err := h.ingester.SaveUpload(header.Filename, file)
	if err != nil {
		respondIngestError(w, err)
		return
	}

	result, err := h.ingester.IngestFile(r.Context(), path)
	if err != nil {
		log.Printf("[documents] ingest %s failed: %v", path, err)
		respondIngestError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, UploadResponse{
		Message:  fmt.Sprintf("Total number of chunks inserted: %d", result.Inserted),
		Path:     result.Path,
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
	})
}

func (h *Handler) handleResetCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.ingester.ResetCollection(r.Context()); err != nil {
		log.Printf("[documents] reset collection failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "recreated"})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	hits, err := h.searcher.Passages(r.Context(), query)
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if hits == nil {
		hits = []document.Hit{}
	}
	utils.RespondJSON(w, http.StatusOK, hits)
}

func respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, ingest.ErrInvalidFilename):
		utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
