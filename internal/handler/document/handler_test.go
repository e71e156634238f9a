package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
	"github.com/zhouzirui/docchat/backend/internal/service/ingest"
)

type fakeIngester struct {
	saved    map[string]string
	inserted int
	resets   int
	err      error
}

func (f *fakeIngester) SaveUpload(filename string, r io.Reader) (string, error) {
	if !ingest.SupportedExtension(filename) {
		return "", fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, filename)
	}
	data, _ := io.ReadAll(r)
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	path := "/uploads/" + filename
	f.saved[path] = string(data)
	return path, nil
}

func (f *fakeIngester) IngestFile(_ context.Context, path string) (ingest.Result, error) {
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{Path: path, Chunks: f.inserted, Inserted: f.inserted}, nil
}

func (f *fakeIngester) ResetCollection(context.Context) error {
	f.resets++
	return f.err
}

type fakeSearcher struct {
	hits  []document.Hit
	query string
}

func (f *fakeSearcher) Passages(_ context.Context, query string) ([]document.Hit, error) {
	f.query = query
	return f.hits, nil
}

func upload(t *testing.T, r http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func setupRouter(ing *fakeIngester, search *fakeSearcher) *chi.Mux {
	r := chi.NewRouter()
	New(ing, search).RegisterRoutes(r)
	return r
}

func TestUploadReportsInsertedChunks(t *testing.T) {
	ing := &fakeIngester{inserted: 7}
	r := setupRouter(ing, &fakeSearcher{})

	rr := upload(t, r, "notes.md", "# Title\nbody")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Total number of chunks inserted: 7" || resp.Inserted != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if ing.saved["/uploads/notes.md"] != "# Title\nbody" {
		t.Fatalf("upload not saved: %v", ing.saved)
	}
}

func TestUploadErrors(t *testing.T) {
	r := setupRouter(&fakeIngester{}, &fakeSearcher{})
	if rr := upload(t, r, "image.png", "x"); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}

	r = setupRouter(&fakeIngester{err: errors.New("embedding down")}, &fakeSearcher{})
	if rr := upload(t, r, "a.txt", "x"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", rr.Code)
	}
}

func TestResetCollection(t *testing.T) {
	ing := &fakeIngester{}
	r := setupRouter(ing, &fakeSearcher{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/documents/collection", nil))
	if rr.Code != http.StatusOK || ing.resets != 1 {
		t.Fatalf("unexpected reset %d resets=%d", rr.Code, ing.resets)
	}
}

func TestSearch(t *testing.T) {
	search := &fakeSearcher{hits: []document.Hit{{Passage: document.Passage{Text: "t", SourcePath: "a.txt"}, Similarity: 0.9}}}
	r := setupRouter(&fakeIngester{}, search)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/search?q=capital+of+France", nil))
	if rr.Code != http.StatusOK || search.query != "capital of France" {
		t.Fatalf("unexpected search %d query=%q", rr.Code, search.query)
	}

	var hits []document.Hit
	if err := json.Unmarshal(rr.Body.Bytes(), &hits); err != nil || len(hits) != 1 || hits[0].SourcePath != "a.txt" {
		t.Fatalf("unexpected hits %v %+v", err, hits)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", rr.Code)
	}
}
