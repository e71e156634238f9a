package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
	"github.com/zhouzirui/docchat/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/docchat/backend/internal/service/chat"
)

type recordingNotifier struct {
	sessions []string
}

func (n *recordingNotifier) Notify(sessionID string) {
	n.sessions = append(n.sessions, sessionID)
}

type fakeTranscriber struct {
	text    string
	err     error
	format  string
	payload string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req *speech.TranscriptionRequest) (*speech.TranscriptionResponse, error) {
	f.format = req.Format
	data, _ := io.ReadAll(req.AudioData)
	f.payload = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.TranscriptionResponse{SessionID: req.SessionID, Text: f.text}, nil
}

func setupRouter(transcriber Transcriber) (*chi.Mux, *chatservice.Service, *recordingNotifier) {
	chatSvc := chatservice.NewService()
	notifier := &recordingNotifier{}
	handler := New(chatSvc, notifier, transcriber)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, notifier
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeConversation(t *testing.T, resp *httptest.ResponseRecorder) chat.Conversation {
	t.Helper()
	var conv chat.Conversation
	if err := json.Unmarshal(resp.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode conversation: %v (%s)", err, resp.Body.String())
	}
	return conv
}

func TestCreateSession(t *testing.T) {
	r, chatSvc, _ := setupRouter(nil)

	resp := doJSON(r, http.MethodPost, "/sessions", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if _, err := chatSvc.GetSession(context.Background(), session.ID); err != nil {
		t.Fatalf("session not stored: %v", err)
	}
}

func TestPostMessageQueuesPendingTurn(t *testing.T) {
	r, chatSvc, notifier := setupRouter(nil)
	session, _ := chatSvc.CreateSession(context.Background())

	resp := doJSON(r, http.MethodPost, "/sessions/"+session.ID+"/messages", `{"content":"  what is RAG?  "}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	conv := decodeConversation(t, resp)
	if len(conv.Turns) != 2 || conv.Turns[0].Content != "what is RAG?" || !conv.Turns[1].Pending {
		t.Fatalf("unexpected turns %+v", conv.Turns)
	}
	if len(notifier.sessions) != 1 || notifier.sessions[0] != session.ID {
		t.Fatalf("dispatcher not notified: %v", notifier.sessions)
	}

	resp = doJSON(r, http.MethodPost, "/sessions/"+session.ID+"/messages", `{"content":"again"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 while pending, got %d", resp.Code)
	}
}

func TestPostMessageValidation(t *testing.T) {
	r, chatSvc, notifier := setupRouter(nil)
	session, _ := chatSvc.CreateSession(context.Background())

	cases := []struct {
		path string
		body string
		code int
	}{
		{"/sessions/" + session.ID + "/messages", `{"content":"   "}`, http.StatusBadRequest},
		{"/sessions/" + session.ID + "/messages", ``, http.StatusBadRequest},
		{"/sessions/" + session.ID + "/messages", `{`, http.StatusBadRequest},
		{"/sessions/missing/messages", `{"content":"hi"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		if resp := doJSON(r, http.MethodPost, tc.path, tc.body); resp.Code != tc.code {
			t.Fatalf("%s %q: expected %d, got %d", tc.path, tc.body, tc.code, resp.Code)
		}
	}
	if len(notifier.sessions) != 0 {
		t.Fatalf("rejected messages must not notify: %v", notifier.sessions)
	}
}

func TestResetAndProductMode(t *testing.T) {
	r, chatSvc, _ := setupRouter(nil)
	ctx := context.Background()
	session, _ := chatSvc.CreateSession(ctx)
	_, _ = chatSvc.AppendUserMessage(ctx, session.ID, "hello")

	resp := doJSON(r, http.MethodDelete, "/sessions/"+session.ID+"/messages", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if conv := decodeConversation(t, resp); len(conv.Turns) != 0 || conv.Epoch != 1 {
		t.Fatalf("unexpected reset conversation %+v", conv)
	}

	resp = doJSON(r, http.MethodPut, "/sessions/"+session.ID+"/product-mode", `{"enabled":true}`)
	if resp.Code != http.StatusOK || !decodeConversation(t, resp).ProductMode {
		t.Fatalf("product mode not enabled: %d %s", resp.Code, resp.Body.String())
	}

	if resp := doJSON(r, http.MethodPut, "/sessions/"+session.ID+"/product-mode", `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without enabled, got %d", resp.Code)
	}

	resp = doJSON(r, http.MethodGet, "/sessions/"+session.ID, "")
	if resp.Code != http.StatusOK || !decodeConversation(t, resp).ProductMode {
		t.Fatalf("snapshot lost product mode: %s", resp.Body.String())
	}
}

func audioRequest(t *testing.T, path, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio-bytes")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestTranscribeAppendsUserTurn(t *testing.T) {
	fake := &fakeTranscriber{text: "xin chào"}
	r, chatSvc, notifier := setupRouter(fake)
	session, _ := chatSvc.CreateSession(context.Background())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, audioRequest(t, "/sessions/"+session.ID+"/transcribe", "clip.webm"))

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	conv := decodeConversation(t, resp)
	if len(conv.Turns) != 2 || conv.Turns[0].Content != "xin chào" {
		t.Fatalf("unexpected turns %+v", conv.Turns)
	}
	if fake.format != "webm" || fake.payload != "audio-bytes" {
		t.Fatalf("unexpected transcription request format=%s payload=%q", fake.format, fake.payload)
	}
	if len(notifier.sessions) != 1 {
		t.Fatalf("expected one notification, got %v", notifier.sessions)
	}
}

func TestTranscribeEmptyTextLeavesConversation(t *testing.T) {
	r, chatSvc, notifier := setupRouter(&fakeTranscriber{text: "  "})
	session, _ := chatSvc.CreateSession(context.Background())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, audioRequest(t, "/sessions/"+session.ID+"/transcribe", "clip.wav"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if conv := decodeConversation(t, resp); len(conv.Turns) != 0 {
		t.Fatalf("empty transcription must not add turns: %+v", conv.Turns)
	}
	if len(notifier.sessions) != 0 {
		t.Fatal("empty transcription must not notify")
	}
}

func TestTranscribeErrors(t *testing.T) {
	r, chatSvc, _ := setupRouter(nil)
	session, _ := chatSvc.CreateSession(context.Background())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, audioRequest(t, "/sessions/"+session.ID+"/transcribe", "clip.wav"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without transcriber, got %d", resp.Code)
	}

	r, chatSvc, _ = setupRouter(&fakeTranscriber{err: errors.New("whisper down")})
	session, _ = chatSvc.CreateSession(context.Background())
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, audioRequest(t, "/sessions/"+session.ID+"/transcribe", "clip.wav"))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on transcription failure, got %d", resp.Code)
	}
}
