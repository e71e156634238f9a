package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/docchat/backend/internal/service/chat"
)

func newServer(chatSvc *chatservice.Service) *httptest.Server {
	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return httptest.NewServer(r)
}

// readEvent returns the data payload of the next named event.
func readEvent(t *testing.T, reader *bufio.Reader) (string, chat.Conversation) {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			var conv chat.Conversation
			if err := json.Unmarshal([]byte(data), &conv); err != nil {
				t.Fatalf("decode event data: %v", err)
			}
			return event, conv
		}
	}
}

func TestEventsStreamSnapshots(t *testing.T) {
	chatSvc := chatservice.NewService()
	server := newServer(chatSvc)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := chatSvc.CreateSession(ctx)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+session.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, conv := readEvent(t, reader)
	if event != EventConversation || conv.SessionID != session.ID || len(conv.Turns) != 0 {
		t.Fatalf("unexpected initial event %s %+v", event, conv)
	}

	if _, err := chatSvc.AppendUserMessage(ctx, session.ID, "hello"); err != nil {
		t.Fatalf("AppendUserMessage err: %v", err)
	}
	_, conv = readEvent(t, reader)
	if len(conv.Turns) != 2 || !conv.Turns[1].Pending {
		t.Fatalf("expected pending snapshot, got %+v", conv.Turns)
	}

	if _, err := chatSvc.CommitTurn(ctx, session.ID, conv.Epoch, 1, chat.Turn{Role: chat.RoleAssistant, Content: "hi"}); err != nil {
		t.Fatalf("CommitTurn err: %v", err)
	}
	_, conv = readEvent(t, reader)
	if conv.Turns[1].Pending || conv.Turns[1].Content != "hi" {
		t.Fatalf("expected resolved snapshot, got %+v", conv.Turns[1])
	}
}

func TestEventsUnknownSession(t *testing.T) {
	server := newServer(chatservice.NewService())
	defer server.Close()

	resp, err := http.Get(server.URL + "/sessions/missing/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
