package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/backend/internal/config"
	"github.com/zhouzirui/docchat/backend/internal/service/prompt"
)

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestCompleteSendsSystemAndUser(t *testing.T) {
	fake := &fakeChatModel{reply: "<think>let me see</think>\nParis."}
	svc, err := NewServiceWithModel(context.Background(), fake, config.AIConfig{Model: "test"})
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}

	got, err := svc.Complete(context.Background(), prompt.Prompt{System: "be brief {not a var}", User: "capital of France?"})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if got != "Paris." {
		t.Fatalf("unexpected reply %q", got)
	}

	if len(fake.received) != 2 {
		t.Fatalf("expected two messages, got %d", len(fake.received))
	}
	if fake.received[0].Role != schema.System || fake.received[0].Content != "be brief {not a var}" {
		t.Fatalf("unexpected system message %+v", fake.received[0])
	}
	if fake.received[1].Role != schema.User || fake.received[1].Content != "capital of France?" {
		t.Fatalf("unexpected user message %+v", fake.received[1])
	}
}

func TestCompleteWrapsModelErrors(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("boom")}
	svc, err := NewServiceWithModel(context.Background(), fake, config.AIConfig{})
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}

	if _, err := svc.Complete(context.Background(), prompt.Prompt{System: "s", User: "u"}); !errors.Is(err, ErrLLMCall) {
		t.Fatalf("expected ErrLLMCall, got %v", err)
	}
}

func TestChatPassesMessagesThrough(t *testing.T) {
	fake := &fakeChatModel{reply: "</think>ok"}
	svc, err := NewServiceWithModel(context.Background(), fake, config.AIConfig{})
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}

	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("first"),
		schema.AssistantMessage("reply", nil),
		schema.UserMessage("second"),
	}
	got, err := svc.Chat(context.Background(), "other-model", msgs)
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if got != "ok" || len(fake.received) != 4 || fake.received[3].Content != "second" {
		t.Fatalf("unexpected chat result %q %+v", got, fake.received)
	}
}

func TestStripThinking(t *testing.T) {
	cases := map[string]string{
		"plain answer":                          "plain answer",
		"<think>a</think>answer":                "answer",
		"<think>a\nb</think> x <think>c</think>y": "x y",
		"half a thought</think>\nfinal":         "final",
		"  spaced  ":                            "spaced",
	}
	for in, want := range cases {
		if got := StripThinking(in); got != want {
			t.Fatalf("StripThinking(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIChatModelGenerate(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"llama3.2","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	m, err := NewOpenAIChatModel(config.AIConfig{Model: "llama3.2", OpenAIBaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIChatModel err: %v", err)
	}

	msg, err := m.Generate(context.Background(), prompt.Prompt{System: "sys", User: "hi"}.Messages())
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Content != "hello there" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if captured.Model != "llama3.2" || len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestOpenAIChatModelRequiresModel(t *testing.T) {
	if _, err := NewOpenAIChatModel(config.AIConfig{}); err == nil {
		t.Fatal("expected error without model")
	}
}
