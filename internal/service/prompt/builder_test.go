package prompt_test

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/backend/internal/model/intent"
	"github.com/zhouzirui/docchat/backend/internal/service/prompt"
)

func strPtr(s string) *string { return &s }

func TestBuildWithContext(t *testing.T) {
	p := prompt.Build([]string{"What is the capital?"}, strPtr("File: a.txt\nRelevance Text: Paris is the capital of France"), intent.Answer())

	if !strings.Contains(p.User, "<context>\nFile: a.txt\nRelevance Text: Paris is the capital of France\n</context>") {
		t.Fatalf("context block missing:\n%s", p.User)
	}
	if !strings.HasSuffix(p.User, "<question>\nWhat is the capital?\n</question>") {
		t.Fatalf("question block missing:\n%s", p.User)
	}
	for _, want := range []string{"2 to 6 sentences", "priority over your general knowledge", "could not find enough information", "same language", "$$"} {
		if !strings.Contains(p.System, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, p.System)
		}
	}
}

func TestBuildWithoutContextOmitsBlock(t *testing.T) {
	for _, ctx := range []*string{nil, strPtr("  \n ")} {
		p := prompt.Build([]string{"hello"}, ctx, intent.Answer())
		if strings.Contains(p.User, "<context>") || strings.Contains(p.System, "<context>") {
			t.Fatalf("context block should be omitted:\n%s\n%s", p.System, p.User)
		}
		if !strings.Contains(p.System, "general knowledge") {
			t.Fatalf("expected general-purpose instruction, got %s", p.System)
		}
	}
}

func TestBuildSummarizeAsksForCompleteSummary(t *testing.T) {
	p := prompt.Build([]string{"Summarize https://x.com"}, strPtr("page text"), intent.SummarizeURL("https://x.com"))

	if !strings.Contains(p.System, "complete, well-structured summary") {
		t.Fatalf("summary rule missing:\n%s", p.System)
	}
	if strings.Contains(p.System, "2 to 6 sentences") {
		t.Fatalf("summaries must not be length-capped:\n%s", p.System)
	}
}

func TestBuildRendersPriorUserMessages(t *testing.T) {
	p := prompt.Build([]string{"and its population?", "what is the capital of France?", "hi"}, nil, intent.Answer())

	first := strings.Index(p.User, "User: hi")
	second := strings.Index(p.User, "User: what is the capital of France?")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("prior messages not rendered oldest first:\n%s", p.User)
	}
	if strings.Contains(p.User, "User: and its population?") {
		t.Fatalf("current message rendered as history:\n%s", p.User)
	}
}

func TestMessagesOrder(t *testing.T) {
	msgs := prompt.Prompt{System: "sys", User: "usr"}.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two messages, got %d", len(msgs))
	}
	if msgs[0].Role != schema.System || msgs[0].Content != "sys" {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != schema.User || msgs[1].Content != "usr" {
		t.Fatalf("unexpected user message: %+v", msgs[1])
	}
}
