package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/backend/internal/model/intent"
)

// ErrDecode marks a classification reply that is not one of the accepted shapes.
var ErrDecode = errors.New("router reply could not be decoded")

const (
	keySummarize = "Summarize"
	keyNone      = "None"
)

// Literal braces are doubled because the template uses FString formatting.
const routerSystemPrompt = `You classify a single user message for a document assistant.
If the user asks to summarize, digest or explain the content of a web page and the message contains an http or https URL, reply with {{"Summarize": "<the URL>"}}.
In every other case reply with {{"None": null}}.
Reply with exactly one JSON object and nothing else: no prose, no markdown.`

const routerUserPrompt = `Message: {message}`

// Router decides whether a user turn asks for a page summary.
type Router struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewRouter compiles the classification chain on top of chatModel.
func NewRouter(ctx context.Context, chatModel model.BaseChatModel) (*Router, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(routerSystemPrompt),
		schema.UserMessage(routerUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent router chain: %w", err)
	}

	return &Router{classifier: runnable}, nil
}

// Classify runs one classification call. Malformed replies are returned as
// ErrDecode instead of falling back to a default branch.
func (r *Router) Classify(ctx context.Context, message string) (intent.Decision, error) {
	msg, err := r.classifier.Invoke(ctx, map[string]any{
		"message": strings.TrimSpace(message),
	})
	if err != nil {
		return intent.Decision{}, fmt.Errorf("intent classification failed: %w", err)
	}
	if msg == nil {
		return intent.Decision{}, fmt.Errorf("%w: empty reply", ErrDecode)
	}

	decision, err := ParseDecision(msg.Content)
	if err != nil {
		log.Printf("[intent] classifier reply rejected: %v", err)
		return intent.Decision{}, err
	}
	return decision, nil
}

// ParseDecision decodes a router reply. The reply must be a JSON object with
// exactly one key: "Summarize" holding an absolute http(s) URL, or "None".
func ParseDecision(content string) (intent.Decision, error) {
	raw := stripCodeFence(strings.TrimSpace(content))
	if raw == "" {
		return intent.Decision{}, fmt.Errorf("%w: empty reply", ErrDecode)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return intent.Decision{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(payload) != 1 {
		return intent.Decision{}, fmt.Errorf("%w: expected exactly one key, got %d", ErrDecode, len(payload))
	}

	if _, ok := payload[keyNone]; ok {
		return intent.Answer(), nil
	}

	value, ok := payload[keySummarize]
	if !ok {
		return intent.Decision{}, fmt.Errorf("%w: expected key %q or %q", ErrDecode, keySummarize, keyNone)
	}

	var target string
	if err := json.Unmarshal(value, &target); err != nil {
		return intent.Decision{}, fmt.Errorf("%w: Summarize value is not a string", ErrDecode)
	}
	target = strings.TrimSpace(target)

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return intent.Decision{}, fmt.Errorf("%w: invalid url %q", ErrDecode, target)
	}

	return intent.SummarizeURL(target), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		lang := strings.TrimSpace(inner[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
