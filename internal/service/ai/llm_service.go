package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/docchat/backend/internal/config"
	"github.com/zhouzirui/docchat/backend/internal/service/prompt"
)

// ErrLLMCall wraps every failure of the chat capability.
var ErrLLMCall = errors.New("llm call failed")

// Service runs rendered prompts through the configured chat model.
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the chat model for cfg.Provider and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		chatModel, err = NewOpenAIChatModel(cfg)
	default:
		chatModel, err = cfg.NewChatModel(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel wires an existing chat model into the prompt chain.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// Complete sends the (system, user) pair and returns the reply with any
// reasoning segments removed.
func (s *Service) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": p.System,
		"query":  p.User,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMCall, err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: empty response", ErrLLMCall)
	}

	reply := StripThinking(response.Content)
	log.Printf("[ai] completion done, model=%s, length=%d", s.cfg.Model, len(reply))
	return reply, nil
}

// Chat sends an ordered message list straight to the model. An empty
// modelName keeps the configured model.
func (s *Service) Chat(ctx context.Context, modelName string, messages []*schema.Message) (string, error) {
	var opts []model.Option
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}

	response, err := s.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMCall, err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: empty response", ErrLLMCall)
	}
	return StripThinking(response.Content), nil
}

// ChatModel returns the underlying model so other services can build their own chains.
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

const thinkClose = "</think>"

// StripThinking drops <think>...</think> segments emitted by reasoning models.
// A dangling closing tag discards everything before it.
func StripThinking(content string) string {
	content = thinkBlock.ReplaceAllString(content, "")
	if idx := strings.LastIndex(content, thinkClose); idx >= 0 {
		content = content[idx+len(thinkClose):]
	}
	return strings.TrimSpace(content)
}
