package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
	"github.com/zhouzirui/docchat/backend/internal/model/intent"
	"github.com/zhouzirui/docchat/backend/internal/model/product"
	"github.com/zhouzirui/docchat/backend/internal/service/prompt"
	"github.com/zhouzirui/docchat/backend/internal/service/web"
)

// FailurePrefix starts the content of every turn whose resolution failed.
const FailurePrefix = "Request failed: "

var errNoUserMessage = errors.New("no user message precedes the pending turn")

// Router classifies the latest user message.
type Router interface {
	Classify(ctx context.Context, message string) (intent.Decision, error)
}

// Assembler builds retrieval context for a query.
type Assembler interface {
	Assemble(ctx context.Context, query string) (string, error)
}

// Fetcher returns the readable text of a web page.
type Fetcher interface {
	FetchReadableText(ctx context.Context, url string) (string, error)
}

// ProductSearcher looks up products for a keyword.
type ProductSearcher interface {
	Search(ctx context.Context, keyword string) ([]product.Product, error)
}

// LLM completes a rendered prompt.
type LLM interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}

// Config tunes a Resolver.
type Config struct {
	HistoryDepth int
	// CallTimeout bounds each external call separately.
	CallTimeout time.Duration
}

// Resolver drives one pending assistant turn to its final content.
type Resolver struct {
	router    Router
	assembler Assembler
	fetcher   Fetcher
	products  ProductSearcher
	llm       LLM
	cfg       Config
}

func New(router Router, assembler Assembler, fetcher Fetcher, products ProductSearcher, llm LLM, cfg Config) *Resolver {
	if cfg.HistoryDepth < 0 {
		cfg.HistoryDepth = 0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Resolver{
		router:    router,
		assembler: assembler,
		fetcher:   fetcher,
		products:  products,
		llm:       llm,
		cfg:       cfg,
	}
}

// Resolve settles the first pending turn of conv and returns the updated
// conversation together with the index it resolved. A conversation with no
// pending turn is returned unchanged with index -1. Only turn i differs
// between input and output; failures become a visible "Request failed"
// reply instead of leaving the turn pending.
func (r *Resolver) Resolve(ctx context.Context, conv chat.Conversation) (chat.Conversation, int) {
	i := conv.FirstPending()
	if i < 0 {
		return conv, -1
	}

	started := time.Now()
	resolved, err := r.resolveTurn(ctx, conv, i)
	if err != nil {
		log.Printf("[resolver] session=%s turn=%d failed: %v", conv.SessionID, i, err)
		resolved = chat.Turn{
			Role:    conv.Turns[i].Role,
			Content: FailurePrefix + err.Error(),
		}
	} else {
		log.Printf("[resolver] session=%s turn=%d resolved in %s", conv.SessionID, i, time.Since(started).Round(time.Millisecond))
	}
	resolved.Pending = false

	out := conv
	out.Turns = make([]chat.Turn, len(conv.Turns))
	copy(out.Turns, conv.Turns)
	out.Turns[i] = resolved
	return out, i
}

func (r *Resolver) resolveTurn(ctx context.Context, conv chat.Conversation, i int) (turn chat.Turn, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("internal error: %v", rec)
		}
	}()

	turn = conv.Turns[i]

	history := History(conv.Turns[:i], r.cfg.HistoryDepth)
	if len(history) == 0 {
		return turn, errNoUserMessage
	}
	latest := history[0]

	if conv.ProductMode {
		// Product mode is a session toggle; the router is not consulted.
		decision := intent.Product()
		log.Printf("[resolver] session=%s turn=%d route=%s", conv.SessionID, i, decision.Kind)
		products, err := withTimeout(ctx, r.cfg.CallTimeout, func(ctx context.Context) ([]product.Product, error) {
			return r.products.Search(ctx, latest)
		})
		if err != nil {
			return turn, err
		}
		turn.Content = ""
		turn.ProductResult = products
		return turn, nil
	}

	decision, err := withTimeout(ctx, r.cfg.CallTimeout, func(ctx context.Context) (intent.Decision, error) {
		return r.router.Classify(ctx, latest)
	})
	if err != nil {
		return turn, err
	}

	var contextText string
	if decision.IsSummarize() {
		contextText, err = withTimeout(ctx, r.cfg.CallTimeout, func(ctx context.Context) (string, error) {
			return r.fetcher.FetchReadableText(ctx, decision.URL)
		})
		if err == nil && strings.TrimSpace(contextText) == "" {
			err = fmt.Errorf("%w: no readable text at %s", web.ErrFetch, decision.URL)
		}
		// A summary must not leak earlier questions into the task.
		history = history[:1]
	} else {
		contextText, err = withTimeout(ctx, r.cfg.CallTimeout, func(ctx context.Context) (string, error) {
			return r.assembler.Assemble(ctx, latest)
		})
	}
	if err != nil {
		return turn, err
	}

	p := prompt.Build(history, &contextText, decision)
	reply, err := withTimeout(ctx, r.cfg.CallTimeout, func(ctx context.Context) (string, error) {
		return r.llm.Complete(ctx, p)
	})
	if err != nil {
		return turn, err
	}

	turn.Content = reply
	turn.ProductResult = nil
	return turn, nil
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(callCtx)
}
