package resolver

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/docchat/backend/internal/service/chat"
)

// TurnResolver resolves the first pending turn of a conversation.
type TurnResolver interface {
	Resolve(ctx context.Context, conv chat.Conversation) (chat.Conversation, int)
}

// ConversationStore is the session state the dispatcher reads and commits to.
type ConversationStore interface {
	Snapshot(ctx context.Context, sessionID string) (chat.Conversation, error)
	CommitTurn(ctx context.Context, sessionID string, epoch, index int, turn chat.Turn) (chat.Conversation, error)
}

// Dispatcher is a single-writer job queue keyed by session id. Each session
// gets at most one worker goroutine, which drains pending turns oldest first
// and exits when none remain. Different sessions resolve in parallel.
type Dispatcher struct {
	resolver TurnResolver
	store    ConversationStore

	mu      sync.Mutex
	workers map[string]chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewDispatcher(resolver TurnResolver, store ConversationStore) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		store:    store,
		workers:  make(map[string]chan struct{}),
	}
}

// Notify tells the dispatcher that sessionID may have a pending turn.
// Repeated notifications while a worker is busy coalesce into one more pass.
func (d *Dispatcher) Notify(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	wake, ok := d.workers[sessionID]
	if !ok {
		wake = make(chan struct{}, 1)
		d.workers[sessionID] = wake
		d.wg.Add(1)
		go d.run(sessionID, wake)
	}

	select {
	case wake <- struct{}{}:
	default:
	}
}

// Close stops accepting notifications and waits for running workers to
// finish. In-flight resolutions are not cancelled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(sessionID string, wake chan struct{}) {
	defer d.wg.Done()

	for {
		select {
		case <-wake:
		default:
		}

		d.drain(sessionID)

		d.mu.Lock()
		if len(wake) == 0 {
			delete(d.workers, sessionID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// drain resolves pending turns until the conversation has none left. It
// runs detached from any request context because resolutions are never
// aborted midway.
func (d *Dispatcher) drain(sessionID string) {
	ctx := context.Background()

	for {
		conv, err := d.store.Snapshot(ctx, sessionID)
		if err != nil {
			log.Printf("[dispatcher] session=%s snapshot failed: %v", sessionID, err)
			return
		}
		if !conv.HasPending() {
			return
		}

		resolved, index := d.resolver.Resolve(ctx, conv)
		if index < 0 {
			return
		}

		_, err = d.store.CommitTurn(ctx, sessionID, conv.Epoch, index, resolved.Turns[index])
		switch {
		case err == nil:
		case errors.Is(err, chatservice.ErrStaleCommit):
			log.Printf("[dispatcher] session=%s turn=%d discarded: conversation changed during resolution", sessionID, index)
		default:
			log.Printf("[dispatcher] session=%s commit failed: %v", sessionID, err)
			return
		}
	}
}
