package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/docchat/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is required")
	ErrTurnPending     = errors.New("previous reply is still pending")
	ErrStaleCommit     = errors.New("turn is no longer pending")
)

const subscriberBuffer = 8

// Service encapsulates conversation state management.
type Service struct {
	mu            sync.RWMutex
	sessions      map[string]chat.Session
	conversations map[string]chat.Conversation
	subscribers   map[string]map[int]chan chat.Conversation
	nextSubID     int
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		sessions:      make(map[string]chat.Session),
		conversations: make(map[string]chat.Conversation),
		subscribers:   make(map[string]map[int]chan chat.Conversation),
	}
}

// CreateSession provisions an anonymous session with an empty conversation.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.conversations[session.ID] = chat.Conversation{
		SessionID: session.ID,
		Turns:     make([]chat.Turn, 0, 16),
		UpdatedAt: now,
	}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Snapshot returns a copy of the current conversation.
func (s *Service) Snapshot(_ context.Context, sessionID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	return conv.Clone(), nil
}

// AppendUserMessage adds the user turn followed by a pending assistant turn.
// It refuses while an earlier reply is unresolved, so a conversation never
// holds more than one pending turn.
func (s *Service) AppendUserMessage(_ context.Context, sessionID, content string) (chat.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Conversation{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	if conv.HasPending() {
		return chat.Conversation{}, ErrTurnPending
	}

	conv = conv.Clone()
	conv.Turns = append(conv.Turns, chat.UserTurn(content), chat.PendingAssistantTurn())
	return s.storeLocked(conv), nil
}

// CommitTurn replaces the pending turn at index with its resolution. The
// commit is rejected when the conversation was reset after the resolver
// took its snapshot or the turn is no longer pending.
func (s *Service) CommitTurn(_ context.Context, sessionID string, epoch, index int, turn chat.Turn) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	if conv.Epoch != epoch || index < 0 || index >= len(conv.Turns) || !conv.Turns[index].Pending {
		return chat.Conversation{}, ErrStaleCommit
	}

	conv = conv.Clone()
	turn.Pending = false
	conv.Turns[index] = turn
	return s.storeLocked(conv), nil
}

// SetProductMode toggles product search for subsequent resolutions.
func (s *Service) SetProductMode(_ context.Context, sessionID string, enabled bool) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}

	session := s.sessions[sessionID]
	session.ProductMode = enabled
	s.sessions[sessionID] = session

	conv = conv.Clone()
	conv.ProductMode = enabled
	return s.storeLocked(conv), nil
}

// Reset clears every turn and starts a new epoch.
func (s *Service) Reset(_ context.Context, sessionID string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}

	conv.Turns = make([]chat.Turn, 0, 16)
	conv.Epoch++
	return s.storeLocked(conv), nil
}

// Subscribe streams every new snapshot of the conversation. The returned
// cancel func must be called to release the subscription. Slow readers
// skip intermediate snapshots but always get the latest one.
func (s *Service) Subscribe(sessionID string) (<-chan chat.Conversation, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, ErrSessionNotFound
	}

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan chat.Conversation, subscriberBuffer)
	if s.subscribers[sessionID] == nil {
		s.subscribers[sessionID] = make(map[int]chan chat.Conversation)
	}
	s.subscribers[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subscribers[sessionID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.subscribers, sessionID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// storeLocked saves conv and fans it out. Callers hold s.mu.
func (s *Service) storeLocked(conv chat.Conversation) chat.Conversation {
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conv.SessionID] = conv

	for _, ch := range s.subscribers[conv.SessionID] {
		snapshot := conv.Clone()
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest queued snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
	return conv.Clone()
}
