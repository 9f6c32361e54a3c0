package bot

import (
	"context"
	"sync"

	"go_certbot/internal/model"
	"go_certbot/internal/order"
	"go_certbot/internal/present"
	"go_certbot/internal/query"
)

// Update is one inbound chat event. Exactly one of Text or Callback is set.
type Update struct {
	ChatID   int64  `json:"chatId" binding:"required"`
	UserID   int64  `json:"userId" binding:"required"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Callback string `json:"callback"`
}

// Message is one outbound chat message
type Message struct {
	Text     string           `json:"text"`
	Keyboard present.Keyboard `json:"keyboard,omitempty"`
}

// Reply is everything the transport should send back for an update
type Reply struct {
	Messages []Message          `json:"messages"`
	Order    *model.Order       `json:"order,omitempty"`
	Expect   *order.Expectation `json:"expect,omitempty"`
	Files    []query.Artifact   `json:"files,omitempty"`

	resetSession bool
}

func (r *Reply) say(text string, kb present.Keyboard) *Reply {
	r.Messages = append(r.Messages, Message{Text: text, Keyboard: kb})
	return r
}

// SessionStore persists the input expectation of each conversation
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*order.Expectation, error)
	Set(ctx context.Context, chatID int64, exp order.Expectation) error
	Clear(ctx context.Context, chatID int64) error
}

// MemorySessionStore keeps sessions in process memory
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]order.Expectation
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]order.Expectation)}
}

func (m *MemorySessionStore) Get(ctx context.Context, chatID int64) (*order.Expectation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.sessions[chatID]
	if !ok {
		return nil, nil
	}
	return &exp, nil
}

func (m *MemorySessionStore) Set(ctx context.Context, chatID int64, exp order.Expectation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = exp
	return nil
}

func (m *MemorySessionStore) Clear(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}
