package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go_certbot/internal/order"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "certbot:session:"

// DefaultSessionTTL is used when no TTL is configured
const DefaultSessionTTL = 30 * time.Minute

// SessionStore keeps the input expectation of each conversation in Redis
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis backed session store
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Get returns the pending expectation for a chat, or nil
func (s *SessionStore) Get(ctx context.Context, chatID int64) (*order.Expectation, error) {
	raw, err := s.client.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %d: %w", chatID, err)
	}

	var exp order.Expectation
	if err := json.Unmarshal(raw, &exp); err != nil {
		// a corrupt entry is treated as no expectation
		_ = s.client.Del(ctx, sessionKey(chatID)).Err()
		return nil, nil
	}
	return &exp, nil
}

// Set stores the expectation, refreshing its TTL
func (s *SessionStore) Set(ctx context.Context, chatID int64, exp order.Expectation) error {
	raw, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(chatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session %d: %w", chatID, err)
	}
	return nil
}

// Clear drops the expectation for a chat
func (s *SessionStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session %d: %w", chatID, err)
	}
	return nil
}
