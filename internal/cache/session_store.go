// Package cache keeps the server-side record of issued login sessions so a
// token can be revoked before it expires.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

type SessionStore interface {
	Create(ctx context.Context, id, username string, ttl time.Duration) error
	// Exists reports whether id is live and returns the username it was issued to.
	Exists(ctx context.Context, id string) (string, bool, error)
	Revoke(ctx context.Context, id string) error
}

type RedisSessionStore struct {
	client *redisv9.Client
}

func NewRedisSessionStore(client *redisv9.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, id, username string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(id), username, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Exists(ctx context.Context, id string) (string, bool, error) {
	username, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err == redisv9.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get session failed: %w", err)
	}
	return username, true, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("carelog:session:%s", id)
}

// MemorySessionStore is a single-process SessionStore for running without Redis.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	username  string
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, id, username string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{username: username, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Exists(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, id)
		return "", false, nil
	}
	return sess.username, true, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
