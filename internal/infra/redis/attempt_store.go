package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Machines live in process; Redis only carries a liveness marker per attempt
// so other instances and operators can see who is mid-quiz.
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[app.AttemptKey]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[app.AttemptKey]*app.Attempt),
	}
}

func (s *AttemptStore) GetOrCreate(key app.AttemptKey, create func() *app.Attempt) *app.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[key]; ok {
		// extend liveness on re-attach
		_ = s.client.Expire(context.Background(), s.key(key), s.ttl).Err()
		return attempt
	}
	attempt := create()
	s.attempts[key] = attempt
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), "1", s.ttl).Err()
	return attempt
}

func (s *AttemptStore) Get(key app.AttemptKey) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[key]
	return attempt, ok
}

func (s *AttemptStore) Delete(key app.AttemptKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[key]; !ok {
		return
	}
	delete(s.attempts, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

func (s *AttemptStore) List() []*app.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Attempt, 0, len(s.attempts))
	for _, attempt := range s.attempts {
		out = append(out, attempt)
	}
	return out
}

func (s *AttemptStore) key(key app.AttemptKey) string {
	return "quiz:attempt:" + key.QuizID + ":" + key.UserID
}
