package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// SubmissionCache keeps each student's latest submission in Redis so reconnects
// don't hit the submission backend every time.
// Records are stored as JSON: SET quiz:submission:{quizID}:{userID} {json}
type SubmissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmissionCache(client *redis.Client, ttl time.Duration) *SubmissionCache {
	return &SubmissionCache{client: client, ttl: ttl}
}

// Wrap returns a gateway that reads through the cache for userID.
func (c *SubmissionCache) Wrap(userID string, next app.SubmissionGateway) app.SubmissionGateway {
	return &cachedGateway{cache: c, userID: userID, next: next}
}

// Wraps adapts a gateway factory so every gateway it builds is cached.
func (c *SubmissionCache) Wraps(factory app.GatewayFactory) app.GatewayFactory {
	return func(userID, token string) app.SubmissionGateway {
		return c.Wrap(userID, factory(userID, token))
	}
}

// Invalidate drops the cached record after a new submission lands.
func (c *SubmissionCache) Invalidate(ctx context.Context, userID, quizID string) error {
	return c.client.Del(ctx, c.key(userID, quizID)).Err()
}

func (c *SubmissionCache) key(userID, quizID string) string {
	return "quiz:submission:" + quizID + ":" + userID
}

type cachedGateway struct {
	cache  *SubmissionCache
	userID string
	next   app.SubmissionGateway
}

func (g *cachedGateway) Submit(ctx context.Context, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	return g.next.Submit(ctx, quizID, payload)
}

func (g *cachedGateway) FetchMySubmission(ctx context.Context, quizID string) (*domain.SubmissionRecord, error) {
	key := g.cache.key(g.userID, quizID)
	if data, err := g.cache.client.Get(ctx, key).Bytes(); err == nil {
		var record domain.SubmissionRecord
		if json.Unmarshal(data, &record) == nil {
			return &record, nil
		}
	}

	record, err := g.next.FetchMySubmission(ctx, quizID)
	if err != nil || record == nil {
		// absence is not cached so a fresh submission elsewhere shows up immediately
		return record, err
	}
	if data, err := json.Marshal(record); err == nil {
		_ = g.cache.client.Set(ctx, key, data, g.cache.ttl).Err()
	}
	return record, nil
}
