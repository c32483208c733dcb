// Package redis implements the generated-answer cache on Redis.
package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// AnswerCache caches cleaned generated answers keyed by a hash of the query.
type AnswerCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// New constructs an AnswerCache from a Redis URL. The TTL bounds staleness of
// cached answers against re-ingested documents.
func New(redisURL string, ttl time.Duration) (*AnswerCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=answercache.new: %w", err)
	}
	return &AnswerCache{rdb: goredis.NewClient(opts), ttl: ttl}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(rdb *goredis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{rdb: rdb, ttl: ttl}
}

// Key derives the storage key for a query string. Queries are normalized so
// trivially different phrasings of the same question share an entry.
func Key(query string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(query))))
	return "answer:" + hex.EncodeToString(h[:])
}

// Get returns the cached answer for query and whether it was present.
func (c *AnswerCache) Get(ctx domain.Context, query string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, Key(query)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=answercache.get: %w", err)
	}
	return v, true, nil
}

// Set stores answer for query with the configured TTL.
func (c *AnswerCache) Set(ctx domain.Context, query, answer string) error {
	if err := c.rdb.Set(ctx, Key(query), answer, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=answercache.set: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness checks.
func (c *AnswerCache) Ping(ctx domain.Context) error {
	return c.rdb.Ping(ctx).Err()
}
