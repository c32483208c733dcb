// Package ai provides AI client adapters and wrappers used by the application.
package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// embedCache wraps an AIClient and memoizes embedding vectors by text hash.
// Policy questions and chunk texts repeat across requests, so a small cache
// saves a large share of embedding calls. ChatJSON passes through untouched.
// Eviction is FIFO. Safe for concurrent use.
type embedCache struct {
	base     domain.AIClient
	capacity int

	mu      sync.RWMutex
	vectors map[string][]float32
	order   []string
}

// NewEmbedCache wraps base with an embedding cache holding up to capacity
// entries. A capacity of zero or less disables caching and returns base as is.
func NewEmbedCache(base domain.AIClient, capacity int) domain.AIClient {
	if base == nil || capacity <= 0 {
		return base
	}
	return &embedCache{
		base:     base,
		capacity: capacity,
		vectors:  make(map[string][]float32),
		order:    make([]string, 0, capacity),
	}
}

func (c *embedCache) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	c.mu.RLock()
	for i, t := range texts {
		if vec, ok := c.vectors[embedKey(t)]; ok {
			out[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.RUnlock()

	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.base.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.store(missTexts[j], vecs[j])
	}
	return out, nil
}

func (c *embedCache) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.base.ChatJSON(ctx, systemPrompt, userPrompt, maxTokens)
}

func (c *embedCache) store(text string, vec []float32) {
	key := embedKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.vectors[key]; exists {
		c.vectors[key] = vec
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.vectors, oldest)
	}
	c.vectors[key] = vec
	c.order = append(c.order, key)
}

func embedKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
