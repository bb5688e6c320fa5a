package embeddings

import (
	"context"
	"strings"
	"sync"

	"github.com/bdougie/motionctrl/internal/tensor"
)

// TextEncoder produces one conditioning embedding per prompt
type TextEncoder interface {
	LearnedConditioning(ctx context.Context, prompts []string) (*tensor.Tensor, error)
}

// Cache memoizes text conditioning for repeated prompt batches.
// The negative prompt is identical on every call, so it is embedded once per model.
type Cache struct {
	encoder TextEncoder
	cache   sync.Map // prompt batch -> *tensor.Tensor
	hits    int
	misses  int
	mu      sync.Mutex
}

// NewCache wraps encoder with a prompt cache
func NewCache(encoder TextEncoder) *Cache {
	return &Cache{encoder: encoder}
}

// LearnedConditioning returns a cached embedding or computes and stores a new one.
// Callers receive a clone so the cached tensor is never mutated.
func (c *Cache) LearnedConditioning(ctx context.Context, prompts []string) (*tensor.Tensor, error) {
	key := strings.Join(prompts, "\x00")
	if cached, ok := c.cache.Load(key); ok {
		if emb, valid := cached.(*tensor.Tensor); valid {
			c.count(true)
			return emb.Clone(), nil
		}
	}

	emb, err := c.encoder.LearnedConditioning(ctx, prompts)
	if err != nil {
		return nil, err
	}
	c.cache.Store(key, emb.Clone())
	c.count(false)
	return emb, nil
}

// Stats returns cache hits and misses
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}
