package embedding

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"websearch/internal/domain"
)

// lruEntry pairs a hash key with its embedding vector in the LRU list.
type lruEntry struct {
	key uint64
	vec []float32
}

// CachedEmbedder wraps a domain.EmbeddingProvider with a per-text LRU cache.
// Batch calls only send the texts that miss.
type CachedEmbedder struct {
	inner   domain.EmbeddingProvider
	maxSize int

	mu    sync.Mutex
	cache map[uint64]*list.Element // hash → list element
	order *list.List               // LRU order: most-recently-used at back
}

// NewCachedEmbedder wraps inner with an LRU embedding cache of maxSize entries.
// If maxSize <= 0, the inner provider is returned directly (no caching).
func NewCachedEmbedder(inner domain.EmbeddingProvider, maxSize int) domain.EmbeddingProvider {
	if maxSize <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner:   inner,
		maxSize: maxSize,
		cache:   make(map[uint64]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Embed implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var missTexts []string
	var missIdx []int

	c.mu.Lock()
	for i, t := range texts {
		keys[i] = hashText(t)
		if elem, ok := c.cache[keys[i]]; ok {
			c.order.MoveToBack(elem)
			result[i] = elem.Value.(*lruEntry).vec
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return result, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkCount(len(vecs), len(missTexts)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, i := range missIdx {
		result[i] = vecs[j]
		c.put(keys[i], vecs[j])
	}
	c.mu.Unlock()

	return result, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Name implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// hashText returns an FNV-1a hash of the input text.
func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// put inserts a key/value into the cache, evicting the LRU entry if at capacity.
// Caller must hold c.mu.
func (c *CachedEmbedder) put(key uint64, vec []float32) {
	if elem, exists := c.cache[key]; exists {
		c.order.MoveToBack(elem)
		elem.Value.(*lruEntry).vec = vec
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*lruEntry).key)
	}

	c.cache[key] = c.order.PushBack(&lruEntry{key: key, vec: vec})
}

var _ domain.EmbeddingProvider = (*CachedEmbedder)(nil)
