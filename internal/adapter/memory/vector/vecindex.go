package vector

import (
	"sort"
	"sync"

	"websearch/internal/domain"
)

// vecIndex is the in-memory copy of one collection's embeddings. It is loaded
// lazily on the first recall and updated incrementally on add and delete.
type vecIndex struct {
	mu      sync.RWMutex
	entries map[string]vecEntry // id → point with embedding
	loaded  bool
}

type vecEntry struct {
	point     domain.Point
	embedding []float32
}

func newVecIndex() *vecIndex {
	return &vecIndex{entries: make(map[string]vecEntry)}
}

// search returns the k points most similar to queryVec, best first. Ties are
// broken by ID so results are stable.
func (idx *vecIndex) search(queryVec []float32, k int) []domain.ScoredPoint {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}

	candidates := make([]domain.ScoredPoint, 0, len(idx.entries))
	for _, ve := range idx.entries {
		candidates = append(candidates, domain.ScoredPoint{
			Point: ve.point,
			Score: cosineSimilarity(queryVec, ve.embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Point.ID < candidates[j].Point.ID
	})

	return candidates[:min(k, len(candidates))]
}

// put adds or updates a point in the index.
func (idx *vecIndex) put(p domain.Point, embedding []float32) {
	if embedding == nil {
		return
	}
	idx.mu.Lock()
	idx.entries[p.ID] = vecEntry{point: p, embedding: embedding}
	idx.mu.Unlock()
}

// remove deletes points from the index.
func (idx *vecIndex) remove(ids ...string) {
	idx.mu.Lock()
	for _, id := range ids {
		delete(idx.entries, id)
	}
	idx.mu.Unlock()
}

// replace swaps in a freshly loaded set of entries.
func (idx *vecIndex) replace(entries map[string]vecEntry) {
	idx.mu.Lock()
	idx.entries = entries
	idx.loaded = true
	idx.mu.Unlock()
}

// isLoaded returns whether the index has been populated from the database.
func (idx *vecIndex) isLoaded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loaded
}

// size returns the number of indexed points.
func (idx *vecIndex) size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
