package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"websearch/internal/domain"
)

// Collection implements domain.Collection for one named collection.
type Collection struct {
	name   string
	mem    *Memory
	vecIdx *vecIndex

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newCollection(name string, mem *Memory) *Collection {
	t := time.Now()
	return &Collection{
		name:    name,
		mem:     mem,
		vecIdx:  newVecIndex(),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
	}
}

// Name implements domain.Collection.
func (c *Collection) Name() string { return c.name }

// newID returns a time-ordered ULID. Monotonic entropy is not goroutine-safe.
func (c *Collection) newID(t time.Time) string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), c.entropy).String()
}

// AddPoint implements domain.Collection.
func (c *Collection) AddPoint(ctx context.Context, content string, embedding []float32, metadata map[string]any) (domain.Point, error) {
	if len(embedding) == 0 {
		return domain.Point{}, domain.NewSubSystemError("memory", "Collection.AddPoint", domain.ErrInvalidInput, "empty embedding")
	}

	now := time.Now().UTC()
	p := domain.Point{
		ID:        c.newID(now),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return domain.Point{}, fmt.Errorf("%w: marshal metadata: %v", domain.ErrVectorStore, err)
	}
	if metadata == nil {
		meta = []byte("{}")
	}

	_, err = c.mem.db.ExecContext(ctx,
		`INSERT INTO points (id, collection, content, metadata, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, c.name, p.Content, string(meta), float32ToBytes(embedding), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Point{}, fmt.Errorf("%w: insert point: %v", domain.ErrVectorStore, err)
	}

	if c.vecIdx.isLoaded() {
		c.vecIdx.put(p, embedding)
	}
	return p, nil
}

// GetAllPoints implements domain.Collection. Points are returned in insertion order.
func (c *Collection) GetAllPoints(ctx context.Context) ([]domain.Point, error) {
	rows, err := c.mem.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding, created_at FROM points WHERE collection = ? ORDER BY id`,
		c.name,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list points: %v", domain.ErrVectorStore, err)
	}
	defer rows.Close()

	var points []domain.Point
	for rows.Next() {
		p, _, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan point: %v", domain.ErrVectorStore, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list points: %v", domain.ErrVectorStore, err)
	}
	return points, nil
}

// DeletePoints implements domain.Collection. Unknown IDs are ignored.
func (c *Collection) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.mem.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Chunk to stay under SQLite's bound-parameter limit.
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		part := ids[start:min(start+chunk, len(ids))]
		args := make([]any, 0, len(part)+1)
		args = append(args, c.name)
		for _, id := range part {
			args = append(args, id)
		}
		q := "DELETE FROM points WHERE collection = ? AND id IN (" +
			strings.TrimSuffix(strings.Repeat("?,", len(part)), ",") + ")"
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("%w: delete points: %v", domain.ErrVectorStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}
	c.vecIdx.remove(ids...)
	return nil
}

// RecallByEmbedding implements domain.Collection: the k most similar points
// by cosine similarity, best first.
func (c *Collection) RecallByEmbedding(ctx context.Context, embedding []float32, k int) ([]domain.ScoredPoint, error) {
	if k <= 0 {
		return nil, nil
	}
	if !c.vecIdx.isLoaded() {
		if err := c.loadIndex(ctx); err != nil {
			return nil, fmt.Errorf("%w: load index: %v", domain.ErrVectorSearch, err)
		}
	}
	return c.vecIdx.search(embedding, k), nil
}

// loadIndex populates the in-memory index with the newest
// MaxVectorCandidates points of the collection.
func (c *Collection) loadIndex(ctx context.Context) error {
	rows, err := c.mem.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding, created_at FROM points
		 WHERE collection = ? ORDER BY id DESC LIMIT ?`,
		c.name, c.mem.opts.MaxVectorCandidates,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	entries := make(map[string]vecEntry)
	for rows.Next() {
		p, emb, err := scanPoint(rows)
		if err != nil {
			return fmt.Errorf("scan point: %w", err)
		}
		if emb == nil {
			continue
		}
		entries[p.ID] = vecEntry{point: p, embedding: emb}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	c.vecIdx.replace(entries)
	c.mem.logger.Debug("vector index loaded", "collection", c.name, "points", c.vecIdx.size())
	return nil
}

var _ domain.Collection = (*Collection)(nil)
