package domain

import (
	"context"
	"time"
)

// Document is a chunk of text waiting to be memorized.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Point is a vector stored in a collection.
type Point struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ScoredPoint pairs a recalled point with its cosine similarity.
type ScoredPoint struct {
	Point Point   `json:"point"`
	Score float32 `json:"score"`
}

// Collection is a named set of points in vector memory.
type Collection interface {
	Name() string
	AddPoint(ctx context.Context, content string, embedding []float32, metadata map[string]any) (Point, error)
	GetAllPoints(ctx context.Context) ([]Point, error)
	DeletePoints(ctx context.Context, ids []string) error
	RecallByEmbedding(ctx context.Context, embedding []float32, k int) ([]ScoredPoint, error)
}

// VectorMemory owns the collections.
type VectorMemory interface {
	// Collection returns the named collection or ErrCollectionNotFound.
	Collection(name string) (Collection, error)
	HasCollection(name string) bool
	// CreateCollection is idempotent.
	CreateCollection(ctx context.Context, name string) (Collection, error)
}

// DocumentHook lets other plugins rewrite documents around memorization.
// Implementations that only care about some stages return inputs unchanged.
type DocumentHook interface {
	BeforeStoreDocuments(ctx context.Context, docs []Document) []Document
	BeforeInsertPoint(ctx context.Context, doc Document) Document
	AfterStoredDocuments(ctx context.Context, source string, points []Point)
}
