// Package vector implements named vector collections on SQLite with an
// in-memory cosine index per collection.
package vector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"websearch/internal/domain"
)

const defaultMaxVectorCandidates = 10000

// Options tune the memory.
type Options struct {
	// EmbedderName and Dimensions are recorded on created collections.
	EmbedderName string
	Dimensions   int
	// MaxVectorCandidates bounds how many points are loaded into a
	// collection's index. 0 = default (10000).
	MaxVectorCandidates int
}

// Memory implements domain.VectorMemory backed by SQLite.
type Memory struct {
	db     *sql.DB
	logger *slog.Logger
	opts   Options

	mu          sync.Mutex
	collections map[string]*Collection
}

// New opens (or creates) a SQLite database at dbPath, runs migrations and
// loads the names of existing collections.
func New(dbPath string, logger *slog.Logger, opts Options) (*Memory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	if opts.MaxVectorCandidates <= 0 {
		opts.MaxVectorCandidates = defaultMaxVectorCandidates
	}

	m := &Memory{
		db:          db,
		logger:      logger,
		opts:        opts,
		collections: make(map[string]*Collection),
	}
	if err := m.loadCollections(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Memory) loadCollections() error {
	rows, err := m.db.Query("SELECT name FROM collections")
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", domain.ErrVectorStore, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: scan collection: %v", domain.ErrVectorStore, err)
		}
		m.collections[name] = newCollection(name, m)
	}
	return rows.Err()
}

// Close closes the underlying database connection.
func (m *Memory) Close() error {
	return m.db.Close()
}

// Collection implements domain.VectorMemory.
func (m *Memory) Collection(name string) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, domain.NewSubSystemError("memory", "Memory.Collection", domain.ErrCollectionNotFound, name)
	}
	return c, nil
}

// HasCollection implements domain.VectorMemory.
func (m *Memory) HasCollection(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok
}

// CreateCollection implements domain.VectorMemory. Creating an existing
// collection returns it unchanged.
func (m *Memory) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	if name == "" {
		return nil, domain.NewSubSystemError("memory", "Memory.CreateCollection", domain.ErrInvalidInput, "empty collection name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return c, nil
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO collections (name, embedder, dimensions, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, m.opts.EmbedderName, m.opts.Dimensions, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection %q: %v", domain.ErrVectorStore, name, err)
	}

	c := newCollection(name, m)
	m.collections[name] = c
	m.logger.Info("vector collection created", "collection", name, "embedder", m.opts.EmbedderName)
	return c, nil
}

var _ domain.VectorMemory = (*Memory)(nil)
