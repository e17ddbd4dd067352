package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"websearch/internal/domain"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- enumerator / extractor ---

type fakeEnumerator struct {
	hits      []domain.SearchHit
	err       error
	gotCount  int
	callCount int
}

func (f *fakeEnumerator) Search(_ context.Context, _ string, count int) ([]domain.SearchHit, error) {
	f.callCount++
	f.gotCount = count
	return f.hits, f.err
}

func (f *fakeEnumerator) Name() string { return "fake" }

type fakeExtractor struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := f.pages[url]
	if !ok || text == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrFetchFailed, url)
	}
	return text, nil
}

func (f *fakeExtractor) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func hits(urls ...string) []domain.SearchHit {
	out := make([]domain.SearchHit, len(urls))
	for i, u := range urls {
		out[i] = domain.SearchHit{URL: u, Title: "title " + u, Description: "desc " + u}
	}
	return out
}

// --- embedder: one dimension per keyword ---

var keywords = []string{"go", "rust", "python"}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	// failOn makes only the call with this 1-based number fail with err.
	failOn int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.err != nil && (f.failOn == 0 || f.failOn == call) {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(keywords)+1)
		lower := strings.ToLower(t)
		for j, k := range keywords {
			v[j] = float32(strings.Count(lower, k))
		}
		v[len(keywords)] = 0.01
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(keywords) + 1 }
func (f *fakeEmbedder) Name() string    { return "fake" }

// --- vector memory ---

type fakePoint struct {
	point domain.Point
	vec   []float32
}

type fakeCollection struct {
	mu     sync.Mutex
	name   string
	points []fakePoint
	nextID int
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) AddPoint(_ context.Context, content string, embedding []float32, metadata map[string]any) (domain.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	p := domain.Point{ID: fmt.Sprintf("p%03d", c.nextID), Content: content, Metadata: metadata, CreatedAt: time.Now()}
	c.points = append(c.points, fakePoint{point: p, vec: embedding})
	return p, nil
}

func (c *fakeCollection) GetAllPoints(context.Context) ([]domain.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Point, len(c.points))
	for i, p := range c.points {
		out[i] = p.point
	}
	return out, nil
}

func (c *fakeCollection) DeletePoints(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := c.points[:0]
	for _, p := range c.points {
		if !drop[p.point.ID] {
			kept = append(kept, p)
		}
	}
	c.points = kept
	return nil
}

func (c *fakeCollection) RecallByEmbedding(_ context.Context, embedding []float32, k int) ([]domain.ScoredPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scored := make([]domain.ScoredPoint, 0, len(c.points))
	for _, p := range c.points {
		scored = append(scored, domain.ScoredPoint{Point: p.point, Score: cosine(embedding, p.vec)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

type fakeMemory struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	created     int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{collections: map[string]*fakeCollection{}}
}

func (m *fakeMemory) Collection(name string) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, domain.NewSubSystemError("memory", "fakeMemory.Collection", domain.ErrCollectionNotFound, name)
	}
	return c, nil
}

func (m *fakeMemory) HasCollection(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok
}

func (m *fakeMemory) CreateCollection(_ context.Context, name string) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return c, nil
	}
	m.created++
	c := &fakeCollection{name: name}
	m.collections[name] = c
	return c, nil
}

// --- LLM ---

type fakeLLM struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.prompt = req.Messages[len(req.Messages)-1].Content
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: f.reply}}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

// --- splitter: one chunk per paragraph; with overlap a chunk also carries
// the first word of the next paragraph ---

type paragraphSplitter struct{}

func (paragraphSplitter) Split(text, source string, overlap bool) []domain.Document {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	docs := make([]domain.Document, len(paras))
	for i, p := range paras {
		if overlap && i+1 < len(paras) {
			p += " " + strings.Fields(paras[i+1])[0]
		}
		docs[i] = domain.Document{PageContent: p, Metadata: map[string]any{"source": source}}
	}
	return docs
}

// --- event bus ---

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) notifications() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		if e.Type != domain.EventNotification {
			continue
		}
		var p domain.NotificationPayload
		_ = json.Unmarshal(e.Payload, &p)
		out = append(out, p.Message)
	}
	return out
}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// --- hooks ---

type recordingHook struct {
	stored   []domain.Point
	source   string
	inserted int
}

func (h *recordingHook) BeforeStoreDocuments(_ context.Context, docs []domain.Document) []domain.Document {
	return append(docs, domain.Document{PageContent: ""})
}

func (h *recordingHook) BeforeInsertPoint(_ context.Context, doc domain.Document) domain.Document {
	h.inserted++
	doc.Metadata["hooked"] = true
	return doc
}

func (h *recordingHook) AfterStoredDocuments(_ context.Context, source string, points []domain.Point) {
	h.source = source
	h.stored = points
}
