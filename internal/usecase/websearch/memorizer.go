package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/time/rate"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// MemorizerOptions control notifications and embedding pace.
type MemorizerOptions struct {
	NotifyInterval time.Duration
	InsertInterval time.Duration
}

// Memorizer embeds documents and stores them as points of a collection.
type Memorizer struct {
	memory   domain.VectorMemory
	embedder domain.EmbeddingProvider
	hooks    []domain.DocumentHook
	bus      domain.EventBus
	opts     MemorizerOptions
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemorizer creates a Memorizer. Inserts are paced one per InsertInterval.
func NewMemorizer(memory domain.VectorMemory, embedder domain.EmbeddingProvider, hooks []domain.DocumentHook, bus domain.EventBus, opts MemorizerOptions, logger *slog.Logger) *Memorizer {
	return &Memorizer{
		memory:   memory,
		embedder: embedder,
		hooks:    hooks,
		bus:      bus,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(opts.InsertInterval), 1),
		logger:   logger,
		now:      time.Now,
	}
}

// Store memorizes docs in the named collection. Every point carries source,
// when (unix seconds) and the custom metadata. Empty documents are skipped,
// and so are documents that fail to embed or insert; Store only fails when
// none of them could be stored or ctx is done. Progress is reported every
// NotifyInterval in lang.
func (m *Memorizer) Store(ctx context.Context, collection string, docs []domain.Document, source string, metadata map[string]any, lang string) ([]domain.Point, error) {
	ctx, span := tracer.StartSpan(ctx, "websearch.memorize")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("memory.collection", collection), tracer.StringAttr("memory.source", source))

	coll, err := m.memory.Collection(collection)
	if err != nil {
		m.logger.Error("vector memory collection not found", "collection", collection)
		tracer.RecordError(span, err)
		return nil, err
	}

	msgs := messagesFor(lang)
	m.logger.Info("preparing to memorize", "source", source, "documents", len(docs))

	for _, h := range m.hooks {
		docs = h.BeforeStoreDocuments(ctx, docs)
	}

	lastNotify := m.now()
	points := make([]domain.Point, 0, len(docs))
	var failed int
	var lastErr error
	for i, doc := range docs {
		if m.now().Sub(lastNotify) > m.opts.NotifyInterval {
			lastNotify = m.now()
			msg := fmt.Sprintf(msgs.readProgress, i*100/len(docs), source)
			notify(ctx, m.bus, msg)
			m.logger.Warn(msg)
		}

		meta := make(map[string]any, len(doc.Metadata)+len(metadata)+2)
		maps.Copy(meta, doc.Metadata)
		meta["source"] = source
		meta["when"] = float64(m.now().UnixNano()) / 1e9
		maps.Copy(meta, metadata)
		doc.Metadata = meta

		for _, h := range m.hooks {
			doc = h.BeforeInsertPoint(ctx, doc)
		}

		if doc.PageContent == "" {
			m.logger.Debug("skipped memory insertion of empty doc", "index", i+1, "total", len(docs))
			continue
		}

		p, err := m.insert(ctx, coll, doc)
		if err != nil {
			if ctx.Err() != nil {
				tracer.RecordError(span, err)
				return points, domain.WrapOp("Memorizer.Store", err)
			}
			failed++
			lastErr = err
			m.logger.Warn("skipped memory insertion", "index", i+1, "total", len(docs), "source", source, "error", err)
			continue
		}
		points = append(points, p)
		m.logger.Debug("inserted into memory", "index", i+1, "total", len(docs), "id", p.ID)
	}

	for _, h := range m.hooks {
		h.AfterStoredDocuments(ctx, source, points)
	}

	notify(ctx, m.bus, fmt.Sprintf(msgs.finished, source, len(docs)))
	publish(ctx, m.bus, domain.EventDocumentsMemorized, map[string]any{
		"collection": collection,
		"source":     source,
		"points":     len(points),
	})
	m.logger.Info("done memorizing", "source", source, "points", len(points))

	span.SetAttributes(tracer.IntAttr("memory.points", len(points)), tracer.IntAttr("memory.failed", failed))
	if failed > 0 && len(points) == 0 {
		tracer.RecordError(span, lastErr)
		return points, domain.WrapOp("Memorizer.Store", lastErr)
	}
	tracer.SetOK(span)
	return points, nil
}

// insert embeds one document and adds it to coll, paced by the limiter.
func (m *Memorizer) insert(ctx context.Context, coll domain.Collection, doc domain.Document) (domain.Point, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return domain.Point{}, err
	}
	vecs, err := m.embedder.Embed(ctx, []string{doc.PageContent})
	if err != nil {
		return domain.Point{}, err
	}
	if len(vecs) == 0 {
		return domain.Point{}, domain.ErrEmbeddingFailed
	}
	return coll.AddPoint(ctx, doc.PageContent, vecs[0], doc.Metadata)
}
