package websearch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// SearchCollection holds the chunks of the latest query's results.
const SearchCollection = "search"

// Service runs one web search query end to end.
type Service struct {
	engine    *Engine
	memorizer *Memorizer
	answerer  *Answerer
	memory    domain.VectorMemory
	splitter  Splitter
	bus       domain.EventBus
	logger    *slog.Logger
	settings  atomic.Pointer[Settings]

	// collLock is held from emptying the search collection until the
	// answer is built, so concurrent queries never see each other's points.
	collLock chan struct{}
}

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Engine    *Engine
	Memorizer *Memorizer
	Answerer  *Answerer
	Memory    domain.VectorMemory
	Splitter  Splitter
	EventBus  domain.EventBus
}

// NewService creates a Service with the given settings.
func NewService(deps ServiceDeps, settings Settings, logger *slog.Logger) *Service {
	s := &Service{
		engine:    deps.Engine,
		memorizer: deps.Memorizer,
		answerer:  deps.Answerer,
		memory:    deps.Memory,
		splitter:  deps.Splitter,
		bus:       deps.EventBus,
		logger:    logger,
		collLock:  make(chan struct{}, 1),
	}
	s.settings.Store(&settings)
	return s
}

// Settings returns the current settings.
func (s *Service) Settings() Settings { return *s.settings.Load() }

// UpdateSettings validates and swaps in new settings.
func (s *Service) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settings.Store(&settings)
	return nil
}

// Search answers query from the web. The search collection is emptied and
// refilled with this query's results before the answer is built. Queries
// may enumerate and extract concurrently but take turns on the collection.
func (s *Service) Search(ctx context.Context, query string) (*domain.Answer, error) {
	settings := s.Settings()
	msgs := messagesFor(settings.Language)

	ctx, span := tracer.StartSpan(ctx, "websearch.service")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("search.query", query))

	notify(ctx, s.bus, msgs.searching)

	results, err := s.engine.Search(ctx, query, settings.MaxResults)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	unlock, err := s.lockCollection(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	if err := s.resetCollection(ctx); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	for _, info := range results {
		docs := s.splitter.Split(info.Content, info.URL, true)
		_, err := s.memorizer.Store(ctx, SearchCollection, docs, info.URL, domain.SearchMetadata(info), settings.Language)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, domain.ErrCollectionNotFound) {
			tracer.RecordError(span, err)
			return nil, err
		}
		s.logger.Warn("result not memorized, citations may be missing", "url", info.URL, "error", err)
	}

	text, err := s.answerer.Answer(ctx, query, results, settings)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	publish(ctx, s.bus, domain.EventSearchCompleted, map[string]any{"query": query, "results": len(results)})
	tracer.SetOK(span)
	return &domain.Answer{Query: query, Text: text, Results: results}, nil
}

// lockCollection waits for exclusive use of the search collection or for ctx
// to be done.
func (s *Service) lockCollection(ctx context.Context) (func(), error) {
	select {
	case s.collLock <- struct{}{}:
		return func() { <-s.collLock }, nil
	case <-ctx.Done():
		return nil, domain.WrapOp("Service.lockCollection", ctx.Err())
	}
}

// resetCollection creates the search collection if needed and deletes every
// point in it.
func (s *Service) resetCollection(ctx context.Context) error {
	if !s.memory.HasCollection(SearchCollection) {
		if _, err := s.memory.CreateCollection(ctx, SearchCollection); err != nil {
			return domain.WrapOp("Service.resetCollection", err)
		}
		publish(ctx, s.bus, domain.EventCollectionCreated, map[string]string{"collection": SearchCollection})
	}

	coll, err := s.memory.Collection(SearchCollection)
	if err != nil {
		return err
	}
	points, err := coll.GetAllPoints(ctx)
	if err != nil {
		return domain.WrapOp("Service.resetCollection", err)
	}
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	if err := coll.DeletePoints(ctx, ids); err != nil {
		return domain.WrapOp("Service.resetCollection", err)
	}
	publish(ctx, s.bus, domain.EventCollectionEmptied, map[string]any{"collection": SearchCollection, "points": len(ids)})
	return nil
}
