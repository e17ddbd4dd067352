package websearch

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// Splitter cuts text into documents, with or without chunk overlap.
type Splitter interface {
	Split(text, source string, overlap bool) []domain.Document
}

// Answerer asks the LLM to answer from the results and annotates the answer
// with citations recalled from the search collection.
type Answerer struct {
	llm      domain.LLMProvider
	embedder domain.EmbeddingProvider
	memory   domain.VectorMemory
	splitter Splitter
	logger   *slog.Logger
}

// NewAnswerer creates an Answerer.
func NewAnswerer(llm domain.LLMProvider, embedder domain.EmbeddingProvider, memory domain.VectorMemory, splitter Splitter, logger *slog.Logger) *Answerer {
	return &Answerer{llm: llm, embedder: embedder, memory: memory, splitter: splitter, logger: logger}
}

// Prompt builds the LLM prompt for query and results in lang.
func Prompt(query string, results []domain.PageInfo, lang string) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Article Title: %s\n", r.Title)
		fmt.Fprintf(&sb, "Content: %s\n", r.Content)
	}
	return fmt.Sprintf(messagesFor(lang).prompt, query, sb.String())
}

// Answer returns the annotated answer. Each chunk of the LLM response is
// followed by citations of the points nearest to it; a reference list of
// all results closes the text.
func (a *Answerer) Answer(ctx context.Context, query string, results []domain.PageInfo, settings Settings) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "websearch.answer")
	defer span.End()

	resp, err := a.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: Prompt(query, results, settings.Language)}},
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", domain.WrapOp("Answerer.Answer", err)
	}

	msgs := messagesFor(settings.Language)
	text := resp.Message.Content
	overlapping := a.splitter.Split(text, "answer", true)
	plain := a.splitter.Split(text, "answer", false)

	coll, err := a.memory.Collection(SearchCollection)
	if err != nil {
		a.logger.Warn("answer without citations", "error", err)
		coll = nil
	}

	var sb strings.Builder
	for i := 0; i < min(len(overlapping), len(plain)); i++ {
		sb.WriteString(plain[i].PageContent)
		sb.WriteString("<br>")

		citations := a.citations(ctx, coll, overlapping[i].PageContent, settings.MaxResults)
		lines := make([]string, 0, len(citations))
		for _, c := range citations {
			lines = append(lines, fmt.Sprintf(`%s: <a href="%s" target="_blank">%s</a>`,
				msgs.citation, html.EscapeString(c.Link), html.EscapeString(c.Title)))
		}
		if len(lines) > 0 {
			sb.WriteString(strings.Join(lines, "\n"))
			sb.WriteString("<br>")
		}
	}

	refs := make([]string, 0, len(results))
	for _, r := range results {
		refs = append(refs, fmt.Sprintf(`<a href='%s' target='_blank'>%s</a>`,
			html.EscapeString(r.URL), html.EscapeString(r.Title)))
	}
	fmt.Fprintf(&sb, "<br>%s:<br>", msgs.references)
	sb.WriteString(strings.Join(refs, "\n"))

	span.SetAttributes(tracer.IntAttr("answer.chunks", len(plain)))
	tracer.SetOK(span)
	return sb.String(), nil
}

// citations recalls the k points nearest to chunk and returns their sources,
// unique by link, in recall order. Failures yield no citations.
func (a *Answerer) citations(ctx context.Context, coll domain.Collection, chunk string, k int) []domain.Citation {
	if coll == nil {
		return nil
	}
	vecs, err := a.embedder.Embed(ctx, []string{chunk})
	if err != nil || len(vecs) == 0 {
		a.logger.Warn("chunk emitted without citations", "error", err)
		return nil
	}
	recalled, err := coll.RecallByEmbedding(ctx, vecs[0], k)
	if err != nil {
		a.logger.Warn("chunk emitted without citations", "error", err)
		return nil
	}

	seen := make(map[string]bool, len(recalled))
	var out []domain.Citation
	for _, sp := range recalled {
		c, ok := domain.CitationFromMetadata(sp.Point.Metadata)
		if !ok || seen[c.Link] {
			continue
		}
		seen[c.Link] = true
		out = append(out, c)
	}
	return out
}
