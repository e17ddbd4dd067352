// Package text splits extracted page text and LLM answers into token-sized
// documents for the vector memory.
package text

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// separators are tried in order; the empty separator splits into runes.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts text into chunks of at most ChunkSize tokens with
// ChunkOverlap tokens carried between neighbours.
type Splitter struct {
	chunkSize int
	overlap   int
	length    func(string) int
}

// New builds a Splitter for cfg. The tiktoken encoding is read from the
// cache or downloaded once within cfg.BPETimeout; when it cannot be loaded
// token counts fall back to rune counts.
func New(cfg config.SplitterConfig, logger *slog.Logger) *Splitter {
	s := &Splitter{chunkSize: cfg.ChunkSize, overlap: cfg.ChunkOverlap, length: utf8.RuneCountInString}
	tiktoken.SetBpeLoader(newBPELoader(cfg.BPECacheDir, cfg.BPETimeout, logger))
	enc, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, counting runes", "encoding", cfg.Encoding, "error", err)
		return s
	}
	s.length = func(t string) int { return len(enc.Encode(t, nil, nil)) }
	return s
}

// NewWithLength builds a Splitter that measures chunks with length.
func NewWithLength(chunkSize, overlap int, length func(string) int) *Splitter {
	return &Splitter{chunkSize: chunkSize, overlap: overlap, length: length}
}

// Split cuts text into documents tagged with source. overlap=false produces
// disjoint chunks.
func (s *Splitter) Split(text, source string, overlap bool) []domain.Document {
	ov := 0
	if overlap {
		ov = s.overlap
	}
	chunks := s.split(strings.TrimSpace(text), separators, ov)
	docs := make([]domain.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, domain.Document{
			PageContent: c,
			Metadata:    map[string]any{"source": source},
		})
	}
	return docs
}

func (s *Splitter) split(text string, seps []string, overlap int) []string {
	if text == "" {
		return nil
	}

	sep, rest := seps[len(seps)-1], []string(nil)
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if s.length(p) <= s.chunkSize {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep, overlap)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, s.split(p, rest, overlap)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep, overlap)...)
	}
	return out
}

// merge packs pieces into chunks no longer than chunkSize, starting each new
// chunk with up to overlap tokens from the end of the previous one.
func (s *Splitter) merge(pieces []string, sep string, overlap int) []string {
	sepLen := s.length(sep)
	var chunks, window []string
	total := 0

	for _, p := range pieces {
		n := s.length(p)
		joined := 0
		if len(window) > 0 {
			joined = sepLen
		}
		if total+n+joined > s.chunkSize && len(window) > 0 {
			if c := strings.TrimSpace(strings.Join(window, sep)); c != "" {
				chunks = append(chunks, c)
			}
			for len(window) > 0 && (total > overlap || total+n+sepLen > s.chunkSize) {
				total -= s.length(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, p)
		total += n
	}
	if c := strings.TrimSpace(strings.Join(window, sep)); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}
