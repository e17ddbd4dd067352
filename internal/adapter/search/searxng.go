package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"websearch/internal/domain"
)

// searxngResponse models the relevant portion of the SearXNG JSON response.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
	NumberOfResults float64 `json:"number_of_results"`
}

// SearXNGBackend searches the web via a SearXNG instance.
type SearXNGBackend struct {
	client      *http.Client
	instanceURL string
	language    string
	safe        bool
	logger      *slog.Logger
}

// NewSearXNGBackend creates a search backend backed by a SearXNG instance.
func NewSearXNGBackend(client *http.Client, instanceURL, language string, safe bool, logger *slog.Logger) *SearXNGBackend {
	return &SearXNGBackend{
		client:      client,
		instanceURL: strings.TrimRight(instanceURL, "/"),
		language:    language,
		safe:        safe,
		logger:      logger,
	}
}

func (b *SearXNGBackend) Name() string { return "searxng" }

func (b *SearXNGBackend) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	if b.language != "" {
		q.Set("language", b.language)
	}
	if b.safe {
		q.Set("safesearch", "1")
	} else {
		q.Set("safesearch", "0")
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Backend: "searxng", Code: resp.StatusCode}
	}

	var searxResp searxngResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, count)
	for _, r := range searxResp.Results {
		if len(hits) >= count {
			break
		}
		if r.URL == "" {
			continue
		}
		hits = append(hits, domain.SearchHit{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Content,
		})
	}

	b.logger.Debug("searxng search completed", "query", query, "results", len(hits))
	return hits, nil
}
