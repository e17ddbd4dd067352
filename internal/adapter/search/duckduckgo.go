package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"websearch/internal/domain"
)

const defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoBackend searches via DuckDuckGo's HTML endpoint.
type DuckDuckGoBackend struct {
	client   *http.Client
	endpoint string
	region   string
	safe     bool
	logger   *slog.Logger
}

// NewDuckDuckGoBackend creates a DuckDuckGo backend. An empty endpoint uses
// the public HTML endpoint.
func NewDuckDuckGoBackend(client *http.Client, endpoint, region string, safe bool, logger *slog.Logger) *DuckDuckGoBackend {
	if endpoint == "" {
		endpoint = defaultDuckDuckGoURL
	}
	return &DuckDuckGoBackend{
		client:   client,
		endpoint: endpoint,
		region:   region,
		safe:     safe,
		logger:   logger,
	}
}

func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	form := url.Values{}
	form.Set("q", query)
	if b.region != "" {
		form.Set("kl", b.region)
	}
	if b.safe {
		form.Set("kp", "1")
	} else {
		form.Set("kp", "-2")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Backend: "duckduckgo", Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(limitBody(resp))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	hits := make([]domain.SearchHit, 0, count)
	seen := make(map[string]bool)
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(hits) >= count {
			return false
		}
		if s.HasClass("result--ad") {
			return true
		}
		a := s.Find(".result__a").First()
		href, _ := a.Attr("href")
		link := unwrapDuckDuckGoLink(href)
		title := collapseSpaces(a.Text())
		if link == "" || title == "" || seen[link] {
			return true
		}
		seen[link] = true
		hits = append(hits, domain.SearchHit{
			URL:         link,
			Title:       title,
			Description: collapseSpaces(s.Find(".result__snippet").Text()),
		})
		return true
	})

	b.logger.Debug("duckduckgo search completed", "query", query, "results", len(hits))
	return hits, nil
}

// unwrapDuckDuckGoLink resolves "//duckduckgo.com/l/?uddg=" redirect links.
func unwrapDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

func limitBody(resp *http.Response) io.Reader {
	return io.LimitReader(resp.Body, maxSearchBodySize)
}
