package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"websearch/internal/domain"
)

const (
	defaultGoogleURL = "https://www.google.com/search"
	googlePageSize   = 10
	maxGooglePages   = 3
)

// GoogleBackend scrapes Google's HTML result page.
type GoogleBackend struct {
	client   *http.Client
	endpoint string
	language string
	safe     bool
	logger   *slog.Logger
}

// GoogleOption configures a GoogleBackend.
type GoogleOption func(*GoogleBackend)

// WithGoogleEndpoint overrides the result page URL.
func WithGoogleEndpoint(endpoint string) GoogleOption {
	return func(b *GoogleBackend) { b.endpoint = endpoint }
}

// NewGoogleBackend creates a backend that parses Google result pages.
func NewGoogleBackend(client *http.Client, language string, safe bool, logger *slog.Logger, opts ...GoogleOption) *GoogleBackend {
	b := &GoogleBackend{
		client:   client,
		endpoint: defaultGoogleURL,
		language: language,
		safe:     safe,
		logger:   logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *GoogleBackend) Name() string { return "google" }

// Search pages through results until count unique hits are collected or a
// page yields nothing new.
func (b *GoogleBackend) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	seen := make(map[string]bool)
	var hits []domain.SearchHit

	for page := 0; page < maxGooglePages && len(hits) < count; page++ {
		doc, err := b.fetchPage(ctx, query, count-len(hits)+2, page*googlePageSize)
		if err != nil {
			if page > 0 && len(hits) > 0 {
				b.logger.Warn("google paging stopped", "page", page, "error", err)
				break
			}
			return nil, err
		}

		added := 0
		for _, h := range parseGoogleResults(doc) {
			if len(hits) >= count {
				break
			}
			if seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			hits = append(hits, h)
			added++
		}
		if added == 0 {
			break
		}
	}

	b.logger.Debug("google search completed", "query", query, "results", len(hits))
	return hits, nil
}

func (b *GoogleBackend) fetchPage(ctx context.Context, query string, num, start int) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	if start > 0 {
		q.Set("start", strconv.Itoa(start))
	}
	if b.language != "" {
		q.Set("hl", b.language)
	}
	if b.safe {
		q.Set("safe", "active")
	} else {
		q.Set("safe", "off")
	}
	req.URL.RawQuery = q.Encode()
	// Google serves the lightweight markup parsed below to non-JS agents.
	req.Header.Set("User-Agent", "Lynx/2.9.0 libwww-FM/2.14 SSL-MM/1.4.1 OpenSSL/3.0.0")
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "PENDING+987"})

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Backend: "google", Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(limitBody(resp))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	return doc, nil
}

// parseGoogleResults extracts hits from both the classic "div.g" layout and
// the lightweight "div.ezO2md" layout.
func parseGoogleResults(doc *goquery.Document) []domain.SearchHit {
	var hits []domain.SearchHit
	doc.Find("div.g, div.ezO2md").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		link := unwrapGoogleLink(href)
		if link == "" {
			return
		}

		title := strings.TrimSpace(sel.Find("h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(sel.Find("span.CVA68e").First().Text())
		}
		if title == "" {
			return
		}

		desc := sel.Find("div.VwiC3b, span.FrIlee, div[style*='line-clamp']").First().Text()
		hits = append(hits, domain.SearchHit{
			URL:         link,
			Title:       title,
			Description: collapseSpaces(desc),
		})
	})
	return hits
}

// unwrapGoogleLink resolves "/url?q=" redirect wrappers and drops non-http links.
func unwrapGoogleLink(href string) string {
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		href = u.Query().Get("q")
		if href == "" {
			href = u.Query().Get("url")
		}
	}
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "google.com") && strings.HasPrefix(u.Path, "/search") {
		return ""
	}
	return u.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
