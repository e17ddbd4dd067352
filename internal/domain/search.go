package domain

import "context"

// SearchHit is a single entry produced by a search-results enumerator.
type SearchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PageInfo is a search hit whose page content was fetched and extracted.
// Position is 1-based within the final result list.
type PageInfo struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Position    int    `json:"position"`
}

// Citation points the reader at a stored search result.
type Citation struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Answer is the annotated response returned to the host for one query.
type Answer struct {
	Query   string     `json:"query"`
	Text    string     `json:"text"`
	Results []PageInfo `json:"results"`
}

// SearchEnumerator returns result URLs for a query, in ranking order.
type SearchEnumerator interface {
	Search(ctx context.Context, query string, count int) ([]SearchHit, error)
	Name() string
}

// ContentExtractor turns the page at a URL into readable text.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// SearchMetadata builds the metadata stored alongside every chunk of a result.
func SearchMetadata(p PageInfo) map[string]any {
	return map[string]any{
		"search": map[string]any{
			"title":       p.Title,
			"link":        p.URL,
			"description": p.Description,
		},
	}
}

// CitationFromMetadata reads back the citation stored by SearchMetadata.
// It reports false when the metadata carries no usable link.
func CitationFromMetadata(meta map[string]any) (Citation, bool) {
	raw, ok := meta["search"].(map[string]any)
	if !ok {
		return Citation{}, false
	}
	link, _ := raw["link"].(string)
	if link == "" {
		return Citation{}, false
	}
	title, _ := raw["title"].(string)
	return Citation{Title: title, Link: link}, true
}
