package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"

	"websearch/internal/domain"
	"websearch/internal/infra/middleware"
	"websearch/internal/security"
)

// page is a fetched response body decoded to UTF-8.
type page struct {
	URL       string
	MediaType string
	Body      []byte
}

// Fetcher downloads result pages with SSRF protection, a body size cap and
// per-host politeness.
type Fetcher struct {
	client      *http.Client
	maxBodySize int64
	logger      *slog.Logger
}

// NewFetcher creates a fetcher whose transport is guarded by guard and
// rate limited by limiter. A nil limiter disables rate limiting.
func NewFetcher(guard *security.URLGuard, limiter *middleware.HostRateLimiter, opts Options, logger *slog.Logger) *Fetcher {
	var rt http.RoundTripper = guard.Transport()
	rt = middleware.RateLimited(limiter, rt)
	rt = middleware.BrowserHeaders(opts.UserAgent, rt)
	return &Fetcher{
		client: &http.Client{
			Transport:     rt,
			Timeout:       opts.Timeout,
			CheckRedirect: guard.CheckRedirect,
		},
		maxBodySize: opts.MaxBodySize,
		logger:      logger,
	}
}

// newFetcherWithClient is used by tests to bypass the SSRF transport.
func newFetcherWithClient(client *http.Client, maxBodySize int64, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, maxBodySize: maxBodySize, logger: logger}
}

func fetchError(op string, err error, detail string) error {
	return domain.NewSubSystemError("extract", op, err, detail)
}

// Fetch GETs url and returns the decoded body. Only HTML and plain text
// bodies are accepted.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchError("Fetcher.Fetch", domain.ErrFetchFailed, err.Error())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchError("Fetcher.Fetch", domain.ErrFetchFailed, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := "text/html"
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fetchError("Fetcher.Fetch", domain.ErrUnsupportedContent, contentType)
		}
		mediaType = strings.ToLower(mt)
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
	default:
		return nil, fetchError("Fetcher.Fetch", domain.ErrUnsupportedContent, mediaType)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBodySize), contentType)
	if err != nil {
		return nil, fetchError("Fetcher.Fetch", domain.ErrFetchFailed, fmt.Sprintf("decode charset: %v", err))
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fetchError("Fetcher.Fetch", domain.ErrFetchFailed, fmt.Sprintf("read body: %v", err))
	}

	f.logger.Debug("page fetched", "url", url, "status", resp.StatusCode, "size", len(body), "type", mediaType)
	return &page{URL: resp.Request.URL.String(), MediaType: mediaType, Body: body}, nil
}
