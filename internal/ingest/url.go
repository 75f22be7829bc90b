package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/ragdesk/ragdesk/internal/knowledge"
)

const fetchTimeout = 30 * time.Second

// URLFetcher ingests web pages: it fetches a URL, extracts the readable
// article text, and feeds it through the ingestion pipeline.
type URLFetcher struct {
	pipeline *Pipeline
	client   *http.Client
}

// NewURLFetcher creates a fetcher around the given pipeline. A nil client
// uses a default with a request timeout.
func NewURLFetcher(pipeline *Pipeline, client *http.Client) *URLFetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &URLFetcher{pipeline: pipeline, client: client}
}

// IngestURL fetches the page, extracts its readable text, and ingests it
// into the namespace. The document name is the extracted title, falling back
// to the URL host and path.
func (f *URLFetcher) IngestURL(ctx context.Context, namespace, rawURL string) (Result, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return Result{}, fmt.Errorf("unsupported url scheme %q", pageURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("building request for %q: %w", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetching %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetching %q: unexpected status %s", rawURL, resp.Status)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("extracting article from %q: %w", rawURL, err)
	}

	content := strings.TrimSpace(article.TextContent)
	fileName := strings.TrimSpace(article.Title)
	if fileName == "" {
		fileName = pageURL.Host + pageURL.Path
	}

	return f.pipeline.Ingest(ctx, Input{
		Namespace:  namespace,
		FileName:   fileName,
		MimeType:   "text/html",
		SizeBytes:  int64(len(content)),
		SourceType: knowledge.SourceTypeURL,
		SourceURL:  pageURL.String(),
		Content:    content,
	})
}
