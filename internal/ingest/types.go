package ingest

import (
	"context"
	"time"

	"github.com/david/tender-finder/internal/models"
)

// FetchedDocument is the fully read result of a fetch.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Headers     map[string][]string
}

// FetchOptions are the per-call knobs taken from a source's adapter.
type FetchOptions struct {
	Timeout     time.Duration
	Headers     map[string]string
	InsecureTLS bool
	// RateLimitRPS paces requests to the URL's host; 0 uses the fetcher default.
	RateLimitRPS float64
}

// Fetcher retrieves raw content from a URL. Implementations never retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*FetchedDocument, error)
}

// CandidateBlock is a page fragment under evaluation as one tender row.
// It lives for a single page scan only.
type CandidateBlock struct {
	Href        string // absolute, resolved against the page URL
	LinkText    string
	ContextText string
}

// Window is the combined text the classifier and listing extractor look at.
func (b CandidateBlock) Window() string {
	return normalizeSpace(b.LinkText + " " + b.ContextText)
}

// SourceStats holds metrics about one source run.
type SourceStats struct {
	ListingPages      int `json:"listing_pages"`
	PageErrors        int `json:"page_errors"`
	Candidates        int `json:"candidates"`
	Accepted          int `json:"accepted"`
	Rejected          int `json:"rejected"`
	BlockErrors       int `json:"block_errors"`
	DocumentsFetched  int `json:"documents_fetched"`
	DocumentsEnriched int `json:"documents_enriched"`
	DocumentErrors    int `json:"document_errors"`
	Records           int `json:"records"`
}

// SourceResult is the assembled output for one source.
type SourceResult struct {
	SourceID string                `json:"source_id"`
	Source   string                `json:"source"`
	Records  []models.TenderRecord `json:"records"`
	Stats    SourceStats           `json:"stats"`
}
