package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-finder/internal/models"
)

// MockFetcher serves canned bodies by URL.
type MockFetcher struct {
	Data map[string][]byte

	mu    sync.Mutex
	calls []string
}

func (m *MockFetcher) Fetch(_ context.Context, url string, _ FetchOptions) (*FetchedDocument, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()

	content, ok := m.Data[url]
	if !ok {
		return nil, NewFetchError(url, http.StatusNotFound, nil)
	}
	return &FetchedDocument{URL: url, StatusCode: http.StatusOK, Body: content}, nil
}

func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

const listingPage = `<html><body>
<nav><ul>
  <li><a href="/">Home</a></li>
  <li><a href="/contact-us">Contact Us - Supply Chain Management enquiries</a></li>
</ul></nav>
<div class="tenders">
  <ul>
    <li><a href="/docs/scm-12-2025.docx">Tender No: SCM 12/2025 Supply and delivery of cleaning chemicals</a> Closing Date: 28 February 2025</li>
    <li><a href="/tenders/view?id=77">Bid No: T45/2025 Upgrading of the Main Road water pipeline</a> Closing: 14/03/2025</li>
  </ul>
</div>
</body></html>`

const testHost = "https://tenders.example.gov.za"

func pipelineSource() SourceConfig {
	return SourceConfig{
		ID:           "testmetro",
		ShortName:    "Test Metro",
		OrganOfState: "Test Metropolitan Municipality",
		Province:     "Gauteng",
		BaseURL:      testHost,
		ListingURLs:  []string{testHost + "/tenders", testHost + "/quotations"},
	}
}

func newMockFetcher(t *testing.T) *MockFetcher {
	return &MockFetcher{Data: map[string][]byte{
		testHost + "/tenders": []byte(listingPage),
		testHost + "/docs/scm-12-2025.docx": buildDOCX(t,
			"TENDER NUMBER: SCM 12/2025",
			"DESCRIPTION: Supply and delivery of cleaning chemicals for 36 months",
			"CONTACT PERSON: Ms Thandi Nkosi",
			"E-MAIL: scm@example.gov.za",
		),
	}}
}

func TestRunSourceEndToEnd(t *testing.T) {
	mock := newMockFetcher(t)
	p := NewPipeline(mock, zerolog.Nop())

	res, err := p.RunSource(context.Background(), pipelineSource(), 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	for _, r := range res.Records {
		assert.Equal(t, "Test Metro", r.Source)
		assert.NotContains(t, r.SourceURL, "contact-us")
		assert.Equal(t, "Test Metropolitan Municipality", r.OrganOfState)
		assert.Equal(t, "Gauteng", r.Province)
	}

	first := res.Records[0]
	assert.Equal(t, "SCM 12/2025", first.TenderNumber)
	assert.Equal(t, "Supply and delivery of cleaning chemicals for 36 months", first.Description)
	assert.Equal(t, "28/02/2025", first.ClosingDate)
	assert.Equal(t, "Ms Thandi Nkosi", first.ContactPerson)
	assert.Equal(t, "scm@example.gov.za", first.Email)
	assert.Equal(t, testHost+"/docs/scm-12-2025.docx", first.SourceURL)

	second := res.Records[1]
	assert.Equal(t, "T45/2025", second.TenderNumber)
	assert.Equal(t, "Upgrading of the Main Road water pipeline", second.Description)
	assert.Equal(t, "14/03/2025", second.ClosingDate)

	assert.Equal(t, SourceStats{
		ListingPages:      1,
		PageErrors:        1,
		Candidates:        4,
		Accepted:          2,
		Rejected:          2,
		DocumentsFetched:  1,
		DocumentsEnriched: 1,
		Records:           2,
	}, res.Stats)
}

func TestRunSourceHTMLOnly(t *testing.T) {
	mock := newMockFetcher(t)
	p := NewPipeline(mock, zerolog.Nop())
	cfg := pipelineSource()
	cfg.HTMLOnly = true

	res, err := p.RunSource(context.Background(), cfg, 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Supply and delivery of cleaning chemicals", res.Records[0].Description)
	assert.Zero(t, res.Stats.DocumentsFetched)
	assert.NotContains(t, mock.Calls(), testHost+"/docs/scm-12-2025.docx")
}

func TestRunSourceLimit(t *testing.T) {
	p := NewPipeline(newMockFetcher(t), zerolog.Nop())

	res, err := p.RunSource(context.Background(), pipelineSource(), 1)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "SCM 12/2025", res.Records[0].TenderNumber)
}

func TestRunSourceMissingDocumentKeepsListingData(t *testing.T) {
	mock := newMockFetcher(t)
	delete(mock.Data, testHost+"/docs/scm-12-2025.docx")
	p := NewPipeline(mock, zerolog.Nop())

	res, err := p.RunSource(context.Background(), pipelineSource(), 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Supply and delivery of cleaning chemicals", res.Records[0].Description)
	assert.Equal(t, 1, res.Stats.DocumentErrors)
}

func TestRunSourceConfigErrors(t *testing.T) {
	p := NewPipeline(newMockFetcher(t), zerolog.Nop())

	cfg := pipelineSource()
	cfg.ListingURLs = nil
	_, err := p.RunSource(context.Background(), cfg, 0)
	assert.ErrorIs(t, err, ErrNoListingURLs)

	cfg = pipelineSource()
	cfg.ListingStyle = "grid"
	_, err = p.RunSource(context.Background(), cfg, 0)
	assert.ErrorIs(t, err, ErrUnknownListing)
}

func TestRunSourceOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenders" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	p := NewPipeline(NewHTTPFetcher(HTTPFetcherConfig{}), zerolog.Nop())
	cfg := pipelineSource()
	cfg.BaseURL = srv.URL
	cfg.ListingURLs = []string{srv.URL + "/tenders"}

	res, err := p.RunSource(context.Background(), cfg, 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.True(t, strings.HasPrefix(res.Records[1].SourceURL, srv.URL+"/tenders/view"))
	// The linked document 404s; its row survives on listing data.
	assert.Equal(t, 1, res.Stats.DocumentErrors)
}

func TestRunAll(t *testing.T) {
	p := NewPipeline(newMockFetcher(t), zerolog.Nop())

	broken := pipelineSource()
	broken.ID = "offline"
	broken.ShortName = "Offline"
	broken.ListingURLs = []string{"https://offline.example.gov.za/tenders"}

	results, err := p.RunAll(context.Background(), []SourceConfig{pipelineSource(), broken}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "testmetro", results[0].SourceID)
	assert.Len(t, results[0].Records, 2)
	assert.Equal(t, "offline", results[1].SourceID)
	assert.Empty(t, results[1].Records)
	assert.Equal(t, 1, results[1].Stats.PageErrors)
}

type memSink struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]models.IngestRun
	tenders map[string][]models.TenderRecord
}

func newMemSink() *memSink {
	return &memSink{runs: map[uuid.UUID]models.IngestRun{}, tenders: map[string][]models.TenderRecord{}}
}

func (s *memSink) StartRun(_ context.Context, sourceID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.runs[id] = models.IngestRun{RunID: id, SourceID: sourceID, Status: "running"}
	return id, nil
}

func (s *memSink) FinishRun(_ context.Context, run models.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *memSink) UpsertTenders(_ context.Context, sourceID string, records []models.TenderRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenders[sourceID] = append(s.tenders[sourceID], records...)
	return len(records), nil
}

func TestIngestSource(t *testing.T) {
	p := NewPipeline(newMockFetcher(t), zerolog.Nop())
	sink := newMemSink()

	run, err := p.IngestSource(context.Background(), sink, pipelineSource(), 0)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.ItemsFound)
	assert.Equal(t, 2, run.ItemsSaved)
	assert.Equal(t, 1, run.Errors)
	require.NotNil(t, run.CompletedAt)
	assert.Len(t, sink.tenders["testmetro"], 2)
	assert.Equal(t, run, sink.runs[run.RunID])
}

func TestIngestAll(t *testing.T) {
	p := NewPipeline(newMockFetcher(t), zerolog.Nop())
	sink := newMemSink()

	runs, err := p.IngestAll(context.Background(), sink, []SourceConfig{pipelineSource()}, 0)
	require.NoError(t, err)
	require.Contains(t, runs, "testmetro")
	assert.Equal(t, 2, runs["testmetro"].ItemsSaved)
	assert.Len(t, sink.runs, 1)
}

const detailPage = `<html><body>
<h1>T45/2025 Upgrading of the Main Road water pipeline</h1>
<table>
  <tr><th>Tender Number</th><td>T45/2025</td></tr>
  <tr><th>Description</th><td>Upgrading of the Main Road water pipeline in Ward 7</td></tr>
  <tr><th>Closing Date</th><td>14 March 2025</td></tr>
  <tr><th>Contact Person</th><td>Mr Pieter Botha</td></tr>
  <tr><th>Telephone</th><td>041 506 7788</td></tr>
</table>
<p><a href="/docs/t45-2025.docx">Download tender document</a></p>
</body></html>`

func TestRunSourceDetailPages(t *testing.T) {
	mock := newMockFetcher(t)
	mock.Data[testHost+"/tenders/view?id=77"] = []byte(detailPage)
	mock.Data[testHost+"/docs/t45-2025.docx"] = buildDOCX(t,
		"BRIEFING SESSION: Compulsory briefing session on 5 March 2025 at 10:00",
		"SPECIAL CONDITIONS: CIDB grading of 6CE or higher",
	)

	cfg := pipelineSource()
	cfg.DetailPages = true
	p := NewPipeline(mock, zerolog.Nop())

	res, err := p.RunSource(context.Background(), cfg, 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	rec := res.Records[1]
	assert.Equal(t, "T45/2025", rec.TenderNumber)
	assert.Equal(t, "Upgrading of the Main Road water pipeline in Ward 7", rec.Description)
	assert.Equal(t, "14/03/2025", rec.ClosingDate)
	assert.Equal(t, "Mr Pieter Botha", rec.ContactPerson)
	assert.Equal(t, "041 506 7788", rec.Telephone)
	assert.Equal(t, "Yes", rec.BriefingSession)
	assert.Equal(t, "Yes", rec.BriefingCompulsory)
	assert.Equal(t, "05/03/2025 10:00", rec.BriefingDateTime)
	assert.Equal(t, "CIDB grading of 6CE or higher", rec.SpecialConditions)
	// The record still points at the detail page, not the attachment.
	assert.Equal(t, testHost+"/tenders/view?id=77", rec.SourceURL)

	assert.Equal(t, 3, res.Stats.DocumentsFetched)
	assert.Equal(t, 2, res.Stats.DocumentsEnriched)
	assert.Zero(t, res.Stats.DocumentErrors)
}

const wrapperPage = `<html><body>
<div id="page">
  <header><a href="/contact-us">Contact Us</a> <a href="/careers">Careers</a></header>
  <p><a href="/tenders/view?id=1">Bid No: T1/2025 Supply of office furniture</a> Closing Date: 28 February 2025</p>
  <p><a href="/tenders/view?id=2">Bid No: T2/2025 Repairs to the civic centre roof</a> Closing Date: 14 March 2025</p>
</div>
</body></html>`

func TestRunSourcePageWrapperLayout(t *testing.T) {
	mock := &MockFetcher{Data: map[string][]byte{testHost + "/tenders": []byte(wrapperPage)}}
	p := NewPipeline(mock, zerolog.Nop())

	res, err := p.RunSource(context.Background(), pipelineSource(), 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	for _, r := range res.Records {
		assert.NotContains(t, r.SourceURL, "contact-us")
		assert.NotContains(t, r.SourceURL, "careers")
	}

	assert.Equal(t, "T1/2025", res.Records[0].TenderNumber)
	assert.Equal(t, "28/02/2025", res.Records[0].ClosingDate)
	assert.Equal(t, "T2/2025", res.Records[1].TenderNumber)
	assert.Equal(t, "14/03/2025", res.Records[1].ClosingDate)
	assert.Equal(t, 2, res.Stats.Rejected)
}

const documentListPage = `<html><body><ul>
  <li><a href="/docs/t10-2025.pdf">Tender No: T10/2025 Supply of traffic cones</a> Closing Date: 28 February 2025</li>
  <li><a href="/docs/t11-2025.pdf">Tender No: T11/2025 Servicing of fire extinguishers</a> Closing Date: 3 March 2025</li>
  <li><a href="/docs/t12-2025.pdf">Tender No: T12/2025 Pest control services</a> Closing Date: 7 March 2025</li>
</ul></body></html>`

func TestRunSourceLimitSkipsUnusedDocuments(t *testing.T) {
	mock := &MockFetcher{Data: map[string][]byte{testHost + "/tenders": []byte(documentListPage)}}
	p := NewPipeline(mock, zerolog.Nop())

	res, err := p.RunSource(context.Background(), pipelineSource(), 1)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "T10/2025", res.Records[0].TenderNumber)

	var documents []string
	for _, u := range mock.Calls() {
		if strings.Contains(u, "/docs/") {
			documents = append(documents, u)
		}
	}
	assert.Equal(t, []string{testHost + "/docs/t10-2025.pdf"}, documents)
	assert.Equal(t, 1, res.Stats.DocumentErrors)
	assert.Equal(t, 3, res.Stats.Accepted)
}
