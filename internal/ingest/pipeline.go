package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/david/tender-finder/internal/models"
)

const (
	DefaultDocumentBatch     = 4
	DefaultSourceParallelism = 4
)

// Sink persists assembled records and the run bookkeeping around them.
// The database store implements it; tests use an in-memory one.
type Sink interface {
	StartRun(ctx context.Context, sourceID string) (uuid.UUID, error)
	FinishRun(ctx context.Context, run models.IngestRun) error
	UpsertTenders(ctx context.Context, sourceID string, records []models.TenderRecord) (int, error)
}

// Pipeline runs the per-source path: fetch, classify, extract, enrich and
// assemble. A Pipeline holds no per-run state and is safe to share.
type Pipeline struct {
	Fetcher      Fetcher // engine "http"
	CollyFetcher Fetcher // engine "colly"; falls back to Fetcher when nil
	Documents    *DocumentExtractor
	Logger       zerolog.Logger

	// DocumentBatch is the number of documents fetched concurrently. Each
	// batch completes before the next starts.
	DocumentBatch     int
	SourceParallelism int
	DefaultTimeout    time.Duration
}

// NewPipeline wires a pipeline with default knobs. A nil fetcher selects
// an HTTPFetcher with the private network guard enabled.
func NewPipeline(fetcher Fetcher, logger zerolog.Logger) *Pipeline {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(HTTPFetcherConfig{BlockPrivateNetworks: true})
	}
	return &Pipeline{
		Fetcher:           fetcher,
		Documents:         NewDocumentExtractor(),
		Logger:            logger,
		DocumentBatch:     DefaultDocumentBatch,
		SourceParallelism: DefaultSourceParallelism,
		DefaultTimeout:    DefaultFetchTimeout,
	}
}

func (p *Pipeline) fetcherFor(cfg SourceConfig) Fetcher {
	if cfg.Fetch.Engine == EngineColly && p.CollyFetcher != nil {
		return p.CollyFetcher
	}
	return p.Fetcher
}

// RunSource scrapes one source. Fetch and per-block failures only reduce the
// output; the returned error is reserved for misconfiguration and for an
// *IntegrityError from the assembler.
func (p *Pipeline) RunSource(ctx context.Context, cfg SourceConfig, limit int) (SourceResult, error) {
	log := p.Logger.With().Str("source", cfg.ID).Logger()
	res := SourceResult{SourceID: cfg.ID, Source: cfg.ShortName}

	if len(cfg.ListingURLs) == 0 {
		return res, fmt.Errorf("%s: %w", cfg.ID, ErrNoListingURLs)
	}
	scan, err := GlobalScannerFactory.Get(cfg.Style())
	if err != nil {
		return res, err
	}

	fetcher := p.fetcherFor(cfg)
	opts := cfg.FetchOptions(p.DefaultTimeout)
	start := time.Now()

	var records []models.TenderRecord
	for _, listingURL := range cfg.ListingURLs {
		page, err := fetcher.Fetch(ctx, listingURL, opts)
		if err != nil {
			res.Stats.PageErrors++
			log.Warn().Err(err).Str("url", listingURL).Msg("listing fetch failed")
			continue
		}
		res.Stats.ListingPages++

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			res.Stats.PageErrors++
			log.Warn().Err(err).Str("url", listingURL).Msg("listing parse failed")
			continue
		}

		blocks := scan(doc, page.URL, cfg.Selectors)
		res.Stats.Candidates += len(blocks)
		for _, b := range blocks {
			rec, ok, err := p.evaluateBlock(cfg, page.URL, b)
			switch {
			case err != nil:
				res.Stats.BlockErrors++
				log.Warn().Err(err).Str("href", b.Href).Msg("candidate block failed")
			case ok:
				res.Stats.Accepted++
				records = append(records, rec)
			default:
				res.Stats.Rejected++
			}
		}
	}

	// Documents are only fetched for records that can survive the limit.
	p.enrichDocuments(ctx, cfg, fetcher, opts, records[:keptPrefix(cfg, records, limit)], &res.Stats)

	assembled, err := Assemble(cfg, records, limit)
	if err != nil {
		log.Error().Err(err).Msg("source rejected")
		return res, err
	}
	res.Records = assembled
	res.Stats.Records = len(assembled)

	log.Info().
		Int("pages", res.Stats.ListingPages).
		Int("candidates", res.Stats.Candidates).
		Int("accepted", res.Stats.Accepted).
		Int("enriched", res.Stats.DocumentsEnriched).
		Int("records", res.Stats.Records).
		Dur("took", time.Since(start)).
		Msg("source complete")
	return res, nil
}

// evaluateBlock classifies one block and extracts its listing fields. A panic
// anywhere in the heuristics is confined to the block.
func (p *Pipeline) evaluateBlock(cfg SourceConfig, pageURL string, b CandidateBlock) (rec models.TenderRecord, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating %s: %v", b.Href, r)
			ok = false
		}
	}()

	fields := ExtractFields(b.Window(), ListingPatterns, cfg.DateFormats)
	if v := Classify(b, pageURL, fields); !v.Accepted {
		p.Logger.Trace().Str("source", cfg.ID).Str("href", b.Href).Str("stage", v.Stage).Msg("candidate rejected")
		return models.TenderRecord{}, false, nil
	}
	return listingRecord(cfg, b, fields), true, nil
}

// documentJob is one enrichment slot. Each goroutine writes only its own slot.
type documentJob struct {
	index       int
	url         string
	enrichments []Fields // merged in order, so a linked document refines its detail page
	fetched     int
	errs        []error
}

// wantsEnrichment reports whether a record's link is worth following: linked
// documents unless the source is HTML-only, and detail pages when the source
// publishes them.
func wantsEnrichment(cfg SourceConfig, href string) bool {
	if HasDocumentExtension(href) || isUploadPath(href) {
		return !cfg.HTMLOnly
	}
	return cfg.DetailPages
}

// enrichDocuments fetches linked documents in fixed-size batches and merges
// what they yield into records in place.
func (p *Pipeline) enrichDocuments(ctx context.Context, cfg SourceConfig, fetcher Fetcher, opts FetchOptions, records []models.TenderRecord, stats *SourceStats) {
	var jobs []*documentJob
	for i, r := range records {
		if wantsEnrichment(cfg, r.SourceURL) {
			jobs = append(jobs, &documentJob{index: i, url: r.SourceURL})
		}
	}
	if len(jobs) == 0 {
		return
	}

	batch := p.DocumentBatch
	if batch <= 0 {
		batch = DefaultDocumentBatch
	}

	for start := 0; start < len(jobs); start += batch {
		end := min(start+batch, len(jobs))

		var g errgroup.Group
		for _, job := range jobs[start:end] {
			g.Go(func() error {
				p.enrichOne(ctx, cfg, fetcher, opts, job)
				return nil
			})
		}
		_ = g.Wait()

		for _, job := range jobs[start:end] {
			stats.DocumentsFetched += job.fetched
			for _, err := range job.errs {
				stats.DocumentErrors++
				p.Logger.Warn().Err(err).Str("source", cfg.ID).Str("url", job.url).Msg("document enrichment failed")
			}
			enriched := false
			for _, f := range job.enrichments {
				if MergeEnrichment(&records[job.index], f) {
					enriched = true
				}
			}
			if enriched {
				stats.DocumentsEnriched++
			}
		}
	}
}

func (p *Pipeline) enrichOne(ctx context.Context, cfg SourceConfig, fetcher Fetcher, opts FetchOptions, job *documentJob) {
	defer func() {
		if r := recover(); r != nil {
			job.errs = append(job.errs, fmt.Errorf("panic extracting %s: %v", job.url, r))
			job.enrichments = nil
		}
	}()

	doc, err := fetcher.Fetch(ctx, job.url, opts)
	if err != nil {
		job.errs = append(job.errs, err)
		return
	}
	job.fetched++
	job.enrichments = append(job.enrichments, p.Documents.Enrich(doc, cfg.DateFormats))

	if cfg.HTMLOnly || DetectKind(doc.ContentType, doc.URL, doc.Body) != KindHTML {
		return
	}

	// A detail page: follow its tender document.
	for i, link := range collectAttachmentLinks(doc.URL, doc.Body) {
		if i >= maxAttachments {
			break
		}
		att, err := fetcher.Fetch(ctx, link, opts)
		if err != nil {
			job.errs = append(job.errs, err)
			continue
		}
		job.fetched++
		job.enrichments = append(job.enrichments, p.Documents.Enrich(att, cfg.DateFormats))
	}
}

// RunAll scrapes sources concurrently. Sources share nothing but immutable
// configuration. Any *IntegrityError rejects the whole batch; other
// per-source errors are logged and leave that source empty.
func (p *Pipeline) RunAll(ctx context.Context, sources []SourceConfig, limit int) ([]SourceResult, error) {
	results := make([]SourceResult, len(sources))

	parallelism := p.SourceParallelism
	if parallelism <= 0 {
		parallelism = DefaultSourceParallelism
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, cfg := range sources {
		g.Go(func() error {
			res, err := p.RunSource(gctx, cfg, limit)
			if err != nil {
				if IsIntegrityError(err) {
					return err
				}
				p.Logger.Error().Err(err).Str("source", cfg.ID).Msg("source failed")
				res = SourceResult{SourceID: cfg.ID, Source: cfg.ShortName}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch rejected: %w", err)
	}
	return results, nil
}

// IngestSource scrapes one source and stores the result through sink,
// recording an ingest run around it. The run is marked failed when the
// source is rejected or nothing could be saved.
func (p *Pipeline) IngestSource(ctx context.Context, sink Sink, cfg SourceConfig, limit int) (models.IngestRun, error) {
	run := models.IngestRun{SourceID: cfg.ID, Status: "running", StartedAt: time.Now()}

	runID, err := sink.StartRun(ctx, cfg.ID)
	if err != nil {
		p.Logger.Warn().Err(err).Str("source", cfg.ID).Msg("failed to create ingest run")
	}
	run.RunID = runID

	res, runErr := p.RunSource(ctx, cfg, limit)
	run.ItemsFound = len(res.Records)
	run.Errors = res.Stats.PageErrors + res.Stats.BlockErrors + res.Stats.DocumentErrors

	if runErr == nil {
		saved, err := sink.UpsertTenders(ctx, cfg.ID, res.Records)
		run.ItemsSaved = saved
		if err != nil {
			runErr = fmt.Errorf("failed to store tenders: %w", err)
		}
	}

	now := time.Now()
	run.CompletedAt = &now
	switch {
	case runErr != nil:
		run.Status = "failed"
		run.FailureMessage = runErr.Error()
	case run.ItemsFound > 0 && run.ItemsSaved == 0:
		run.Status = "failed"
	case res.Stats.ListingPages == 0:
		run.Status = "failed"
		run.FailureMessage = "no listing page could be fetched"
	default:
		run.Status = "completed"
	}

	if run.RunID != uuid.Nil {
		if err := sink.FinishRun(ctx, run); err != nil {
			p.Logger.Warn().Err(err).Str("run_id", run.RunID.String()).Msg("failed to update ingest run")
		}
	}
	return run, runErr
}

// IngestAll runs every source and stores each result. An integrity error
// rejects the whole batch before anything is written.
func (p *Pipeline) IngestAll(ctx context.Context, sink Sink, sources []SourceConfig, limit int) (map[string]models.IngestRun, error) {
	results, err := p.RunAll(ctx, sources, limit)
	if err != nil {
		return nil, err
	}
	return p.StoreResults(ctx, sink, results)
}

// StoreResults writes already assembled results, one ingest run per source.
func (p *Pipeline) StoreResults(ctx context.Context, sink Sink, results []SourceResult) (map[string]models.IngestRun, error) {
	runs := make(map[string]models.IngestRun, len(results))
	var errs []error
	for _, res := range results {
		run := models.IngestRun{SourceID: res.SourceID, StartedAt: time.Now()}
		if id, err := sink.StartRun(ctx, res.SourceID); err == nil {
			run.RunID = id
		}
		run.ItemsFound = len(res.Records)
		run.Errors = res.Stats.PageErrors + res.Stats.BlockErrors + res.Stats.DocumentErrors

		saved, err := sink.UpsertTenders(ctx, res.SourceID, res.Records)
		run.ItemsSaved = saved
		now := time.Now()
		run.CompletedAt = &now
		run.Status = "completed"
		if err != nil {
			run.Status = "failed"
			run.FailureMessage = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", res.SourceID, err))
		}
		if run.RunID != uuid.Nil {
			if err := sink.FinishRun(ctx, run); err != nil {
				p.Logger.Warn().Err(err).Str("source", res.SourceID).Msg("failed to update ingest run")
			}
		}
		runs[res.SourceID] = run
	}
	return runs, errors.Join(errs...)
}
