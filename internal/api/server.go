package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/output"
)

// Store is the persistence the server needs. *db.Store implements it.
type Store interface {
	ingest.Sink
	ListTenders(ctx context.Context, q db.TenderQuery) ([]models.TenderRecord, error)
	ListRuns(ctx context.Context, sourceID string, limit int) ([]models.IngestRun, error)
}

type Server struct {
	Registry *ingest.Registry
	Pipeline *ingest.Pipeline
	Store    Store // nil when no database is configured
	Echo     *echo.Echo
	Logger   zerolog.Logger

	now func() time.Time

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
	jobs       map[string]*backgroundJob
}

// Options carries the optional server settings.
type Options struct {
	AdminSecret string
	CORSOrigins []string
}

func NewServer(reg *ingest.Registry, pipeline *ingest.Pipeline, store Store, logger zerolog.Logger, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	for _, o := range opts.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Registry: reg,
		Pipeline: pipeline,
		Store:    store,
		Echo:     e,
		Logger:   logger,
		now:      time.Now,
		jobs:     make(map[string]*backgroundJob),
	}

	guard := auth.NewGuard(opts.AdminSecret, logger)
	s.routes(guard)
	return s
}

func (s *Server) routes(guard *auth.Guard) {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/sources", s.handleGetSources)
	api.GET("/tenders", s.handleListStoredTenders)

	// Admin routes: live scraping and ingestion
	admin := api.Group("")
	admin.Use(guard.Middleware)
	admin.GET("/tenders/:id", s.handleScrapeSource)
	admin.POST("/ingest/source/:id", s.handleIngestSourceByID)
	admin.POST("/ingest/all", s.handleIngestAll)
	admin.GET("/runs", s.handleListRuns)
	admin.GET("/admin/job/:id", s.handleJobStatus)
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

// Shutdown stops the listener and cancels a running background job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type sourceView struct {
	ID           string `json:"id"`
	ShortName    string `json:"short_name"`
	OrganOfState string `json:"organ_of_state"`
	Province     string `json:"province"`
	ListingStyle string `json:"listing_style"`
	Engine       string `json:"engine"`
	HTMLOnly     bool   `json:"html_only"`
}

func (s *Server) handleGetSources(c echo.Context) error {
	ids := s.Registry.IDs()
	out := make([]sourceView, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.Registry.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, sourceView{
			ID:           cfg.ID,
			ShortName:    cfg.ShortName,
			OrganOfState: cfg.OrganOfState,
			Province:     cfg.Province,
			ListingStyle: cfg.Style(),
			Engine:       firstNonEmpty(cfg.Fetch.Engine, ingest.EngineHTTP),
			HTMLOnly:     cfg.HTMLOnly,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// handleScrapeSource runs one source live and returns its records without
// storing them.
func (s *Server) handleScrapeSource(c echo.Context) error {
	cfg, err := s.Registry.Lookup(c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	format := strings.ToLower(c.QueryParam("format"))
	if format != "" && format != output.FormatCSV && format != output.FormatJSON {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported format %q", format)})
	}

	res, err := s.Pipeline.RunSource(c.Request().Context(), cfg, limit)
	if err != nil {
		return s.errorResponse(c, err)
	}
	if statuses := splitList(c.QueryParam("status")); len(statuses) > 0 {
		res.Records = ingest.FilterByStatus(res.Records, s.now(), statuses...)
	}

	if format == output.FormatCSV {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", cfg.ID+".csv"))
		c.Response().WriteHeader(http.StatusOK)
		return output.WriteCSV(c.Response(), res.Records)
	}
	if res.Records == nil {
		res.Records = []models.TenderRecord{}
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListStoredTenders(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No database configured"})
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	records, err := s.Store.ListTenders(c.Request().Context(), db.TenderQuery{
		SourceID: c.QueryParam("source"),
		Statuses: splitList(c.QueryParam("status")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if records == nil {
		records = []models.TenderRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tenders": records,
		"count":   len(records),
	})
}

func (s *Server) handleIngestSourceByID(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No database configured"})
	}
	cfg, err := s.Registry.Lookup(c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	run, err := s.Pipeline.IngestSource(c.Request().Context(), s.Store, cfg, limit)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%s ingestion complete", cfg.ID),
		"run":     run,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No database configured"})
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), c.QueryParam("source"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.IngestRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// errorResponse maps pipeline errors onto status codes.
func (s *Server) errorResponse(c echo.Context, err error) error {
	var integrity *ingest.IntegrityError
	switch {
	case errors.Is(err, ingest.ErrUnknownSource):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &integrity):
		s.Logger.Error().Err(err).Str("source", integrity.SourceID).Msg("batch rejected")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":  "source integrity violation",
			"detail": err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
