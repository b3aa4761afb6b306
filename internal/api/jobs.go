package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// allSourcesTimeout bounds a background ingest of every source.
const allSourcesTimeout = 30 * time.Minute

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

// handleIngestAll starts a background ingest of every registered source.
// Only one runs at a time.
func (s *Server) handleIngestAll(c echo.Context) error {
	if s.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No database configured"})
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "An ingest job is already running",
			"job_id": job.ID,
		})
	}

	// Detach from the request so the job outlives it.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), allSourcesTimeout)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: s.now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobs[jobID] = job
	s.jobMu.Unlock()

	sources := s.Registry.Sources
	go func() {
		defer jobCancel()
		log := s.Logger.With().Str("job_id", jobID).Logger()

		runs, err := s.Pipeline.IngestAll(jobCtx, s.Store, sources, limit)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = s.now()
		job.Result = runs
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Error().Err(err).Msg("ingest job failed")
			return
		}
		job.Status = "completed"
		log.Info().Int("sources", len(runs)).Msg("ingest job completed")
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Ingest job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, ok := s.jobs[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Job not found"})
	}
	// Copy under the lock; the worker goroutine mutates job.
	snapshot := *job
	return c.JSON(http.StatusOK, snapshot)
}
