package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/check"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/jobs"
	"github.com/optimode/emailguard/internal/parse"
)

// checkFlags are the optional checks a request can turn on.
type checkFlags struct {
	SMTPCheck       bool `json:"smtpCheck"`
	AuthCheck       bool `json:"authCheck"`
	ReputationCheck bool `json:"reputationCheck"`
}

func (f checkFlags) options() emailguard.CheckOptions {
	return emailguard.CheckOptions{SMTP: f.SMTPCheck, Auth: f.AuthCheck, Reputation: f.ReputationCheck}
}

type validateRequest struct {
	Email string `json:"email" validate:"required,maxbytes=254"`
	checkFlags
}

type bulkRequest struct {
	Emails []string `json:"emails" validate:"required,min=1"`
	checkFlags
}

type bulkMetadata struct {
	Total             int   `json:"total"`
	Completed         int   `json:"completed"`
	DuplicatesRemoved int   `json:"duplicatesRemoved"`
	InvalidRemoved    int   `json:"invalidRemoved"`
	TimedOut          bool  `json:"timedOut"`
	ProcessingTimeMs  int64 `json:"processingTimeMs"`
}

type bulkResponse struct {
	Results  []emailguard.Result `json:"results"`
	Summary  emailguard.Summary  `json:"summary"`
	Metadata bulkMetadata        `json:"metadata"`
}

type jobCreated struct {
	JobID             string `json:"jobId"`
	StatusURL         string `json:"statusUrl"`
	Total             int    `json:"total"`
	DuplicatesRemoved int    `json:"duplicatesRemoved"`
	InvalidRemoved    int    `json:"invalidRemoved"`
}

type jobView struct {
	jobs.Job
	Summary          emailguard.Summary `json:"summary"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

type progressView struct {
	jobs.Progress
	EstimatedTimeRemainingMs int64 `json:"estimatedTimeRemainingMs"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Uptime    float64                `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Endpoints []string               `json:"endpoints"`
	Cache     emailguard.CacheStats  `json:"cache"`
	Breakers  []circuitbreaker.Stats `json:"breakers,omitempty"`
	Jobs      map[jobs.Status]int    `json:"jobs"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if msg, ok := s.decode(w, r, maxSingleBody, &req); !ok {
		writeError(w, http.StatusBadRequest, CodeValidation, msg)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "email is required")
		return
	}

	res, err := s.validateOne(r.Context(), email, req.options())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// validateOne runs one validation, sharing it with concurrent callers for
// the same normalized address.
func (s *Server) validateOne(ctx context.Context, email string, o emailguard.CheckOptions) (emailguard.Result, error) {
	return s.dedup.Do(ctx, o.Key(email), func(ctx context.Context) (emailguard.Result, error) {
		start := time.Now()
		res, err := s.opts.Validator.Validate(ctx, email, o)
		if err == nil && s.opts.Metrics != nil {
			s.opts.Metrics.ObserveValidation(res, time.Since(start))
		}
		return res, err
	})
}

func (s *Server) jobValidator(o emailguard.CheckOptions) jobs.ValidateFunc {
	return func(ctx context.Context, email string) (emailguard.Result, error) {
		return s.validateOne(ctx, email, o)
	}
}

// prepared is a bulk request after duplicate and syntax filtering.
type prepared struct {
	emails     []string
	received   int
	duplicates int
	invalid    int
}

func prepareBulk(raw []string) prepared {
	cleaned, dups := parse.CleanList(raw)
	p := prepared{
		emails:     make([]string, 0, len(cleaned)),
		received:   len(raw),
		duplicates: dups,
		invalid:    len(raw) - len(cleaned) - dups,
	}
	syntax := check.NewSyntaxChecker()
	for _, e := range cleaned {
		if len(e) > check.MaxEmailLength || !syntax.Check(context.Background(), parse.NewEmail(e)).Valid {
			p.invalid++
			continue
		}
		p.emails = append(p.emails, e)
	}
	return p
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if msg, ok := s.decode(w, r, maxBulkBody, &req); !ok {
		writeError(w, http.StatusBadRequest, CodeValidation, msg)
		return
	}
	if len(req.Emails) > s.opts.MaxBulkEmails {
		writeError(w, http.StatusBadRequest, CodeValidation,
			fmt.Sprintf("emails must contain at most %d items", s.opts.MaxBulkEmails))
		return
	}

	p := prepareBulk(req.Emails)
	o := req.options()

	switch {
	case len(p.emails) > s.opts.JobThreshold:
		s.createJob(w, r, p, o)
	case len(p.emails) > s.opts.StreamThreshold && wantsNDJSON(r):
		s.streamBulk(w, r, p, o)
	default:
		s.syncBulk(w, r, p, o)
	}
}

func (s *Server) syncBulk(w http.ResponseWriter, r *http.Request, p prepared, o emailguard.CheckOptions) {
	res, err := s.opts.Validator.ValidateBulk(r.Context(), p.emails, s.bulkOptions(o))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResponse{
		Results:  res.Results,
		Summary:  emailguard.Summarize(res.Results),
		Metadata: p.metadata(res),
	})
}

func (s *Server) bulkOptions(o emailguard.CheckOptions) emailguard.BulkOptions {
	bo := emailguard.BulkOptions{
		BatchSize: s.opts.BulkBatchSize,
		Timeout:   s.opts.BulkTimeout,
		Check:     o,
	}
	if s.opts.Metrics != nil {
		bo.OnBatch = s.opts.Metrics.ObserveResults
	}
	return bo
}

func (p prepared) metadata(res emailguard.BulkResult) bulkMetadata {
	return bulkMetadata{
		Total:             p.received,
		Completed:         res.Metadata.Completed,
		DuplicatesRemoved: p.duplicates,
		InvalidRemoved:    p.invalid,
		TimedOut:          res.Metadata.TimedOut,
		ProcessingTimeMs:  res.Metadata.ProcessingTime.Milliseconds(),
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request, p prepared, o emailguard.CheckOptions) {
	id, err := s.jobs.CreateFunc(p.emails, s.jobValidator(o))
	if err != nil {
		if errors.Is(err, jobs.ErrShutdown) {
			writeError(w, http.StatusServiceUnavailable, CodeInternal, "server is shutting down")
			return
		}
		s.fail(w, r, err)
		return
	}

	prefix := ""
	if strings.HasPrefix(r.URL.Path, "/api/") {
		prefix = "/api"
	}
	writeJSON(w, http.StatusAccepted, jobCreated{
		JobID:             id,
		StatusURL:         prefix + "/validate-bulk/jobs/" + id,
		Total:             len(p.emails),
		DuplicatesRemoved: p.duplicates,
		InvalidRemoved:    p.invalid,
	})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if r.URL.Query().Get("progress") == "true" {
		p, err := s.jobs.Progress(id)
		if err != nil {
			s.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, progressView{Progress: p, EstimatedTimeRemainingMs: p.ETA.Milliseconds()})
		return
	}

	j, err := s.jobs.Get(id)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView{
		Job:              j,
		Summary:          emailguard.Summarize(j.Results),
		ProcessingTimeMs: j.ProcessingTime.Milliseconds(),
	})
}

// handleJobDelete cancels a running job, or deletes a finished one.
func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := s.jobs.Get(id)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	if !j.Status.Terminal() {
		err := s.jobs.Cancel(id)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": jobs.StatusCancelled})
			return
		}
		if !errors.Is(err, jobs.ErrNotCancellable) {
			s.jobError(w, r, err)
			return
		}
		// Finished in the meantime, or still pending and answered with a
		// conflict by Delete.
	}
	if err := s.jobs.Delete(id); err != nil {
		s.jobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) jobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobActive), errors.Is(err, jobs.ErrNotCancellable):
		writeError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := s.opts.Now()
	resp := healthResponse{
		Status:    "ok",
		Version:   s.opts.Version,
		Uptime:    now.Sub(s.started).Seconds(),
		Timestamp: now.UTC(),
		Endpoints: endpoints,
		Cache:     s.opts.Validator.CacheStats(),
		Jobs:      s.jobs.Counts(),
	}
	if s.opts.Breakers != nil {
		resp.Breakers = s.opts.Breakers.Snapshot()
		for _, b := range resp.Breakers {
			if b.State == circuitbreaker.StateOpen {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail reports an unexpected error. A caller that went away gets nothing.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		s.opts.Logger.DebugContext(r.Context(), "client went away", slog.Any("error", err))
		return
	}
	s.opts.Logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

func wantsNDJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/x-ndjson")
}
