package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
	"RedCardNews/internal/usecase"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 200
)

// Controller is the scheduler control surface exposed over HTTP.
type Controller interface {
	StartJob(name string) error
	StopJob(name string) (bool, error)
	StopAll()
	Status() []ports.ScheduledEntry
	Trigger(ctx context.Context, name string) (usecase.RunReport, error)
	TriggerAsync(name string) error
}

// Articles covers the ledger listing, single rewrites and manual publication.
type Articles interface {
	RewriteArticle(ctx context.Context, originalID string) (domain.RewrittenArticle, error)
	SetPublished(ctx context.Context, rewriteID string, published bool) error
	ListJobs(ctx context.Context, kind domain.JobKind, limit int) ([]domain.Job, error)
}

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	control  Controller
	articles Articles
	health   Pinger
}

// NewRouter builds the control API. health may be nil.
func NewRouter(control Controller, articles Articles, health Pinger, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	srv := &server{log: log, control: control, articles: articles, health: health}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/scheduler", srv.handleSchedulerStatus)
		r.Post("/scheduler", srv.handleSchedulerAction)
		r.Post("/run-pipeline", srv.handleRunPipeline)
		r.Get("/jobs", srv.handleJobs)
		r.Post("/articles/{id}/rewrite", srv.handleRewrite)
		r.Post("/articles/{id}/publish", srv.handlePublication(true))
		r.Post("/articles/{id}/unpublish", srv.handlePublication(false))
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type scheduleEntry struct {
	Name       string     `json:"name"`
	Expression string     `json:"expression"`
	Running    bool       `json:"running"`
	Next       *time.Time `json:"next,omitempty"`
}

type jobView struct {
	ID          string           `json:"id"`
	Kind        domain.JobKind   `json:"kind"`
	Status      domain.JobStatus `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Result      domain.JobResult `json:"result"`
	Payload     map[string]any   `json:"payload,omitempty"`
}

type actionRequest struct {
	Action string `json:"action"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toScheduleEntries(s.control.Status())})
}

// handleSchedulerAction accepts start-<job>, stop-<job>, stop-all and
// trigger-<job>. Triggers run in the background.
func (s *server) handleSchedulerAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "stop-all" {
		s.control.StopAll()
		s.log.Info("scheduler action", "action", action)
		writeJSON(w, http.StatusOK, map[string]any{"action": action, "jobs": toScheduleEntries(s.control.Status())})
		return
	}

	verb, name, ok := strings.Cut(action, "-")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action: " + action})
		return
	}

	var err error
	status := http.StatusOK
	switch verb {
	case "start":
		err = s.control.StartJob(name)
	case "stop":
		_, err = s.control.StopJob(name)
	case "trigger":
		err = s.control.TriggerAsync(name)
		status = http.StatusAccepted
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action: " + action})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("scheduler action", "action", action)
	writeJSON(w, status, map[string]any{"action": action, "jobs": toScheduleEntries(s.control.Status())})
}

// handleRunPipeline runs the full pipeline and waits for its report. A
// client that goes away does not abort the run.
func (s *server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	report, err := s.control.Trigger(context.WithoutCancel(r.Context()), usecase.JobPipeline)
	if err != nil {
		var perr *usecase.PipelineError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": err.Error(),
				"stage": perr.Stage,
				"jobs":  toJobViews(report.Jobs),
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":      toJobViews(report.Jobs),
		"published": len(report.Published),
	})
}

func (s *server) handleJobs(w http.ResponseWriter, r *http.Request) {
	kind := domain.JobKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	switch kind {
	case "", domain.JobKindScrape, domain.JobKindTransform:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown job kind: " + string(kind)})
		return
	}
	limit := clampInt(r.URL.Query().Get("limit"), defaultJobsLimit, maxJobsLimit)

	jobs, err := s.articles.ListJobs(r.Context(), kind, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobViews(jobs)})
}

// handleRewrite rewrites one original now. id is the original article ID.
func (s *server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rewritten, err := s.articles.RewriteArticle(context.WithoutCancel(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("article rewritten on demand", "original_id", id, "rewrite_id", rewritten.ID)
	writeJSON(w, http.StatusCreated, rewritten)
}

func (s *server) handlePublication(published bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.articles.SetPublished(r.Context(), id, published); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "published": published})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrUnknownJob):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrJobRunning), errors.Is(err, usecase.ErrAlreadyRewritten):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func toScheduleEntries(entries []ports.ScheduledEntry) []scheduleEntry {
	out := make([]scheduleEntry, 0, len(entries))
	for _, e := range entries {
		view := scheduleEntry{Name: e.Name, Expression: e.Expression, Running: e.Running}
		if !e.Next.IsZero() {
			next := e.Next
			view.Next = &next
		}
		out = append(out, view)
	}
	return out
}

func toJobViews(jobs []domain.Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		view := jobView{
			ID:        j.ID,
			Kind:      j.Kind,
			Status:    j.Status,
			StartedAt: j.StartedAt,
			Result:    j.Result,
			Payload:   j.Payload,
		}
		if j.Status.Finished() && !j.CompletedAt.IsZero() {
			completed := j.CompletedAt
			view.CompletedAt = &completed
		}
		out = append(out, view)
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
