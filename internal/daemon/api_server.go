package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"handout/internal/api"
	"handout/internal/logging"
	"handout/internal/preflight"
	"handout/internal/queue"
	"handout/internal/services"
)

const maxSubmitBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "api", "api bind address is empty", nil)
	}
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		server: &http.Server{
			Handler:           d.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// serve blocks until ctx is done. WriteTimeout stays unset and the events
// route clears its read deadline so SSE streams outlive ReadTimeout.
func (s *apiServer) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_shutdown_incomplete"),
		)
		_ = s.server.Close()
	}
	return nil
}

// Handler returns the HTTP API. Every route except /api/health requires a
// bearer token when a token secret is configured.
func (d *Daemon) Handler() http.Handler {
	h := &handlers{daemon: d, logger: logging.NewComponentLogger(d.logger, "api-server")}
	auth := tokenAuth(d.cfg.API.TokenSecret, h)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.Handle("GET /api/status", auth(h.status))
	mux.Handle("GET /api/jobs", auth(h.listJobs))
	mux.Handle("POST /api/jobs", auth(h.submitJob))
	mux.Handle("DELETE /api/jobs", auth(h.clearJobs))
	mux.Handle("GET /api/jobs/{id}", auth(h.getJob))
	mux.Handle("POST /api/jobs/{id}/cancel", auth(h.cancelJob))
	if d.events != nil {
		mux.Handle("GET /api/events", auth(h.stream(d.events.Handler())))
	}
	return mux
}

type handlers struct {
	daemon *Daemon
	logger *slog.Logger
}

// stream lifts the server's read and write deadlines for a long-lived
// response. Without this, ReadTimeout cancels the request context of an
// idle SSE subscriber.
func (h *handlers) stream(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("event stream deadline not cleared",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stream_deadline_failed"),
			)
		}
		_ = rc.SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok", Database: "ok"}
	health, err := h.daemon.DatabaseHealth(r.Context())
	switch {
	case err != nil:
		resp.Status, resp.Database = "degraded", err.Error()
	case health.Error != "":
		resp.Status, resp.Database = "degraded", health.Error
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	status := h.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		JobsDBPath:   status.JobsDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(h.daemon.cfg)),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.Format(time.RFC3339)
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			statuses = append(statuses, status)
		}
	}
	jobs, err := h.daemon.ListJobs(r.Context(), statuses)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.SortJobsNewestFirst(api.FromJobs(jobs))})
}

func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	job, err := h.daemon.Submit(r.Context(), req)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
}

func (h *handlers) clearJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("finished") != "true" {
		h.writeError(w, http.StatusBadRequest, "only finished=true is supported")
		return
	}
	removed, err := h.daemon.ClearFinished(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ClearResponse{Removed: removed})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.daemon.Job(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if job == nil {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.daemon.Cancel(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CancelResponse{ID: id, Status: string(status)})
}

// writeFailure maps classified errors onto HTTP status codes.
func (h *handlers) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		details := services.ErrorDetails(err)
		h.logger.Error("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String("error_kind", details.Kind),
			logging.String(logging.FieldErrorHint, details.Hint),
		)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to encode response",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_encode_failed"),
		)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: message})
}
