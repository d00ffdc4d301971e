package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"podforge/internal/api"
	"podforge/internal/engine"
	"podforge/internal/logging"
	"podforge/internal/queue"
)

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := req.Submission()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id, err := s.jobs.Submit(r.Context(), sub)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: id, Status: string(queue.StatusPending)})
}

func (s *apiServer) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Jobs) == 0 {
		writeError(w, http.StatusBadRequest, api.CodeValidation, "jobs must contain at least one submission")
		return
	}
	subs := make([]engine.Submission, 0, len(req.Jobs))
	for i, item := range req.Jobs {
		sub, err := item.Submission()
		if err != nil {
			code, status := api.CodeForError(err)
			writeError(w, status, code, fmt.Sprintf("jobs[%d]: %v", i, err))
			return
		}
		subs = append(subs, sub)
	}
	ids, err := s.jobs.SubmitBatch(r.Context(), subs)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.BatchResponse{JobIDs: ids})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var status queue.Status
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		parsed, ok := queue.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, api.CodeValidation, fmt.Sprintf("unknown status %q", raw))
			return
		}
		status = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, api.CodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	jobs, total := s.jobs.List(status, limit)
	writeJSON(w, http.StatusOK, api.JobListResponse{Total: total, Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, api.CodeNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.jobs.Cancel(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, api.CodeInvalidState, fmt.Sprintf("job %s is not pending", id))
		return
	}
	writeJSON(w, http.StatusOK, api.ActionResponse{JobID: id, Status: string(queue.StatusCancelled)})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.jobs.Retry(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, api.CodeInvalidState, fmt.Sprintf("job %s is not failed", id))
		return
	}
	writeJSON(w, http.StatusOK, api.ActionResponse{JobID: id, Status: string(queue.StatusPending)})
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req api.CleanupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OlderThanMs < 0 {
		writeError(w, http.StatusBadRequest, api.CodeValidation, "olderThanMs must not be negative")
		return
	}
	cleared := s.jobs.ClearOlderThan(time.Duration(req.OlderThanMs) * time.Millisecond)
	writeJSON(w, http.StatusOK, api.CleanupResponse{JobsCleared: cleared})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.jobs.Health(r.Context())
	resp := api.HealthResponse{
		Status:        "healthy",
		Uptime:        h.Uptime.Round(time.Second).String(),
		UptimeSeconds: int64(h.Uptime / time.Second),
		Running:       h.Running,
		Detail:        h.Detail,
		Stages:        h.Stages,
	}
	code := http.StatusOK
	if !h.Healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Metrics())
}

// writeFailure maps classified errors to the envelope. Unclassified errors
// are logged and reported as internal.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code, status := api.CodeForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("api request failed",
			logging.String(logging.FieldEventType, "api_error"),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeError(w, status, code, err.Error())
}

// decodeBody reads a JSON request body. An empty body decodes as the zero
// value so bodyless POSTs are accepted where every field is optional.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, api.CodeValidation, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
