package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/job"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	root               *MediaRoot
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMediaRoot confines request input and output paths to root. Without
// it any path the process can reach is accepted.
func WithMediaRoot(root *MediaRoot) HandlerOption {
	return func(h *Handlers) {
		h.root = root
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req := CreateJobRequest{Options: config.DefaultOptions()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		// option values such as speed are checked while decoding
		if errors.Is(err, apperr.ErrConfig) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	inputPath, outputPath, err := h.confine(req.InputPath, req.OutputPath)
	if err != nil {
		h.logger.Warn("rejected request path",
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrOutsideMediaRoot) {
			writeError(w, http.StatusForbidden, err.Error(), "PATH_OUTSIDE_ROOT")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_INPUT")
		return
	}

	input := job.RetimeInput{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Options:    req.Options,
		PushToS3:   req.PushToS3,
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrConfig):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, apperr.ErrInput):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_INPUT")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	// The run outlives the request, so it must not inherit its cancellation.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, processErr := h.service.ProcessJob(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("input", createdJob.InputPath),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:         createdJob.ID,
		Status:     string(createdJob.Status),
		OutputPath: createdJob.OutputPath,
	})
}

func (h *Handlers) confine(input, output string) (string, string, error) {
	if h.root == nil {
		return input, output, nil
	}
	in, err := h.root.Resolve(input)
	if err != nil {
		return "", "", err
	}
	out, err := h.root.Resolve(output)
	if err != nil {
		return "", "", err
	}
	return in, out, nil
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests. The optional status and limit query
// parameters narrow the listing.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	var filter job.Filter
	query := r.URL.Query()
	if raw := query.Get("status"); raw != "" {
		status, err := job.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_STATUS")
			return
		}
		filter.Status = status
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteJobOutput handles DELETE /jobs/{id}/output requests.
func (h *Handlers) DeleteJobOutput(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteOutput(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobActive) {
			writeError(w, http.StatusConflict, err.Error(), "JOB_ACTIVE")
			return
		}
		h.writeLookupError(w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Stage:     j.Stage,
		Error:     j.Error,
		InputPath: j.InputPath,
		Options:   j.Options,
		Summary:   j.Summary,
		CreatedAt: j.CreatedAt,
	}

	if j.Status == job.StatusCompleted {
		resp.OutputPath = j.OutputPath
		resp.OutputURL = j.OutputURL
	}
	if j.Media.FrameRate > 0 {
		resp.Media = &MediaResponse{
			FrameRate:  j.Media.FrameRate,
			SampleRate: j.Media.SampleRate,
			BitRate:    j.Media.BitRate,
			Duration:   j.Media.Duration,
		}
	}
	for _, s := range j.Sections {
		resp.Sections = append(resp.Sections, SectionResponse{
			Index:  s.Index,
			Lo:     s.Lo,
			Hi:     s.Hi,
			Status: string(s.Status),
		})
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
