// Package server provides the HTTP surface of the retiming service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/report"
)

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// InputPath is the source media file, as seen by the server.
	InputPath string `json:"input_path" validate:"required"`
	// OutputPath is where the result is written. Empty derives it from InputPath.
	OutputPath string `json:"output_path,omitempty"`
	// Options override individual run options. Omitted fields keep their defaults.
	Options config.Options `json:"options"`
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// OutputPath is where the result will be written.
	OutputPath string `json:"output_path"`
}

// SectionResponse describes one render section of a job.
type SectionResponse struct {
	Index  int    `json:"index"`
	Lo     int    `json:"lo"`
	Hi     int    `json:"hi"`
	Status string `json:"status"`
}

// MediaResponse carries the stream properties a job ran with.
type MediaResponse struct {
	FrameRate  float64 `json:"frame_rate"`
	SampleRate int     `json:"sample_rate"`
	BitRate    int     `json:"bit_rate"`
	Duration   float64 `json:"duration,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Stage names the step that failed.
	Stage string `json:"stage,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// InputPath is the source media file.
	InputPath string `json:"input_path"`
	// OutputPath is the retimed output (once completed).
	OutputPath string `json:"output_path,omitempty"`
	// OutputURL is the S3 URL of the output (if push_to_s3=true and completed).
	OutputURL string `json:"output_url,omitempty"`
	// Options are the options the job runs with.
	Options config.Options `json:"options"`
	// Media is set once the source has been probed.
	Media *MediaResponse `json:"media,omitempty"`
	// Summary is the duration projection, set after segmentation.
	Summary *report.Summary `json:"summary,omitempty"`
	// Sections tracks render progress.
	Sections []SectionResponse `json:"sections,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is set once the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
