// Package job provides the Job aggregate for retiming runs, the repository
// port that stores it and the service that drives a run end to end.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/job/id"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/report"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to be processed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the run was interrupted.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// SectionStatus represents the status of a single render section.
type SectionStatus string

const (
	// SectionStatusPending indicates the section is waiting to be rendered.
	SectionStatusPending SectionStatus = "PENDING"
	// SectionStatusCompleted indicates the section was rendered.
	SectionStatusCompleted SectionStatus = "COMPLETED"
)

// Section is one contiguous range of segments rendered by a single engine
// invocation.
type Section struct {
	// Index is the position of this section in the output.
	Index int
	// Lo and Hi bound the segment indices [Lo, Hi) of the render range.
	Lo int
	Hi int
	// Status is the current processing status.
	Status SectionStatus
	// CompletedAt is when the section finished rendering.
	CompletedAt time.Time
}

// Job represents a retiming run.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Options are the validated run options.
	Options config.Options
	// Media holds the probed stream properties, defaults applied.
	Media media.Info
	// Sections tracks rendering of the timeline.
	Sections []Section
	// Summary is the duration projection computed after segmentation.
	Summary *report.Summary
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// Stage names the step that failed.
	Stage string
	// InputPath is the path to the source media.
	InputPath string
	// OutputPath is the path to the retimed output.
	OutputPath string
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// OutputURL is the S3 URL if PushToS3 was true.
	OutputURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Sections:  make([]Section, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
// Returns ErrInvalidTransition if the job is not in IN_QUEUE state.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED state, recording the failing stage
// and error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(stage, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Stage = stage
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetMedia records the stream properties the run works with.
func (j *Job) SetMedia(info media.Info) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Media = info
	j.UpdatedAt = time.Now()
}

// SetSummary records the duration projection.
func (j *Job) SetSummary(s report.Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Summary = &s
	j.UpdatedAt = time.Now()
}

// SetSections sets the sections for this job.
func (j *Job) SetSections(sections []Section) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Sections = sections
	j.UpdatedAt = time.Now()
}

// CompleteSection marks the section at index as rendered.
func (j *Job) CompleteSection(index int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index >= 0 && index < len(j.Sections) {
		j.Sections[index].Status = SectionStatusCompleted
		j.Sections[index].CompletedAt = time.Now()
		j.UpdatedAt = j.Sections[index].CompletedAt
	}
}

// UpdateProgress sets the progress percentage (0-100).
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output path and optional S3 URL.
func (j *Job) SetOutput(outputPath, outputURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.OutputURL = outputURL
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	sections := make([]Section, len(j.Sections))
	copy(sections, j.Sections)

	var summary *report.Summary
	if j.Summary != nil {
		s := *j.Summary
		summary = &s
	}

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Options:     j.Options,
		Media:       j.Media,
		Sections:    sections,
		Summary:     summary,
		Progress:    j.Progress,
		Error:       j.Error,
		Stage:       j.Stage,
		InputPath:   j.InputPath,
		OutputPath:  j.OutputPath,
		PushToS3:    j.PushToS3,
		OutputURL:   j.OutputURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
