package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/jumpcutter/internal/apperr"
)

// ErrJobNotFound is returned when no run is stored under an ID.
var ErrJobNotFound = errors.New("job not found")

// ErrUnknownStatus is returned by ParseStatus for names outside the lifecycle.
var ErrUnknownStatus = fmt.Errorf("%w: unknown job status", apperr.ErrInput)

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Filter narrows a listing. The zero Filter matches every run.
type Filter struct {
	// Status keeps only runs in that state when set.
	Status Status
	// Limit caps the number of runs returned; zero means no cap.
	Limit int
}

// Match reports whether j satisfies the filter's status.
func (f Filter) Match(j *Job) bool {
	return f.Status == "" || j.Status == f.Status
}

// Repository stores retime runs. Implementations hand out copies: a run
// read back is only persisted again through Save.
type Repository interface {
	// Save stores job, replacing the earlier state of the same run.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for an unknown ID.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the runs matching filter, most recently created first.
	List(ctx context.Context, filter Filter) ([]*Job, error)
}
