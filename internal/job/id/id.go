// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<timestamp>-<uuid>
// Example: job-1701432000-3f6c1f0e-9a51-4a4e-8f1d-2b7f0c7e9d11
func Generate() string {
	return fmt.Sprintf("job-%d-%s", time.Now().Unix(), uuid.NewString())
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	var ts int64
	var rest string
	if n, _ := fmt.Sscanf(s, "job-%d-%s", &ts, &rest); n != 2 {
		return false
	}
	return uuid.Validate(rest) == nil
}
