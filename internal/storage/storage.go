// Package storage provides per-run scratch workspaces and optional
// publishing of finished outputs to S3.
package storage

import (
	"context"
)

// Storage defines the interface for scratch space and output delivery.
type Storage interface {
	// NewWorkspace creates a private scratch directory for one run.
	// The caller must Close it to remove every file written inside.
	NewWorkspace(ctx context.Context, name string) (*Workspace, error)

	// Publish uploads the file at localPath under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, localPath, key string) (url string, err error)
}
