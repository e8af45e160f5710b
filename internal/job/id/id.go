// Package id provides unique identifier generation for jobs.
package id

import (
	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-3f0c1a9e-6d2b-4c57-9a4e-0b8f1d2c3e4f
func Generate() string {
	return "job-" + uuid.NewString()
}
