// Package server provides the local HTTP harness for the video compiler.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/video-compiler/internal/job"
)

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// UserID owns the job.
	UserID string `json:"userId"`
	// Status is the current job status.
	Status string `json:"status"`
	// ClipIDs lists the compiled clips in sequence order.
	ClipIDs []string `json:"clipIds,omitempty"`
	// OutputPath is the object key of the compiled video.
	OutputPath string `json:"outputPath,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Stats summarizes a completed compile.
	Stats *job.Stats `json:"stats,omitempty"`
	// CreatedAt is when the job was accepted.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the job last changed.
	UpdatedAt time.Time `json:"updatedAt"`
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

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		UserID:     j.UserID,
		Status:     string(j.Status),
		ClipIDs:    j.ClipIDs,
		OutputPath: j.OutputPath,
		Error:      j.Error,
		Stats:      j.Stats,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}
