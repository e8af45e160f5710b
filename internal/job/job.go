// Package job provides the compile Job aggregate with its status state
// machine, as well as repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/video-compiler/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job was accepted but processing has not begun.
	StatusPending Status = "pending"
	// StatusProcessing indicates clips are being downloaded, normalized or encoded.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the compiled video was uploaded.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
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

// Stats summarizes a finished compile.
type Stats struct {
	ClipCount       int     `json:"clipCount" dynamodbav:"clipCount"`
	NormalizedClips int     `json:"normalizedClips" dynamodbav:"normalizedClips"`
	DurationSeconds float64 `json:"durationSeconds" dynamodbav:"durationSeconds"`
	Tier            string  `json:"tier" dynamodbav:"tier"`
	Attempts        int     `json:"attempts" dynamodbav:"attempts"`
	OutputBytes     int64   `json:"outputBytes" dynamodbav:"outputBytes"`
	ElapsedMs       int64   `json:"elapsedMs" dynamodbav:"elapsedMs"`
	PeakMemoryBytes uint64  `json:"peakMemoryBytes" dynamodbav:"peakMemoryBytes"`
}

// Job represents a video compile job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// UserID owns the job and scopes its output key.
	UserID string
	// Status is the current job state.
	Status Status
	// ClipIDs lists the source clips in sequence order.
	ClipIDs []string
	// MusicTrackID is the background track, empty when none.
	MusicTrackID string
	// MusicVolume is the requested music gain.
	MusicVolume float64
	// TransitionType is the requested transition policy.
	TransitionType string
	// TransitionSeconds is the requested transition duration.
	TransitionSeconds float64
	// AspectRatio is the requested output aspect ratio.
	AspectRatio string
	// OutputPath is the object key of the compiled video.
	OutputPath string
	// Error contains any error message if the job failed.
	Error string
	// Stats is set when the job completes.
	Stats *Stats
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial pending status.
func New(userID string) *Job {
	return NewWithID(id.Generate(), userID)
}

// NewWithID creates a new Job with the specified ID and initial pending status.
func NewWithID(jobID, userID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		UserID:    userID,
		Status:    StatusPending,
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
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from pending to processing.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete records the output and stats and transitions to completed.
func (j *Job) Complete(outputPath string, stats Stats) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.Stats = &stats
	return nil
}

// Fail transitions the job to failed with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var stats *Stats
	if j.Stats != nil {
		s := *j.Stats
		stats = &s
	}

	return &Job{
		ID:                j.ID,
		UserID:            j.UserID,
		Status:            j.Status,
		ClipIDs:           append([]string(nil), j.ClipIDs...),
		MusicTrackID:      j.MusicTrackID,
		MusicVolume:       j.MusicVolume,
		TransitionType:    j.TransitionType,
		TransitionSeconds: j.TransitionSeconds,
		AspectRatio:       j.AspectRatio,
		OutputPath:        j.OutputPath,
		Error:             j.Error,
		Stats:             stats,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
	}
}
