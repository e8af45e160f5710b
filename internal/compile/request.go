// Package compile turns a compile request into an uploaded video. It owns
// the per-job scratch directory and the job record lifecycle.
package compile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/maauso/video-compiler/internal/job"
)

// DefaultMusicVolume applies when a music track is given without a volume.
const DefaultMusicVolume = 0.3

// Static errors for request handling.
var (
	// ErrInvalidRequest is returned when the request body cannot be decoded
	// or fails validation.
	ErrInvalidRequest = errors.New("compile: invalid request")
	// ErrNoUsableClips is returned when no clip carries a source path.
	ErrNoUsableClips = errors.New("compile: no clips with a source path")
)

// Request is the compile request body.
type Request struct {
	UserID   string    `json:"userId" validate:"required"`
	JobID    string    `json:"jobId,omitempty"`
	Clips    []ClipRef `json:"clips" validate:"required,min=1,dive"`
	Music    *MusicRef `json:"music,omitempty"`
	Settings Settings  `json:"settings"`
}

// ClipRef points at a clip in the clips bucket.
type ClipRef struct {
	ID         string `json:"id"`
	SourcePath string `json:"sourcePath"`
	Order      int    `json:"order"`
}

// MusicRef points at a track in the music bucket.
type MusicRef struct {
	ID         string   `json:"id"`
	SourcePath string   `json:"sourcePath"`
	Volume     *float64 `json:"volume,omitempty"`
}

// Settings controls transitions and the output frame.
type Settings struct {
	TransitionType            string   `json:"transitionType"`
	TransitionDurationSeconds *float64 `json:"transitionDurationSeconds,omitempty"`
	OutputAspectRatio         string   `json:"outputAspectRatio"`
}

// volume returns the requested music volume or the default.
func (m *MusicRef) volume() float64 {
	if m.Volume == nil {
		return DefaultMusicVolume
	}
	return *m.Volume
}

// usableClips returns the clips that have a source path, stably sorted by
// order so ties keep their request position.
func (r Request) usableClips() []ClipRef {
	out := make([]ClipRef, 0, len(r.Clips))
	for _, c := range r.Clips {
		if c.SourcePath != "" {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// Response is returned by Service.Compile.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// ResponseBody carries either a message or an error.
type ResponseBody struct {
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	JobID      string     `json:"jobId,omitempty"`
	OutputPath string     `json:"outputPath,omitempty"`
	Stats      *job.Stats `json:"stats,omitempty"`
}

// DecodeEvent extracts a Request from a raw invocation payload. The payload
// may be an API Gateway event whose body is a JSON string, an event whose
// body is an object, or the bare request.
func DecodeEvent(raw []byte) (Request, error) {
	var envelope struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	payload := raw
	body := bytes.TrimSpace(envelope.Body)
	if len(body) > 0 && !bytes.Equal(body, []byte("null")) {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			payload = []byte(s)
		} else {
			payload = body
		}
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return req, nil
}
