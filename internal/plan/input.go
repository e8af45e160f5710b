package plan

import (
	"errors"
	"math"

	"github.com/maauso/video-compiler/internal/media"
)

// ErrNoClips is returned when an input is built without any clip.
var ErrNoClips = errors.New("plan: at least one clip is required")

// Clip is one local video file in sequence order.
type Clip struct {
	Path     string
	Index    int
	Duration float64
	// Normalized reports whether the file was already letterboxed to the
	// output resolution. Clips that were not get a scale chain in the graph.
	Normalized bool
}

// Music is an optional background track.
type Music struct {
	Path    string
	Volume  float64
	TrackID string
}

// Input is everything a plan is built from. It is probed once and reused by
// every tier.
type Input struct {
	Clips      []Clip
	Music      *Music
	Transition Transition
	Aspect     media.AspectTarget
}

// NewInput validates and sanitizes plan input. Clips are re-indexed in the
// given order, unusable durations become media.DefaultClipDuration, and a
// music track with a non-positive volume is dropped.
func NewInput(clips []Clip, music *Music, tr Transition, aspect media.AspectTarget) (Input, error) {
	if len(clips) == 0 {
		return Input{}, ErrNoClips
	}

	out := make([]Clip, len(clips))
	for i, c := range clips {
		c.Index = i
		if math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) || c.Duration <= 0 {
			c.Duration = media.DefaultClipDuration
		}
		out[i] = c
	}

	if music != nil && !(music.Volume > 0) {
		music = nil
	}
	if music != nil {
		m := *music
		music = &m
	}

	return Input{
		Clips:      out,
		Music:      music,
		Transition: NewTransition(tr.Policy, tr.Duration),
		Aspect:     media.ParseAspect(string(aspect)),
	}, nil
}

// TotalDuration returns the sum of clip durations.
func (in Input) TotalDuration() float64 {
	var sum float64
	for _, c := range in.Clips {
		sum += c.Duration
	}
	return sum
}
