package plan

import "strings"

// Policy is the inter-clip transition strategy.
type Policy string

// Supported transition policies.
const (
	PolicyCut       Policy = "cut"
	PolicyFade      Policy = "fade"
	PolicyCrossfade Policy = "crossfade"
	PolicySlide     Policy = "slide"
)

// DefaultTransitionSeconds is used when a request omits the duration.
const DefaultTransitionSeconds = 1.0

// ParsePolicy maps a request transition type to a Policy. An empty value
// means fade-to-black; any unknown value means a hard cut.
func ParsePolicy(s string) Policy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PolicyFade
	case "fade":
		return PolicyFade
	case "crossfade", "dissolve", "xfade":
		return PolicyCrossfade
	case "slide":
		return PolicySlide
	default:
		return PolicyCut
	}
}

// Transition is a policy together with its nominal duration in seconds.
type Transition struct {
	Policy   Policy
	Duration float64
}

// NewTransition builds a Transition. A non-positive duration degrades any
// timed policy to a cut.
func NewTransition(p Policy, duration float64) Transition {
	if p == PolicyCut || !(duration > 0) {
		return Transition{Policy: PolicyCut}
	}
	return Transition{Policy: p, Duration: duration}
}

// slideDirections is the order slide transitions cycle through.
var slideDirections = []string{"slideleft", "slideright", "slideup", "slidedown"}

// xfadeKind returns the xfade transition name for the n-th transition (0-based).
func xfadeKind(p Policy, n int) string {
	if p == PolicySlide {
		return slideDirections[n%len(slideDirections)]
	}
	return "fade"
}
