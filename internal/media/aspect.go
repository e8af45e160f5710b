package media

import (
	"strings"

	"github.com/maauso/video-compiler/internal/filtergraph"
)

// AspectTarget is an output aspect ratio such as "16:9".
type AspectTarget string

// Supported aspect targets.
const (
	Aspect16x9 AspectTarget = "16:9"
	Aspect9x16 AspectTarget = "9:16"
	Aspect1x1  AspectTarget = "1:1"
)

// ParseAspect maps a request value to a target. Unrecognized values use 16:9.
func ParseAspect(s string) AspectTarget {
	switch AspectTarget(strings.TrimSpace(s)) {
	case Aspect9x16:
		return Aspect9x16
	case Aspect1x1:
		return Aspect1x1
	default:
		return Aspect16x9
	}
}

// Resolution returns the output width and height in pixels.
func (a AspectTarget) Resolution() (width, height int) {
	switch a {
	case Aspect9x16:
		return 1080, 1920
	case Aspect1x1:
		return 1080, 1080
	default:
		return 1920, 1080
	}
}

// OutputFPS is the frame rate every clip is conformed to. xfade rejects
// inputs whose frame rates or timebases differ.
const OutputFPS = 30

// LetterboxFilter returns the -vf chain that scales a clip to fit inside the
// target while preserving its aspect ratio, pads to the exact size with
// centred black bars, and conforms the frame rate.
func (a AspectTarget) LetterboxFilter() string {
	w, h := a.Resolution()
	return filtergraph.ChainString(
		filtergraph.Node{Op: filtergraph.OpScale, Params: []filtergraph.Param{
			filtergraph.PInt("w", w),
			filtergraph.PInt("h", h),
			filtergraph.P("force_original_aspect_ratio", "decrease"),
		}},
		filtergraph.Node{Op: filtergraph.OpPad, Params: []filtergraph.Param{
			filtergraph.PInt("w", w),
			filtergraph.PInt("h", h),
			filtergraph.P("x", "(ow-iw)/2"),
			filtergraph.P("y", "(oh-ih)/2"),
			filtergraph.P("color", "black"),
		}},
		filtergraph.Node{Op: filtergraph.OpSetSAR, Params: []filtergraph.Param{
			filtergraph.P("sar", "1"),
		}},
		filtergraph.Node{Op: filtergraph.OpFPS, Params: []filtergraph.Param{
			filtergraph.PInt("fps", OutputFPS),
		}},
	)
}
