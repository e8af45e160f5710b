// Package plan turns probed clips, an optional music track and a transition
// policy into a filter graph and the transcoder invocation that renders it.
package plan

import (
	"fmt"
	"math"
	"strconv"

	fg "github.com/maauso/video-compiler/internal/filtergraph"
	"github.com/maauso/video-compiler/internal/media"
)

// Terminal pin names of every plan.
const (
	PinVideo = "outv"
	PinAudio = "outa"
)

const (
	wholeFadeSeconds = 0.5
	musicFadeSeconds = 1.0
)

// Plan is a built filter graph plus the facts needed to encode it.
type Plan struct {
	Tier       Tier
	Policy     Policy
	Transition Transition
	// Inputs are the -i paths in index order: clips, then music if present.
	Inputs   []string
	Graph    *fg.Graph
	HasMusic bool
	// Duration is the expected output length in seconds.
	Duration float64
	Width    int
	Height   int
	// Offsets holds the xfade offset of each transition, empty for cut and fade.
	Offsets []float64
	Clips   int
}

// Build plans the compile of in at the given tier. in must come from
// NewInput, which guarantees at least one clip with a positive duration.
func Build(in Input, tier Tier) *Plan {
	policy := tier.policy(in.Transition.Policy)
	w, h := in.Aspect.Resolution()
	p := &Plan{
		Tier:       tier,
		Policy:     policy,
		Transition: Transition{Policy: policy, Duration: in.Transition.Duration},
		Graph:      fg.New(),
		Width:      w,
		Height:     h,
		Clips:      len(in.Clips),
	}
	for _, c := range in.Clips {
		p.Inputs = append(p.Inputs, c.Path)
	}
	if policy == PolicyCut {
		p.Transition.Duration = 0
	}

	b := &builder{g: p.Graph, in: in}
	streams := b.clipStreams()

	var last fg.Ref
	switch {
	case len(in.Clips) == 1:
		last = streams[0]
		p.Duration = in.Clips[0].Duration
	case policy == PolicyFade:
		last, p.Duration = b.fadeToBlack(streams, p.Transition.Duration)
	case policy == PolicyCrossfade || policy == PolicySlide:
		last, p.Duration, p.Offsets = b.xfade(streams, policy, p.Transition.Duration)
	default:
		last = b.concat(streams)
		p.Duration = in.TotalDuration()
	}
	b.wholeFades(last, p.Duration)

	if in.Music != nil {
		p.HasMusic = true
		p.Inputs = append(p.Inputs, in.Music.Path)
		b.music(len(in.Clips), in.Music.Volume, p.Duration)
	}
	return p
}

// Terminals returns the pins the encoder maps.
func (p *Plan) Terminals() []string {
	if p.HasMusic {
		return []string{PinVideo, PinAudio}
	}
	return []string{PinVideo}
}

// Validate checks the graph's pin discipline.
func (p *Plan) Validate() error {
	return p.Graph.Validate(p.Terminals()...)
}

// Compile renders the plan into a transcoder command writing to output.
func (p *Plan) Compile(executable, output string) Command {
	maps := []string{"[" + PinVideo + "]"}
	if p.HasMusic {
		maps = append(maps, "["+PinAudio+"]")
	}
	return Command{
		Executable:  executable,
		Inputs:      append([]string(nil), p.Inputs...),
		FilterGraph: p.Graph.String(),
		Maps:        maps,
		NoAudio:     !p.HasMusic,
		Codec:       p.Tier.Encoding(),
		DurationCap: p.Duration,
		Output:      output,
	}
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan(tier=%s policy=%s clips=%d music=%t duration=%ss)",
		p.Tier, p.Policy, p.Clips, p.HasMusic, fg.FormatSeconds(p.Duration))
}

type builder struct {
	g  *fg.Graph
	in Input
}

// clipStreams returns one video reference per clip. Clips that were not
// normalized are letterboxed and conformed to the output frame rate inside
// the graph so every stream matches.
func (b *builder) clipStreams() []fg.Ref {
	w, h := b.in.Aspect.Resolution()
	refs := make([]fg.Ref, len(b.in.Clips))
	for i, c := range b.in.Clips {
		src := fg.Input(c.Index, fg.Video)
		if c.Normalized {
			refs[i] = src
			continue
		}
		scaled := b.g.Add(fg.OpScale, []fg.Ref{src}, fmt.Sprintf("s%d", i),
			fg.PInt("w", w), fg.PInt("h", h), fg.P("force_original_aspect_ratio", "decrease"))
		padded := b.g.Add(fg.OpPad, []fg.Ref{scaled}, fmt.Sprintf("p%d", i),
			fg.PInt("w", w), fg.PInt("h", h),
			fg.P("x", "(ow-iw)/2"), fg.P("y", "(oh-ih)/2"), fg.P("color", "black"))
		square := b.g.Add(fg.OpSetSAR, []fg.Ref{padded}, fmt.Sprintf("r%d", i), fg.P("sar", "1"))
		refs[i] = b.g.Add(fg.OpFPS, []fg.Ref{square}, fmt.Sprintf("n%d", i), fg.PInt("fps", media.OutputFPS))
	}
	return refs
}

func (b *builder) concat(streams []fg.Ref) fg.Ref {
	return b.g.Add(fg.OpConcat, streams, "vcat",
		fg.PInt("n", len(streams)), fg.PInt("v", 1), fg.PInt("a", 0))
}

func (b *builder) fadeToBlack(streams []fg.Ref, t float64) (fg.Ref, float64) {
	last := len(streams) - 1
	faded := make([]fg.Ref, len(streams))
	for i, ref := range streams {
		d := b.in.Clips[i].Duration
		ti := math.Min(t, d)
		if i > 0 {
			ref = b.g.Add(fg.OpFade, []fg.Ref{ref}, fmt.Sprintf("fi%d", i),
				fg.P("t", "in"), fg.PSec("st", 0), fg.PSec("d", ti))
		}
		if i < last {
			ref = b.g.Add(fg.OpFade, []fg.Ref{ref}, fmt.Sprintf("fo%d", i),
				fg.P("t", "out"), fg.PSec("st", math.Max(0, d-ti)), fg.PSec("d", ti))
		}
		faded[i] = ref
	}
	return b.concat(faded), b.in.TotalDuration()
}

func (b *builder) xfade(streams []fg.Ref, policy Policy, t float64) (fg.Ref, float64, []float64) {
	clips := b.in.Clips
	prev := streams[0]
	offsets := make([]float64, 0, len(streams)-1)
	var offset, overlap float64
	for i := 1; i < len(streams); i++ {
		ti := math.Min(t, math.Min(clips[i-1].Duration, clips[i].Duration))
		offset += clips[i-1].Duration - ti
		overlap += ti
		offsets = append(offsets, offset)
		prev = b.g.Add(fg.OpXFade, []fg.Ref{prev, streams[i]}, fmt.Sprintf("x%d", i),
			fg.P("transition", xfadeKind(policy, i-1)),
			fg.PSec("duration", ti),
			fg.PSec("offset", offset))
	}
	return prev, b.in.TotalDuration() - overlap, offsets
}

func (b *builder) wholeFades(src fg.Ref, total float64) {
	in := b.g.Add(fg.OpFade, []fg.Ref{src}, "vfin",
		fg.P("t", "in"), fg.PSec("st", 0), fg.PSec("d", wholeFadeSeconds))
	b.g.Add(fg.OpFade, []fg.Ref{in}, PinVideo,
		fg.P("t", "out"), fg.PSec("st", math.Max(0, total-wholeFadeSeconds)), fg.PSec("d", wholeFadeSeconds))
}

func (b *builder) music(index int, volume, total float64) {
	trimmed := b.g.Add(fg.OpATrim, []fg.Ref{fg.Input(index, fg.Audio)}, "mtrim",
		fg.PSec("duration", total))
	leveled := b.g.Add(fg.OpVolume, []fg.Ref{trimmed}, "mvol",
		fg.P("volume", strconv.FormatFloat(volume, 'f', -1, 64)))
	in := b.g.Add(fg.OpAFade, []fg.Ref{leveled}, "mfin",
		fg.P("t", "in"), fg.PSec("st", 0), fg.PSec("d", musicFadeSeconds))
	b.g.Add(fg.OpAFade, []fg.Ref{in}, PinAudio,
		fg.P("t", "out"), fg.PSec("st", math.Max(musicFadeSeconds, total-musicFadeSeconds)), fg.PSec("d", musicFadeSeconds))
}
