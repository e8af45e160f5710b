package plan

import (
	"strconv"

	fg "github.com/maauso/video-compiler/internal/filtergraph"
)

// Command is a compiled transcoder invocation.
type Command struct {
	Executable  string
	Inputs      []string
	FilterGraph string
	Maps        []string
	NoAudio     bool
	Codec       Encoding
	// DurationCap bounds the output length in seconds.
	DurationCap float64
	Output      string
}

// Args returns a fresh argument vector, excluding the executable.
func (c Command) Args() []string {
	args := []string{"-y", "-hide_banner"}
	if c.Codec.FilterThreads > 0 {
		args = append(args, "-filter_complex_threads", strconv.Itoa(c.Codec.FilterThreads))
	}
	for _, in := range c.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", c.FilterGraph)
	for _, m := range c.Maps {
		args = append(args, "-map", m)
	}

	args = append(args,
		"-c:v", c.Codec.VideoCodec,
		"-preset", c.Codec.Preset,
		"-crf", strconv.Itoa(c.Codec.CRF),
		"-pix_fmt", "yuv420p",
	)
	if c.Codec.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.Codec.Threads))
	}
	if c.NoAudio {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", c.Codec.AudioCodec, "-b:a", c.Codec.AudioBitrate)
	}

	return append(args,
		"-movflags", "+faststart",
		"-avoid_negative_ts", "make_zero",
		"-t", fg.FormatSeconds(c.DurationCap),
		c.Output,
	)
}
