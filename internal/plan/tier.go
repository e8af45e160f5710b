package plan

import "time"

// Tier is a simplicity level of the compile plan. Lower tiers trade visual
// quality for a smaller peak memory footprint and a faster encode.
type Tier string

// Supported tiers, from richest to simplest.
const (
	TierFull     Tier = "full"
	TierBasic    Tier = "basic"
	TierFallback Tier = "fallback"
)

// Encoding holds the encoder settings of a tier.
type Encoding struct {
	VideoCodec    string
	Preset        string
	CRF           int
	Threads       int
	FilterThreads int
	AudioCodec    string
	AudioBitrate  string
}

// Encoding returns the encoder settings for the tier.
func (t Tier) Encoding() Encoding {
	enc := Encoding{
		VideoCodec:   "libx264",
		Preset:       "fast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
	switch t {
	case TierBasic:
		enc.Preset = "veryfast"
		enc.Threads = 2
		enc.FilterThreads = 1
	case TierFallback:
		enc.Preset = "ultrafast"
		enc.CRF = 28
		enc.AudioBitrate = "96k"
	}
	return enc
}

// DefaultTimeout returns the wall-clock budget for one encode at this tier.
func (t Tier) DefaultTimeout() time.Duration {
	if t == TierFull {
		return 600 * time.Second
	}
	return 300 * time.Second
}

// policy narrows the requested policy to what the tier allows.
func (t Tier) policy(p Policy) Policy {
	switch t {
	case TierFallback:
		return PolicyCut
	case TierBasic:
		if p == PolicyCrossfade || p == PolicySlide {
			return PolicyFade
		}
	}
	return p
}
