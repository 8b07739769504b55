// Package encoding holds the codec catalogue, the encoder resolver and the
// bitrate controller used to build ffmpeg encode parameters.
package encoding

// EncoderKind identifies the hardware family an encoder belongs to.
type EncoderKind string

const (
	// KindSoftware is a CPU encoder, always available.
	KindSoftware EncoderKind = "software"
	// KindNvidia is an NVENC encoder.
	KindNvidia EncoderKind = "nvidia"
	// KindIntel is a QSV encoder.
	KindIntel EncoderKind = "intel"
	// KindAMD is an AMF encoder.
	KindAMD EncoderKind = "amd"
)

// Encoder describes one ffmpeg encoder implementation.
type Encoder struct {
	// Name is the ffmpeg encoder name, e.g. libx264.
	Name string `json:"name"`
	// Kind is the hardware family.
	Kind EncoderKind `json:"kind"`
	// Profiles are the accepted -profile:v values; empty means the flag
	// is not emitted.
	Profiles []string `json:"profiles,omitempty"`
	// DefaultProfile is used when the request names none.
	DefaultProfile string `json:"default_profile,omitempty"`
	// Presets are the accepted -preset values.
	Presets []string `json:"presets,omitempty"`
	// DefaultPreset is used when the request names none.
	DefaultPreset string `json:"default_preset,omitempty"`
	// QualityFlag is the constant-quality flag, -crf or -cq.
	QualityFlag string `json:"quality_flag"`
	// MinQuality and MaxQuality bound the constant-quality value.
	MinQuality int `json:"min_quality"`
	// MaxQuality bounds the constant-quality value.
	MaxQuality int `json:"max_quality"`
	// DefaultQuality is used when the request names none in crf mode.
	DefaultQuality int `json:"default_quality"`
}

// Codec groups the encoders able to produce one video codec. The first
// software encoder in Encoders is the codec default.
type Codec struct {
	// Name is the codec family key: h264, h265, av1, vp9.
	Name string `json:"name"`
	// Encoders lists implementations in preference order.
	Encoders []Encoder `json:"encoders"`
}

var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// svtav1Presets are numeric speed levels, 0 (slowest) to 13 (fastest).
var svtav1Presets = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13",
}

var nvencPresets = []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}

// Catalogue is the supported codec/encoder matrix exposed by the options
// endpoint and consumed by the resolver.
var Catalogue = []Codec{
	{
		Name: "h264",
		Encoders: []Encoder{
			{
				Name: "libx264", Kind: KindSoftware,
				Profiles: []string{"baseline", "main", "high"}, DefaultProfile: "high",
				Presets: x264Presets, DefaultPreset: "medium",
				QualityFlag: "-crf", MinQuality: 0, MaxQuality: 51, DefaultQuality: 23,
			},
			{
				Name: "h264_nvenc", Kind: KindNvidia,
				Profiles: []string{"baseline", "main", "high"}, DefaultProfile: "high",
				Presets: nvencPresets, DefaultPreset: "p5",
				QualityFlag: "-cq", MinQuality: 0, MaxQuality: 51, DefaultQuality: 23,
			},
			{
				Name: "h264_qsv", Kind: KindIntel,
				Profiles: []string{"baseline", "main", "high"}, DefaultProfile: "high",
				QualityFlag: "-global_quality", MinQuality: 1, MaxQuality: 51, DefaultQuality: 23,
			},
			{
				Name: "h264_amf", Kind: KindAMD,
				Profiles: []string{"main", "high"}, DefaultProfile: "high",
				QualityFlag: "-qp_i", MinQuality: 0, MaxQuality: 51, DefaultQuality: 23,
			},
		},
	},
	{
		Name: "h265",
		Encoders: []Encoder{
			{
				Name: "libx265", Kind: KindSoftware,
				Profiles: []string{"main", "main10"}, DefaultProfile: "main",
				Presets: x264Presets, DefaultPreset: "medium",
				QualityFlag: "-crf", MinQuality: 0, MaxQuality: 51, DefaultQuality: 28,
			},
			{
				Name: "hevc_nvenc", Kind: KindNvidia,
				Profiles: []string{"main", "main10"}, DefaultProfile: "main",
				Presets: nvencPresets, DefaultPreset: "p5",
				QualityFlag: "-cq", MinQuality: 0, MaxQuality: 51, DefaultQuality: 28,
			},
			{
				Name: "hevc_qsv", Kind: KindIntel,
				Profiles: []string{"main", "main10"}, DefaultProfile: "main",
				QualityFlag: "-global_quality", MinQuality: 1, MaxQuality: 51, DefaultQuality: 28,
			},
			{
				Name: "hevc_amf", Kind: KindAMD,
				Profiles: []string{"main", "main10"}, DefaultProfile: "main",
				QualityFlag: "-qp_i", MinQuality: 0, MaxQuality: 51, DefaultQuality: 28,
			},
		},
	},
	{
		Name: "av1",
		Encoders: []Encoder{
			{
				Name: "libsvtav1", Kind: KindSoftware,
				Presets: svtav1Presets, DefaultPreset: "8",
				QualityFlag: "-crf", MinQuality: 0, MaxQuality: 63, DefaultQuality: 35,
			},
			{
				Name: "av1_nvenc", Kind: KindNvidia,
				Presets: nvencPresets, DefaultPreset: "p5",
				QualityFlag: "-cq", MinQuality: 0, MaxQuality: 63, DefaultQuality: 35,
			},
			{
				Name: "av1_qsv", Kind: KindIntel,
				QualityFlag: "-global_quality", MinQuality: 1, MaxQuality: 63, DefaultQuality: 35,
			},
		},
	},
	{
		Name: "vp9",
		Encoders: []Encoder{
			{
				Name: "libvpx-vp9", Kind: KindSoftware,
				QualityFlag: "-crf", MinQuality: 0, MaxQuality: 63, DefaultQuality: 31,
			},
		},
	},
}

// FindCodec returns the catalogue entry for a codec family.
func FindCodec(name string) (*Codec, bool) {
	for i := range Catalogue {
		if Catalogue[i].Name == name {
			return &Catalogue[i], true
		}
	}
	return nil, false
}

// FindEncoder returns the named encoder within a codec family.
func (c *Codec) FindEncoder(name string) (*Encoder, bool) {
	for i := range c.Encoders {
		if c.Encoders[i].Name == name {
			return &c.Encoders[i], true
		}
	}
	return nil, false
}

// DefaultEncoder returns the codec's first software encoder.
func (c *Codec) DefaultEncoder() *Encoder {
	for i := range c.Encoders {
		if c.Encoders[i].Kind == KindSoftware {
			return &c.Encoders[i]
		}
	}
	return &c.Encoders[0]
}
