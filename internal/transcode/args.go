package transcode

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/encoding"
	"github.com/vefmedia/vef/internal/ffmpeg"
)

// AttemptSpec describes one ffmpeg encode invocation.
type AttemptSpec struct {
	// Input and Output are file paths.
	Input  string
	Output string
	// Slice restricts the encode to a time range; nil encodes the whole
	// input.
	Slice *ffmpeg.Span
	// Selection is the resolved encoder choice.
	Selection *encoding.Selection
	// Ladder, when non-nil, drives the encode by average bitrate;
	// otherwise the selection's constant-quality flag is used.
	Ladder *encoding.Ladder
	// ScaleArgs are the resolved -vf scale arguments, possibly empty.
	ScaleArgs []string
	// Gop supplies the keyframe cadence flags.
	Gop config.EncodingConfig
	// ForceKeyFrameAt, when non-nil, forces a keyframe at the given
	// position so scene segments start clean for concatenation.
	ForceKeyFrameAt *float64
	// ExtraArgs are appended verbatim before the output path.
	ExtraArgs []string
}

// BuildArgs assembles the complete ffmpeg argument list for one attempt.
// The slice options follow the input so seeking is frame-accurate and the
// source timestamps survive, which the forced keyframe position relies on.
func BuildArgs(spec AttemptSpec) []string {
	args := []string{"-y", "-hide_banner", "-i", spec.Input}

	if spec.Slice != nil {
		args = append(args,
			"-ss", formatSeconds(spec.Slice.Start),
			"-t", formatSeconds(spec.Slice.Duration()),
		)
	}

	args = append(args, spec.Selection.VideoArgs(spec.Ladder == nil)...)
	if spec.Ladder != nil {
		args = append(args, spec.Ladder.Args()...)
	}

	args = append(args, spec.ScaleArgs...)

	args = append(args,
		"-g", strconv.Itoa(spec.Gop.GopLength),
		"-keyint_min", strconv.Itoa(spec.Gop.KeyintMin),
		"-sc_threshold", strconv.Itoa(spec.Gop.ScThreshold),
	)

	if spec.ForceKeyFrameAt != nil {
		args = append(args, "-force_key_frames", formatSeconds(*spec.ForceKeyFrameAt))
	}

	args = append(args, containerFixups(spec.Selection, spec.Output)...)
	args = append(args, encoding.AudioArgs(spec.Output)...)
	args = append(args, spec.ExtraArgs...)

	return append(args, spec.Output)
}

// containerFixups returns codec/container compatibility flags. HEVC in an
// mp4/mov container needs the hvc1 tag or QuickTime-family players refuse
// the track.
func containerFixups(sel *encoding.Selection, outputPath string) []string {
	if sel.Codec.Name != "h265" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".mp4", ".mov":
		return []string{"-tag:v", "hvc1"}
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
