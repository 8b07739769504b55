package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Prober errors.
var (
	// ErrNoDuration indicates the container reported no usable duration.
	ErrNoDuration = errors.New("media has no duration")
	// ErrNoVideoStream indicates the input carries no video stream.
	ErrNoVideoStream = errors.New("media has no video stream")
)

// probeResult mirrors the subset of ffprobe JSON output vef consumes.
type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// MediaInfo is the probe summary the pipeline works with.
type MediaInfo struct {
	// DurationSec is the container duration in seconds.
	DurationSec float64 `json:"duration_sec"`
	// Width and Height describe the first video stream.
	Width  int `json:"width"`
	Height int `json:"height"`
	// VideoCodec is the first video stream's codec name.
	VideoCodec string `json:"video_codec"`
	// FormatName is the container format.
	FormatName string `json:"format_name"`
	// SizeBytes is the container size when reported.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// Prober wraps ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe inspects a media file and returns its duration, resolution and
// container details. A missing or non-positive duration is an error; every
// downstream timeout and progress computation depends on it.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed for %q: %w", path, err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	info := &MediaInfo{FormatName: result.Format.FormatName}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoDuration, result.Format.Duration)
	}
	info.DurationSec = duration

	if size, err := strconv.ParseInt(result.Format.Size, 10, 64); err == nil {
		info.SizeBytes = size
	}

	for _, stream := range result.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			break
		}
	}
	return info, nil
}

// Resolution probes only the video dimensions of a file. Used by the quality
// evaluator to decide whether the reference needs rescaling.
func (p *Prober) Resolution(ctx context.Context, path string) (width, height int, err error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	if info.Width == 0 || info.Height == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrNoVideoStream, path)
	}
	return info.Width, info.Height, nil
}
