package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RateControl selects how the video bitrate/quality is driven.
type RateControl string

const (
	// RateControlCRF encodes at a constant rate factor.
	RateControlCRF RateControl = "crf"
	// RateControlBitrate encodes at a fixed average bitrate.
	RateControlBitrate RateControl = "bitrate"
	// RateControlVmaf tunes the bitrate until the VMAF score lands in a band.
	RateControlVmaf RateControl = "vmaf"
)

// VmafBand is the acceptable quality window for VMAF-driven encodes.
type VmafBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether score falls inside the band (inclusive).
func (b VmafBand) Contains(score float64) bool {
	return score >= b.Min && score <= b.Max
}

// EncodeParams describes how a job's input should be transcoded.
// Stored on the job row as a JSON column.
type EncodeParams struct {
	// Codec is the target video codec family: h264, h265, av1, vp9.
	Codec string `json:"codec"`

	// Encoder optionally pins a specific encoder implementation
	// (e.g. libx264, hevc_nvenc). Empty selects the codec's default.
	Encoder string `json:"encoder,omitempty"`

	// Profile optionally selects a codec profile (e.g. main, high).
	Profile string `json:"profile,omitempty"`

	// Preset optionally selects a speed/efficiency preset.
	Preset string `json:"preset,omitempty"`

	// RateControl selects crf, bitrate or vmaf mode.
	RateControl RateControl `json:"rate_control"`

	// CRF is the constant rate factor, required in crf mode.
	CRF *int `json:"crf,omitempty"`

	// BitrateKbps is the target bitrate, required in bitrate mode and used
	// as the starting point in vmaf mode (optional there).
	BitrateKbps *int `json:"bitrate_kbps,omitempty"`

	// VmafTarget is the quality band, required in vmaf mode.
	VmafTarget *VmafBand `json:"vmaf_target,omitempty"`

	// EnableVmaf requests a quality measurement of the output in crf and
	// bitrate modes, recorded on the metrics. Implied in vmaf mode, where
	// the tuning loop measures every attempt.
	EnableVmaf bool `json:"enable_vmaf,omitempty"`

	// Resolution is a named output resolution: source, 1080p, 720p, 480p,
	// 360p. Empty means source.
	Resolution string `json:"resolution,omitempty"`

	// SceneSplit enables per-scene segmentation and tuning.
	SceneSplit bool `json:"scene_split,omitempty"`

	// SceneThreshold overrides the scene-change detection threshold
	// (0 uses the configured default).
	SceneThreshold float64 `json:"scene_threshold,omitempty"`

	// HLS requests an HLS rendition derived from the final output.
	HLS bool `json:"hls,omitempty"`

	// DASH requests a DASH rendition derived from the final output.
	DASH bool `json:"dash,omitempty"`

	// ExtraArgs are appended to the ffmpeg command line verbatim, before
	// the output path.
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// Validate checks the parameter combination for consistency.
func (p *EncodeParams) Validate() error {
	if p.Codec == "" {
		return ErrCodecRequired
	}

	switch p.RateControl {
	case RateControlCRF:
		if p.CRF == nil {
			return ErrCrfRequired
		}
	case RateControlBitrate:
		if p.BitrateKbps == nil || *p.BitrateKbps <= 0 {
			return ErrBitrateRequired
		}
	case RateControlVmaf:
		if p.VmafTarget == nil {
			return ErrVmafTargetRequired
		}
		if p.VmafTarget.Min < 0 || p.VmafTarget.Max > 100 || p.VmafTarget.Min > p.VmafTarget.Max {
			return ErrVmafTargetInvalid
		}
	default:
		return fmt.Errorf("%w: %q", ErrRateControlInvalid, p.RateControl)
	}

	if p.SceneThreshold < 0 || p.SceneThreshold >= 1 {
		return ErrSceneThresholdInvalid
	}
	return nil
}

// Value implements driver.Valuer, storing the params as JSON.
func (p EncodeParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling encode params: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *EncodeParams) Scan(value any) error {
	if value == nil {
		*p = EncodeParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for encode params: %T", value)
	}
	if len(data) == 0 {
		*p = EncodeParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("scanning encode params: %w", err)
	}
	return nil
}
