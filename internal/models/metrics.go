package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// VmafScore is an aggregated quality measurement, rounded to 3 decimals.
type VmafScore struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// AttemptRecord captures one iteration of the bitrate tuning loop.
type AttemptRecord struct {
	Attempt     int       `json:"attempt"`
	BitrateKbps int       `json:"bitrate_kbps"`
	Score       VmafScore `json:"score"`
}

// SceneMetric captures results for one scene of a segmented encode.
// Index is 1-based, matching the scene numbering in error messages.
type SceneMetric struct {
	Index       int             `json:"index"`
	Start       float64         `json:"start"`
	End         float64         `json:"end"`
	BitrateKbps int             `json:"bitrate_kbps,omitempty"`
	Score       *VmafScore      `json:"score,omitempty"`
	Attempts    []AttemptRecord `json:"attempts,omitempty"`
}

// Metrics holds everything measured about a completed encode.
// Stored on the job row as a JSON column.
type Metrics struct {
	// SizeBytes is the final output file size.
	SizeBytes int64 `json:"size_bytes"`

	// EncodeDurationSec is wall-clock encode time in seconds.
	EncodeDurationSec float64 `json:"encode_duration_sec"`

	// EncodeEfficiency is encode duration divided by media duration
	// (<1 means faster than realtime).
	EncodeEfficiency float64 `json:"encode_efficiency,omitempty"`

	// FinalBitrateKbps is the bitrate of the last encode attempt, when
	// bitrate-driven.
	FinalBitrateKbps int `json:"final_bitrate_kbps,omitempty"`

	// Vmaf is the quality score of the final output, when evaluated.
	Vmaf *VmafScore `json:"vmaf,omitempty"`

	// SceneAggregate combines per-scene scores for segmented encodes:
	// duration-weighted mean and the extremes across scenes.
	SceneAggregate *VmafScore `json:"scene_aggregate,omitempty"`

	// VmafError notes a non-fatal quality evaluation failure.
	VmafError string `json:"vmaf_error,omitempty"`

	// PeakRSSBytes is the largest encoder resident set size sampled
	// across the job's ffmpeg invocations.
	PeakRSSBytes uint64 `json:"peak_rss_bytes,omitempty"`

	// Attempts is the tuning history for whole-file VMAF encodes.
	Attempts []AttemptRecord `json:"attempts,omitempty"`

	// Scenes holds per-scene results for segmented encodes.
	Scenes []SceneMetric `json:"scenes,omitempty"`

	// Note carries advisory text, e.g. when the quality band was not
	// reached within the attempt budget.
	Note string `json:"note,omitempty"`
}

// Value implements driver.Valuer, storing the metrics as JSON.
func (m Metrics) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metrics: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metrics) Scan(value any) error {
	if value == nil {
		*m = Metrics{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for metrics: %T", value)
	}
	if len(data) == 0 {
		*m = Metrics{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("scanning metrics: %w", err)
	}
	return nil
}
