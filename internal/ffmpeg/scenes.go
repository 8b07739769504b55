package ffmpeg

import (
	"context"
	"fmt"
	"sort"
)

// minSpanSeconds is the shortest scene worth encoding separately. Cuts closer
// together than this are merged; encoding sub-100ms slices produces more
// container overhead than video.
const minSpanSeconds = 0.1

// Span is one scene's time range within the source, [Start, End).
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.End - s.Start
}

// BuildTimeline converts detected cut points into a contiguous scene
// timeline. Cuts are deduplicated, sorted, and bounded to (0, duration);
// spans shorter than minSpanSeconds are merged into their neighbor. The
// result always covers [0, duration] exactly, falling back to a single
// whole-file span when no usable cut remains.
func BuildTimeline(cuts []float64, duration float64) []Span {
	if duration <= 0 {
		return nil
	}

	unique := make(map[float64]struct{}, len(cuts))
	bounded := make([]float64, 0, len(cuts))
	for _, c := range cuts {
		if c <= 0 || c >= duration {
			continue
		}
		if _, seen := unique[c]; seen {
			continue
		}
		unique[c] = struct{}{}
		bounded = append(bounded, c)
	}
	sort.Float64s(bounded)

	boundaries := []float64{0}
	for _, c := range bounded {
		if c-boundaries[len(boundaries)-1] > minSpanSeconds {
			boundaries = append(boundaries, c)
		}
	}
	// The final span must end at duration; merge a too-short tail into the
	// last scene.
	if duration-boundaries[len(boundaries)-1] > minSpanSeconds {
		boundaries = append(boundaries, duration)
	} else {
		boundaries[len(boundaries)-1] = duration
	}

	if len(boundaries) < 2 {
		return []Span{{Start: 0, End: duration}}
	}

	spans := make([]Span, 0, len(boundaries)-1)
	for i := 1; i < len(boundaries); i++ {
		spans = append(spans, Span{Start: boundaries[i-1], End: boundaries[i]})
	}
	return spans
}

// SceneDetector finds scene changes with ffmpeg's select filter.
type SceneDetector struct {
	supervisor *Supervisor
}

// NewSceneDetector creates a scene detector using the given supervisor.
func NewSceneDetector(supervisor *Supervisor) *SceneDetector {
	return &SceneDetector{supervisor: supervisor}
}

// Detect runs a scene-change analysis pass and returns the raw cut positions
// in seconds. threshold is the scene-change score a frame must exceed,
// typically 0.3 to 0.5. duration sizes the run budget.
func (d *SceneDetector) Detect(ctx context.Context, jobID, input string, duration, threshold float64) ([]float64, error) {
	filter := fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold)
	args := []string{
		"-hide_banner",
		"-i", input,
		"-vf", filter,
		"-f", "null", "-",
	}

	result, err := d.supervisor.Run(ctx, Command{
		JobID:         jobID,
		Args:          args,
		MediaDuration: duration,
	})
	if err != nil {
		return nil, fmt.Errorf("scene detection: %w", err)
	}
	return ParseSceneCuts(result.Stderr), nil
}

// Timeline detects cuts and builds the scene timeline in one call.
func (d *SceneDetector) Timeline(ctx context.Context, jobID, input string, duration, threshold float64) ([]Span, error) {
	cuts, err := d.Detect(ctx, jobID, input, duration, threshold)
	if err != nil {
		return nil, err
	}
	return BuildTimeline(cuts, duration), nil
}
