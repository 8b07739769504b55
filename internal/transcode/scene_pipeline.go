package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
)

// encodeShare is the portion of job progress spent encoding scenes; the
// remainder covers concatenation and packaging.
const encodeShare = 97.0

// TimelineDetector produces the scene timeline for an input.
type TimelineDetector interface {
	Timeline(ctx context.Context, jobID, input string, duration, threshold float64) ([]ffmpeg.Span, error)
}

// StatusCheck is consulted between scenes so a cancellation observed in the
// store stops the pipeline before the next ffmpeg process starts.
type StatusCheck func(ctx context.Context) error

// ScenePipeline encodes a job scene by scene: detect cuts, encode each span
// independently with per-scene quality tuning, concatenate the parts without
// re-encoding, then score the stitched output as a whole.
type ScenePipeline struct {
	executor  *Executor
	detector  TimelineDetector
	runner    Runner
	evaluator QualityEvaluator
	logger    *slog.Logger
}

// NewScenePipeline creates a ScenePipeline.
func NewScenePipeline(executor *Executor, detector TimelineDetector, runner Runner, evaluator QualityEvaluator, logger *slog.Logger) *ScenePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScenePipeline{
		executor:  executor,
		detector:  detector,
		runner:    runner,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Run executes the segmented encode. The scenes directory is always removed,
// including on failure, so a crashed or canceled job leaves no partial
// segments behind.
func (p *ScenePipeline) Run(ctx context.Context, req *Request, threshold float64, check StatusCheck) (*Result, []models.SceneMetric, error) {
	start := time.Now()
	timeline, err := p.detector.Timeline(ctx, req.JobID, req.Input, req.MediaDuration, threshold)
	if err != nil {
		return nil, nil, err
	}
	if req.Recorder != nil {
		req.Recorder.Event("detected %d scenes", len(timeline))
	}

	scenesDir := SceneDir(req.Output)
	if err := os.MkdirAll(scenesDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating scenes directory: %w", err)
	}
	defer os.RemoveAll(scenesDir)

	ext := filepath.Ext(req.Output)
	sceneOutputs := make([]string, len(timeline))
	metrics := make([]models.SceneMetric, 0, len(timeline))

	// In vmaf mode each scene seeds its tuning loop with the previous
	// scene's final bitrate; adjacent scenes usually have similar
	// complexity, so the loop converges in fewer attempts.
	carryKbps := 0
	var peakRSS uint64
	var report func(int)
	if req.Progress != nil {
		report = req.Progress.Report
	}
	for i, span := range timeline {
		if check != nil {
			if err := check(ctx); err != nil {
				return nil, nil, err
			}
		}

		sceneOut := filepath.Join(scenesDir, fmt.Sprintf("scene-%03d%s", i, ext))
		sceneOutputs[i] = sceneOut

		sliced := span
		sceneReq := *req
		sceneReq.Output = sceneOut
		sceneReq.Slice = &sliced
		sceneReq.StartBitrateKbps = carryKbps
		sceneReq.Progress = &ffmpeg.Progress{
			SpanSeconds:   span.Duration(),
			OffsetPercent: span.Start / req.MediaDuration * encodeShare,
			ScalePercent:  span.Duration() / req.MediaDuration * encodeShare,
			Report:        report,
		}

		result, err := p.executor.Encode(ctx, &sceneReq)
		if err != nil {
			return nil, nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		if result.FinalBitrateKbps > 0 {
			carryKbps = result.FinalBitrateKbps
		}
		if result.PeakRSSBytes > peakRSS {
			peakRSS = result.PeakRSSBytes
		}

		metrics = append(metrics, models.SceneMetric{
			Index:       i + 1,
			Start:       span.Start,
			End:         span.End,
			BitrateKbps: result.FinalBitrateKbps,
			Score:       result.Score,
			Attempts:    result.Attempts,
		})
	}

	if check != nil {
		if err := check(ctx); err != nil {
			return nil, nil, err
		}
	}

	if err := p.concatenate(ctx, req, scenesDir, sceneOutputs); err != nil {
		return nil, nil, err
	}

	result := &Result{
		SceneAggregate: aggregateScores(timeline, metrics),
		PeakRSSBytes:   peakRSS,
	}
	if result.SceneAggregate != nil {
		p.scoreOutput(ctx, req, result)
	}
	if n := len(metrics); n > 0 {
		result.FinalBitrateKbps = metrics[n-1].BitrateKbps
	}
	for _, m := range metrics {
		if note := noteFor(req, m); note != "" {
			result.Note = note
			break
		}
	}
	if info, statErr := os.Stat(req.Output); statErr == nil {
		result.SizeBytes = info.Size()
	}
	elapsed := time.Since(start).Seconds()
	result.EncodeDurationSec = elapsed
	if req.MediaDuration > 0 {
		result.EncodeEfficiency = elapsed / req.MediaDuration
	}
	return result, metrics, nil
}

// scoreOutput measures the concatenated file against the full reference, so
// quality loss introduced by the stitch itself shows up and not just the
// per-scene numbers. A failed measurement degrades to the scene aggregate
// with an annotation.
func (p *ScenePipeline) scoreOutput(ctx context.Context, req *Request, result *Result) {
	final, err := p.evaluator.Evaluate(ctx, req.JobID, req.Output, req.Reference, nil, req.MediaDuration)
	if err != nil {
		result.VmafError = err.Error()
		result.Score = result.SceneAggregate
		if req.Recorder != nil {
			req.Recorder.Event("final quality evaluation skipped: %v", err)
		}
		p.logger.Warn("final quality evaluation failed",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		return
	}
	result.Score = final
	if req.Recorder != nil {
		req.Recorder.Event("concatenated output scored vmaf %.3f", final.Mean)
	}
}

// concatenate stitches the scene files back together with the concat
// demuxer, copying streams without re-encoding.
func (p *ScenePipeline) concatenate(ctx context.Context, req *Request, scenesDir string, sceneOutputs []string) error {
	listPath := filepath.Join(scenesDir, "concat.txt")
	var b strings.Builder
	for _, out := range sceneOutputs {
		fmt.Fprintf(&b, "file '%s'\n", out)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing concat manifest: %w", err)
	}

	args := []string{
		"-y", "-hide_banner",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		req.Output,
	}
	if req.Recorder != nil {
		req.Recorder.Command("ffmpeg", args)
	}

	var progress *ffmpeg.Progress
	if req.Progress != nil && req.Progress.Report != nil {
		progress = &ffmpeg.Progress{
			SpanSeconds:   req.MediaDuration,
			OffsetPercent: encodeShare,
			ScalePercent:  99 - encodeShare,
			Report:        req.Progress.Report,
		}
	}

	_, err := p.runner.Run(ctx, ffmpeg.Command{
		JobID:         req.JobID,
		Args:          args,
		MediaDuration: req.MediaDuration,
		Progress:      progress,
	})
	if err != nil {
		return fmt.Errorf("concatenating scenes: %w", err)
	}
	return nil
}

// SceneDir returns the working directory for a job's scene segments.
func SceneDir(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "-scenes"
}

// aggregateScores combines per-scene quality scores into one job-level score:
// the mean is weighted by scene duration, the min and max are the extremes
// across all scenes. Scenes without a score (evaluation skipped) are left
// out; nil is returned when no scene was scored.
func aggregateScores(timeline []ffmpeg.Span, metrics []models.SceneMetric) *models.VmafScore {
	var weighted, total float64
	agg := &models.VmafScore{Min: -1}
	scored := false
	for i, m := range metrics {
		if m.Score == nil {
			continue
		}
		d := timeline[i].Duration()
		weighted += m.Score.Mean * d
		total += d
		if !scored || m.Score.Min < agg.Min {
			agg.Min = m.Score.Min
		}
		if m.Score.Max > agg.Max {
			agg.Max = m.Score.Max
		}
		scored = true
	}
	if !scored || total <= 0 {
		return nil
	}
	agg.Mean = round3(weighted / total)
	return agg
}

// round3 matches the precision used for individual quality scores.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// noteFor returns the advisory note for an out-of-band scene, if any.
func noteFor(req *Request, m models.SceneMetric) string {
	if req.Params.RateControl != models.RateControlVmaf || m.Score == nil {
		return ""
	}
	if req.Params.VmafTarget.Contains(m.Score.Mean) {
		return ""
	}
	return fmt.Sprintf("scene %d finished outside quality target %.1f..%.1f",
		m.Index, req.Params.VmafTarget.Min, req.Params.VmafTarget.Max)
}
