package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/encoding"
	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
)

// defaultStartKbps seeds the tuning loop when the request names no starting
// bitrate.
const defaultStartKbps = 2500

// Runner runs supervised ffmpeg invocations.
type Runner interface {
	Run(ctx context.Context, cmd ffmpeg.Command) (*ffmpeg.Result, error)
}

// QualityEvaluator measures an encode against its reference.
type QualityEvaluator interface {
	Evaluate(ctx context.Context, jobID, distorted, reference string, refSlice *ffmpeg.Span, duration float64) (*models.VmafScore, error)
}

// Request describes one encode task: a whole file, or one scene slice of it.
type Request struct {
	JobID  string
	Input  string
	Output string
	// Reference is the quality-comparison source, normally Input.
	Reference string
	Params    *models.EncodeParams
	Selection *encoding.Selection
	ScaleArgs []string
	// MediaDuration is the full input duration in seconds.
	MediaDuration float64
	// Slice restricts the encode to a scene range; nil encodes everything.
	Slice *ffmpeg.Span
	// Progress maps this request's clock onto job progress.
	Progress *ffmpeg.Progress
	// StartBitrateKbps seeds the tuning loop, carrying the previous
	// scene's result forward. Zero falls back to the request bitrate or
	// the package default.
	StartBitrateKbps int
	Recorder         *Recorder
}

// spanDuration returns the media seconds this request encodes.
func (r *Request) spanDuration() float64 {
	if r.Slice != nil {
		return r.Slice.Duration()
	}
	return r.MediaDuration
}

// Result holds everything measured about a finished encode request.
type Result struct {
	SizeBytes         int64
	EncodeDurationSec float64
	// EncodeEfficiency is encode time over media time; below 1 is faster
	// than realtime.
	EncodeEfficiency float64
	FinalBitrateKbps int
	Score            *models.VmafScore
	// SceneAggregate is the duration-weighted combination of per-scene
	// scores, set by the scene pipeline only.
	SceneAggregate *models.VmafScore
	VmafError      string
	Attempts       []models.AttemptRecord
	Note           string
	PeakRSSBytes   uint64
}

// Executor runs encode requests: a single attempt in crf and bitrate modes,
// or a bounded bitrate tuning loop in vmaf mode.
type Executor struct {
	runner      Runner
	evaluator   QualityEvaluator
	controller  *encoding.Controller
	gop         config.EncodingConfig
	maxAttempts int
	logger      *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(runner Runner, evaluator QualityEvaluator, controller *encoding.Controller, gop config.EncodingConfig, maxAttempts int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner:      runner,
		evaluator:   evaluator,
		controller:  controller,
		gop:         gop,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Encode runs the request to completion. Supervisor failures are always
// fatal. Quality evaluation is fatal inside the tuning loop, where the next
// bitrate depends on the score; in the other modes it runs only when the
// params ask for it and a failure degrades to a metrics annotation.
func (e *Executor) Encode(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	var result *Result
	var err error
	if req.Params.RateControl == models.RateControlVmaf {
		result, err = e.encodeTuned(ctx, req)
	} else {
		result, err = e.encodeOnce(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	result.EncodeDurationSec = elapsed
	if span := req.spanDuration(); span > 0 {
		result.EncodeEfficiency = elapsed / span
	}

	if info, statErr := os.Stat(req.Output); statErr == nil {
		result.SizeBytes = info.Size()
	}

	return result, nil
}

// encodeOnce performs the single attempt of crf and bitrate modes, then
// folds in a best-effort quality measurement when one was requested.
func (e *Executor) encodeOnce(ctx context.Context, req *Request) (*Result, error) {
	var ladder *encoding.Ladder
	result := &Result{}
	if req.Params.RateControl == models.RateControlBitrate {
		l := e.controller.Override(*req.Params.BitrateKbps)
		ladder = &l
		result.FinalBitrateKbps = l.BitrateKbps
	}

	run, err := e.runAttempt(ctx, req, ladder)
	if err != nil {
		return nil, err
	}
	result.PeakRSSBytes = run.PeakRSSBytes

	if !req.Params.EnableVmaf {
		return result, nil
	}

	score, err := e.evaluator.Evaluate(ctx, req.JobID, req.Output, req.Reference, req.Slice, req.spanDuration())
	if err != nil {
		result.VmafError = err.Error()
		if req.Recorder != nil {
			req.Recorder.Event("quality evaluation skipped: %v", err)
		}
		e.logger.Warn("quality evaluation failed",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.Score = score
	return result, nil
}

// encodeTuned runs the bitrate tuning loop of vmaf mode: encode, measure,
// step the bitrate toward the target band, repeat within the attempt budget.
func (e *Executor) encodeTuned(ctx context.Context, req *Request) (*Result, error) {
	band := *req.Params.VmafTarget
	bitrate := req.StartBitrateKbps
	if bitrate == 0 && req.Params.BitrateKbps != nil {
		bitrate = *req.Params.BitrateKbps
	}
	if bitrate == 0 {
		bitrate = defaultStartKbps
	}
	bitrate = e.controller.Clamp(bitrate)

	result := &Result{}
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		ladder := e.controller.Override(bitrate)
		run, err := e.runAttempt(ctx, req, &ladder)
		if err != nil {
			return nil, err
		}
		if run.PeakRSSBytes > result.PeakRSSBytes {
			result.PeakRSSBytes = run.PeakRSSBytes
		}

		score, err := e.evaluator.Evaluate(ctx, req.JobID, req.Output, req.Reference, req.Slice, req.spanDuration())
		if err != nil {
			// The loop steers on the score; without one the job
			// cannot continue.
			return nil, fmt.Errorf("quality evaluation on attempt %d: %w", attempt, err)
		}

		result.Attempts = append(result.Attempts, models.AttemptRecord{
			Attempt:     attempt,
			BitrateKbps: bitrate,
			Score:       *score,
		})
		result.Score = score
		result.FinalBitrateKbps = bitrate

		if req.Recorder != nil {
			req.Recorder.Event("attempt %d at %dk scored vmaf %.3f (target %.1f..%.1f)",
				attempt, bitrate, score.Mean, band.Min, band.Max)
		}

		if band.Contains(score.Mean) {
			return result, nil
		}

		next := e.controller.Next(bitrate, score.Mean, band)
		if next == 0 {
			// Pinned against a bitrate bound; no further step can
			// move the score.
			break
		}
		bitrate = next
	}

	result.Note = fmt.Sprintf("quality target %.1f..%.1f not reached within %d attempts; best effort kept",
		band.Min, band.Max, e.maxAttempts)
	if req.Recorder != nil {
		req.Recorder.Event("%s", result.Note)
	}
	return result, nil
}

// runAttempt builds and runs one ffmpeg invocation.
func (e *Executor) runAttempt(ctx context.Context, req *Request, ladder *encoding.Ladder) (*ffmpeg.Result, error) {
	var forceKF *float64
	if req.Slice != nil {
		forceKF = &req.Slice.Start
	}

	args := BuildArgs(AttemptSpec{
		Input:           req.Input,
		Output:          req.Output,
		Slice:           req.Slice,
		Selection:       req.Selection,
		Ladder:          ladder,
		ScaleArgs:       req.ScaleArgs,
		Gop:             e.gop,
		ForceKeyFrameAt: forceKF,
		ExtraArgs:       req.Params.ExtraArgs,
	})

	if req.Recorder != nil {
		req.Recorder.Command("ffmpeg", args)
	}

	run, err := e.runner.Run(ctx, ffmpeg.Command{
		JobID:         req.JobID,
		Args:          args,
		MediaDuration: req.spanDuration(),
		Progress:      req.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", req.Output, err)
	}
	return run, nil
}
