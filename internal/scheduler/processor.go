// Package scheduler runs the single-flight job loop: one transcode at a
// time, picked oldest-first from the queue, with crash recovery at startup.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/encoding"
	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/observability"
	"github.com/vefmedia/vef/internal/transcode"
)

// defaultSceneThreshold is the scene-change score used when a job does not
// set its own.
const defaultSceneThreshold = 0.4

// MediaProber extracts stream information from an input file.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// InputFetcher localizes remote inputs.
type InputFetcher interface {
	Fetch(ctx context.Context, jobID, rawURL string) (string, func(), error)
}

// OutputPackager derives streaming renditions from the final output.
type OutputPackager interface {
	HLS(ctx context.Context, jobID, outputPath string, duration float64, rec *transcode.Recorder) (string, error)
	DASH(ctx context.Context, jobID, outputPath string, duration float64, rec *transcode.Recorder) (string, error)
}

// Processor executes one job end to end: localize input, probe, resolve the
// encoder, encode (whole-file or scene by scene), package derived outputs.
type Processor struct {
	prober   MediaProber
	fetcher  InputFetcher
	executor *transcode.Executor
	pipeline *transcode.ScenePipeline
	packager OutputPackager
	encoders *ffmpeg.EncoderSet
	logger   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(prober MediaProber, fetcher InputFetcher, executor *transcode.Executor, pipeline *transcode.ScenePipeline, packager OutputPackager, encoders *ffmpeg.EncoderSet, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "processor")
	return &Processor{
		prober:   prober,
		fetcher:  fetcher,
		executor: executor,
		pipeline: pipeline,
		packager: packager,
		encoders: encoders,
		logger:   logger,
	}
}

// Process runs the job and returns its final metrics. report receives
// progress percentages; check is consulted between pipeline stages so an
// externally observed cancellation stops the job. The execution trace is
// flushed next to the output file regardless of outcome.
func (p *Processor) Process(ctx context.Context, job *models.Job, report func(int), check transcode.StatusCheck) (*models.Metrics, error) {
	payload, _ := json.Marshal(job.Params)
	rec := transcode.NewRecorder(string(payload))
	defer func() {
		if err := rec.Flush(job.OutputPath); err != nil {
			p.logger.Warn("flushing execution trace",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()

	metrics, err := p.process(ctx, job, rec, report, check)
	if err != nil {
		rec.Error(err)
		return nil, err
	}
	return metrics, nil
}

func (p *Processor) process(ctx context.Context, job *models.Job, rec *transcode.Recorder, report func(int), check transcode.StatusCheck) (*models.Metrics, error) {
	jobID := job.ID.String()

	input := job.InputPath
	if transcode.IsRemote(input) {
		rec.Event("downloading %s", input)
		local, cleanup, err := p.fetcher.Fetch(ctx, jobID, input)
		if err != nil {
			return nil, fmt.Errorf("fetching input: %w", err)
		}
		defer cleanup()
		input = local
	}

	info, err := p.prober.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("probing input: %w", err)
	}
	rec.Event("probed %s: %.2fs %dx%d %s",
		filepath.Base(input), info.DurationSec, info.Width, info.Height, info.VideoCodec)

	selection, err := encoding.Resolve(&job.Params, p.encoders.Has)
	if err != nil {
		return nil, err
	}
	scaleArgs, err := encoding.ScaleArgs(job.Params.Resolution)
	if err != nil {
		return nil, err
	}
	rec.Event("resolved encoder %s profile %s preset %s",
		selection.Encoder.Name, selection.Profile, selection.Preset)

	req := &transcode.Request{
		JobID:         jobID,
		Input:         input,
		Output:        job.OutputPath,
		Reference:     input,
		Params:        &job.Params,
		Selection:     selection,
		ScaleArgs:     scaleArgs,
		MediaDuration: info.DurationSec,
		Progress: &ffmpeg.Progress{
			SpanSeconds:  info.DurationSec,
			ScalePercent: 99,
			Report:       report,
		},
		Recorder: rec,
	}

	metrics := &models.Metrics{}
	if job.Params.SceneSplit {
		threshold := job.Params.SceneThreshold
		if threshold == 0 {
			threshold = defaultSceneThreshold
		}
		result, scenes, err := p.pipeline.Run(ctx, req, threshold, check)
		if err != nil {
			return nil, err
		}
		fillMetrics(metrics, result)
		metrics.Scenes = scenes
	} else {
		result, err := p.executor.Encode(ctx, req)
		if err != nil {
			return nil, err
		}
		fillMetrics(metrics, result)
		metrics.Attempts = result.Attempts
	}

	if err := p.packageOutputs(ctx, job, info.DurationSec, rec, check); err != nil {
		return nil, err
	}

	return metrics, nil
}

// packageOutputs derives streaming renditions from the final output file.
// Scene-mode jobs always get both renditions; whole-file jobs opt in per
// format.
func (p *Processor) packageOutputs(ctx context.Context, job *models.Job, duration float64, rec *transcode.Recorder, check transcode.StatusCheck) error {
	hls := job.Params.HLS || job.Params.SceneSplit
	dash := job.Params.DASH || job.Params.SceneSplit
	if !hls && !dash {
		return nil
	}
	if check != nil {
		if err := check(ctx); err != nil {
			return err
		}
	}

	jobID := job.ID.String()
	if hls {
		manifest, err := p.packager.HLS(ctx, jobID, job.OutputPath, duration, rec)
		if err != nil {
			return err
		}
		rec.Event("hls rendition at %s", manifest)
	}
	if dash {
		manifest, err := p.packager.DASH(ctx, jobID, job.OutputPath, duration, rec)
		if err != nil {
			return err
		}
		rec.Event("dash rendition at %s", manifest)
	}
	return nil
}

func fillMetrics(m *models.Metrics, r *transcode.Result) {
	m.SizeBytes = r.SizeBytes
	m.EncodeDurationSec = r.EncodeDurationSec
	m.EncodeEfficiency = r.EncodeEfficiency
	m.FinalBitrateKbps = r.FinalBitrateKbps
	m.Vmaf = r.Score
	m.SceneAggregate = r.SceneAggregate
	m.VmafError = r.VmafError
	m.PeakRSSBytes = r.PeakRSSBytes
	m.Note = r.Note
}

// BuildProcessor wires the full processing stack from configuration. The
// supervisor, registry and encoder set are shared with the HTTP layer, which
// needs them for cancellation and the options endpoint.
func BuildProcessor(cfg *config.Config, supervisor *ffmpeg.Supervisor, encoders *ffmpeg.EncoderSet, logger *slog.Logger) *Processor {
	prober := ffmpeg.NewProber(cfg.FFmpeg.Probe)
	evaluator := ffmpeg.NewEvaluator(supervisor, prober,
		cfg.Vmaf.ModelVersion, cfg.Vmaf.Threads, cfg.Vmaf.Subsample, logger)
	controller := encoding.NewController(cfg.Vmaf, cfg.Abr)

	executor := transcode.NewExecutor(supervisor, evaluator, controller,
		cfg.Encoding, cfg.Vmaf.MaxAttempts, logger)
	detector := ffmpeg.NewSceneDetector(supervisor)
	pipeline := transcode.NewScenePipeline(executor, detector, supervisor, evaluator, logger)
	packager := transcode.NewPackager(supervisor, logger)
	fetcher := transcode.NewFetcher(cfg.Storage.DownloadsPath(), logger)

	return NewProcessor(prober, fetcher, executor, pipeline, packager, encoders, logger)
}
