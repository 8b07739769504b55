package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/encoding"
	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
)

// fakeRunner records every invocation and optionally writes the output file
// so size accounting has something to stat.
type fakeRunner struct {
	calls       [][]string
	err         error
	writeOutput bool
	peakRSS     uint64
}

func (f *fakeRunner) Run(_ context.Context, cmd ffmpeg.Command) (*ffmpeg.Result, error) {
	f.calls = append(f.calls, cmd.Args)
	if f.err != nil {
		return nil, f.err
	}
	if f.writeOutput && len(cmd.Args) > 0 {
		out := cmd.Args[len(cmd.Args)-1]
		if out != "-" {
			_ = os.WriteFile(out, []byte("encoded"), 0o644)
		}
	}
	return &ffmpeg.Result{PeakRSSBytes: f.peakRSS}, nil
}

// fakeEvaluator returns a scripted sequence of mean scores and records the
// distorted path of every measurement.
type fakeEvaluator struct {
	scores    []float64
	err       error
	errOnCall int
	calls     int
	distorted []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _, distorted, _ string, _ *ffmpeg.Span, _ float64) (*models.VmafScore, error) {
	f.calls++
	f.distorted = append(f.distorted, distorted)
	if f.err != nil {
		return nil, f.err
	}
	if f.errOnCall > 0 && f.calls == f.errOnCall {
		return nil, fmt.Errorf("evaluation failed on call %d", f.calls)
	}
	idx := f.calls - 1
	if idx >= len(f.scores) {
		idx = len(f.scores) - 1
	}
	mean := f.scores[idx]
	return &models.VmafScore{Mean: mean, Min: mean - 2, Max: mean + 2}, nil
}

func testController() *encoding.Controller {
	return encoding.NewController(
		config.VmafConfig{
			MaxAttempts:    5,
			MinBitrateKbps: 200,
			MaxBitrateKbps: 80000,
			IncreaseFactor: 1.25,
			DecreaseFactor: 0.85,
		},
		config.AbrConfig{
			MinrateFactor: 0.7,
			MaxrateFactor: 1.15,
			BufsizeFactor: 2.0,
		},
	)
}

func testGop() config.EncodingConfig {
	return config.EncodingConfig{GopLength: 60, KeyintMin: 30, ScThreshold: 0}
}

func mustSelection(t *testing.T, params *models.EncodeParams) *encoding.Selection {
	t.Helper()
	sel, err := encoding.Resolve(params, encoding.AllAvailable)
	require.NoError(t, err)
	return sel
}

func newTestExecutor(runner Runner, evaluator QualityEvaluator) *Executor {
	return NewExecutor(runner, evaluator, testController(), testGop(), 5, nil)
}

func vmafParams(min, max float64) *models.EncodeParams {
	return &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlVmaf,
		VmafTarget:  &models.VmafBand{Min: min, Max: max},
	}
}

func TestEncodeTunedConvergesWithinBand(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	// First attempt at 2500k scores below band, second at 3125k lands.
	eval := &fakeEvaluator{scores: []float64{80, 88}}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(86, 92)
	out := filepath.Join(t.TempDir(), "out.mp4")
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job1",
		Input:         "in.mp4",
		Output:        out,
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, 2500, result.Attempts[0].BitrateKbps)
	assert.Equal(t, 3125, result.Attempts[1].BitrateKbps)
	assert.Equal(t, 3125, result.FinalBitrateKbps)
	assert.InDelta(t, 88, result.Score.Mean, 0.001)
	assert.Empty(t, result.Note)
	assert.Empty(t, result.VmafError)
	assert.Len(t, runner.calls, 2)
	assert.Greater(t, result.SizeBytes, int64(0))
}

func TestEncodeTunedExhaustsAttemptBudget(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{80}}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(95, 99)
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job2",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	assert.Len(t, result.Attempts, 5)
	assert.NotEmpty(t, result.Note)
	// Best effort is kept; the last attempt's bitrate wins.
	assert.Equal(t, result.Attempts[4].BitrateKbps, result.FinalBitrateKbps)
}

func TestEncodeTunedStopsAtBitrateCap(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{80}}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(95, 99)
	kbps := 80000
	params.BitrateKbps = &kbps
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job3",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	// Pinned at the cap: a single attempt, then the loop gives up.
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 80000, result.FinalBitrateKbps)
	assert.NotEmpty(t, result.Note)
}

func TestEncodeTunedCarriesStartBitrate(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{90}}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(86, 92)
	result, err := exec.Encode(context.Background(), &Request{
		JobID:            "job4",
		Input:            "in.mp4",
		Output:           filepath.Join(t.TempDir(), "out.mp4"),
		Reference:        "in.mp4",
		Params:           params,
		Selection:        mustSelection(t, params),
		MediaDuration:    60,
		StartBitrateKbps: 4000,
	})
	require.NoError(t, err)

	require.Len(t, result.Attempts, 1)
	assert.Equal(t, 4000, result.Attempts[0].BitrateKbps)
}

func TestEncodeTunedEvaluationFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{err: fmt.Errorf("no score")}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(86, 92)
	_, err := exec.Encode(context.Background(), &Request{
		JobID:         "job5",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality evaluation")
}

func TestEncodeOnceBitrateModeFoldsInQuality(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{91}}
	exec := newTestExecutor(runner, eval)

	kbps := 1000
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlBitrate,
		BitrateKbps: &kbps,
		EnableVmaf:  true,
	}
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job6",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, 1000, result.FinalBitrateKbps)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 91, result.Score.Mean, 0.001)
	assert.Empty(t, result.Attempts)

	require.Len(t, runner.calls, 1)
	args := runner.calls[0]
	assert.Contains(t, args, "-b:v")
	assert.Contains(t, args, "1000k")
}

func TestEncodeOnceQualityFailureIsNonFatal(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{err: fmt.Errorf("model missing")}
	exec := newTestExecutor(runner, eval)

	crf := 23
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlCRF,
		CRF:         &crf,
		EnableVmaf:  true,
	}
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job7",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Score)
	assert.Contains(t, result.VmafError, "model missing")
}

func TestEncodeOnceSkipsEvaluationUnlessRequested(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{90}}
	exec := newTestExecutor(runner, eval)

	crf := 23
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlCRF,
		CRF:         &crf,
	}
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job9",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, eval.calls)
	assert.Nil(t, result.Score)
	assert.Empty(t, result.VmafError)
}

func TestEncodeEfficiencyIsEncodeTimeOverDuration(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{90}}
	exec := newTestExecutor(runner, eval)

	crf := 23
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlCRF,
		CRF:         &crf,
	}
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job10",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	// A fake encode of 60s of media finishes in well under a second, so
	// encode time over media time must sit far below realtime.
	assert.Greater(t, result.EncodeEfficiency, 0.0)
	assert.Less(t, result.EncodeEfficiency, 1.0)
	assert.InDelta(t, result.EncodeDurationSec/60, result.EncodeEfficiency, 1e-9)
}

func TestEncodeReportsPeakEncoderMemory(t *testing.T) {
	runner := &fakeRunner{writeOutput: true, peakRSS: 512 << 20}
	eval := &fakeEvaluator{scores: []float64{90}}
	exec := newTestExecutor(runner, eval)

	params := vmafParams(86, 92)
	result, err := exec.Encode(context.Background(), &Request{
		JobID:         "job11",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(512<<20), result.PeakRSSBytes)
}

func TestEncodeProcessFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("exit status 1")}
	eval := &fakeEvaluator{scores: []float64{90}}
	exec := newTestExecutor(runner, eval)

	crf := 23
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlCRF,
		CRF:         &crf,
	}
	_, err := exec.Encode(context.Background(), &Request{
		JobID:         "job8",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "out.mp4"),
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 60,
	})
	require.Error(t, err)
	assert.Equal(t, 0, eval.calls)
}
