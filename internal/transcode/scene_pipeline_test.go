package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
)

type fakeDetector struct {
	spans []ffmpeg.Span
	err   error
}

func (f *fakeDetector) Timeline(context.Context, string, string, float64, float64) ([]ffmpeg.Span, error) {
	return f.spans, f.err
}

func threeScenes() []ffmpeg.Span {
	return []ffmpeg.Span{
		{Start: 0, End: 2},
		{Start: 2, End: 5},
		{Start: 5, End: 10},
	}
}

func newTestPipeline(runner Runner, eval QualityEvaluator, det TimelineDetector) *ScenePipeline {
	exec := newTestExecutor(runner, eval)
	return NewScenePipeline(exec, det, runner, eval, nil)
}

func TestScenePipelineCarriesBitrateAcrossScenes(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	// The first scene needs two attempts (80 then 88); later scenes start
	// at the carried bitrate and land immediately. The fifth measurement
	// scores the concatenated output.
	eval := &fakeEvaluator{scores: []float64{80, 88, 88, 88, 87}}
	pipe := newTestPipeline(runner, eval, &fakeDetector{spans: threeScenes()})

	out := filepath.Join(t.TempDir(), "movie.mp4")
	params := vmafParams(86, 92)
	result, scenes, err := pipe.Run(context.Background(), &Request{
		JobID:         "jobp1",
		Input:         "in.mp4",
		Output:        out,
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 10,
	}, 0.4, nil)
	require.NoError(t, err)

	require.Len(t, scenes, 3)
	assert.Equal(t, 1, scenes[0].Index)
	assert.Equal(t, 3, scenes[2].Index)
	assert.Equal(t, 3125, scenes[0].BitrateKbps)
	require.Len(t, scenes[1].Attempts, 1)
	assert.Equal(t, 3125, scenes[1].Attempts[0].BitrateKbps)
	assert.Equal(t, 3125, scenes[2].BitrateKbps)

	// Four encode attempts plus the concat pass.
	assert.Len(t, runner.calls, 5)
	concat := runner.calls[4]
	assert.Contains(t, concat, "concat")
	assert.Equal(t, out, concat[len(concat)-1])

	// The stitched file gets its own measurement against the full source.
	require.Len(t, eval.distorted, 5)
	assert.Equal(t, out, eval.distorted[4])
	require.NotNil(t, result.Score)
	assert.InDelta(t, 87, result.Score.Mean, 0.001)
	require.NotNil(t, result.SceneAggregate)
	assert.InDelta(t, 88, result.SceneAggregate.Mean, 0.001)
	assert.Equal(t, 3125, result.FinalBitrateKbps)
	assert.Greater(t, result.SizeBytes, int64(0))

	// The scenes working directory never outlives the run.
	_, statErr := os.Stat(SceneDir(out))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScenePipelineStatusCheckStopsBeforeNextScene(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{88}}
	pipe := newTestPipeline(runner, eval, &fakeDetector{spans: threeScenes()})

	canceled := fmt.Errorf("job canceled")
	checks := 0
	check := func(context.Context) error {
		checks++
		if checks > 1 {
			return canceled
		}
		return nil
	}

	out := filepath.Join(t.TempDir(), "movie.mp4")
	params := vmafParams(86, 92)
	_, _, err := pipe.Run(context.Background(), &Request{
		JobID:         "jobp2",
		Input:         "in.mp4",
		Output:        out,
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 10,
	}, 0.4, check)
	require.ErrorIs(t, err, canceled)
	// One scene encoded, then the check fired; no concat ran.
	assert.Len(t, runner.calls, 1)
	_, statErr := os.Stat(SceneDir(out))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScenePipelineSceneErrorsAreIndexed(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("exit status 1")}
	eval := &fakeEvaluator{scores: []float64{88}}
	pipe := newTestPipeline(runner, eval, &fakeDetector{spans: threeScenes()})

	params := vmafParams(86, 92)
	_, _, err := pipe.Run(context.Background(), &Request{
		JobID:         "jobp3",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "movie.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 10,
	}, 0.4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 1:")
}

func TestScenePipelineFinalEvaluationFailureIsNonFatal(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	// Three scenes score in-band on their first attempt; the fourth
	// measurement, against the concatenated output, fails.
	eval := &fakeEvaluator{scores: []float64{88}, errOnCall: 4}
	pipe := newTestPipeline(runner, eval, &fakeDetector{spans: threeScenes()})

	out := filepath.Join(t.TempDir(), "movie.mp4")
	params := vmafParams(86, 92)
	result, _, err := pipe.Run(context.Background(), &Request{
		JobID:         "jobp4",
		Input:         "in.mp4",
		Output:        out,
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 10,
	}, 0.4, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, result.VmafError)
	// The job still carries a score: the per-scene aggregate stands in.
	require.NotNil(t, result.Score)
	assert.InDelta(t, 88, result.Score.Mean, 0.001)
}

func TestScenePipelineSkipsFinalEvaluationWhenNoSceneScored(t *testing.T) {
	runner := &fakeRunner{writeOutput: true}
	eval := &fakeEvaluator{scores: []float64{88}}
	pipe := newTestPipeline(runner, eval, &fakeDetector{spans: threeScenes()})

	crf := 23
	params := &models.EncodeParams{
		Codec:       "h264",
		RateControl: models.RateControlCRF,
		CRF:         &crf,
		SceneSplit:  true,
	}
	result, _, err := pipe.Run(context.Background(), &Request{
		JobID:         "jobp5",
		Input:         "in.mp4",
		Output:        filepath.Join(t.TempDir(), "movie.mp4"),
		Reference:     "in.mp4",
		Params:        params,
		Selection:     mustSelection(t, params),
		MediaDuration: 10,
	}, 0.4, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, eval.calls)
	assert.Nil(t, result.Score)
	assert.Nil(t, result.SceneAggregate)
}

func TestAggregateScoresWeightsByDuration(t *testing.T) {
	timeline := []ffmpeg.Span{{Start: 0, End: 2}, {Start: 2, End: 10}}
	metrics := []models.SceneMetric{
		{Index: 1, Score: &models.VmafScore{Mean: 80, Min: 78, Max: 84}},
		{Index: 2, Score: &models.VmafScore{Mean: 90, Min: 85, Max: 95}},
	}

	agg := aggregateScores(timeline, metrics)
	require.NotNil(t, agg)
	// (80*2 + 90*8) / 10
	assert.InDelta(t, 88, agg.Mean, 0.001)
	assert.InDelta(t, 78, agg.Min, 0.001)
	assert.InDelta(t, 95, agg.Max, 0.001)
}

func TestAggregateScoresSkipsUnscoredScenes(t *testing.T) {
	timeline := []ffmpeg.Span{{Start: 0, End: 5}, {Start: 5, End: 10}}
	metrics := []models.SceneMetric{
		{Index: 1},
		{Index: 2, Score: &models.VmafScore{Mean: 92, Min: 90, Max: 94}},
	}

	agg := aggregateScores(timeline, metrics)
	require.NotNil(t, agg)
	assert.InDelta(t, 92, agg.Mean, 0.001)

	assert.Nil(t, aggregateScores(timeline, []models.SceneMetric{{Index: 1}, {Index: 2}}))
}

func TestSceneDir(t *testing.T) {
	assert.Equal(t, "/out/movie-scenes", SceneDir("/out/movie.mp4"))
	assert.Equal(t, "/out/movie-scenes", SceneDir("/out/movie"))
}
