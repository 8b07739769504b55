package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4.vmaf.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseVmafReportAggregate(t *testing.T) {
	path := writeReport(t, `{
		"frames": [
			{"metrics": {"vmaf": 88.12345}},
			{"metrics": {"vmaf": 99.94}},
			{"metrics": {"vmaf": 93.5}}
		],
		"aggregate": {"vmaf": 93.854321}
	}`)

	score, err := parseVmafReport(path)
	require.NoError(t, err)
	assert.InDelta(t, 93.854, score.Mean, 0.0001)
	assert.InDelta(t, 88.123, score.Min, 0.0001)
	assert.InDelta(t, 99.94, score.Max, 0.0001)
}

func TestParseVmafReportPooledMetrics(t *testing.T) {
	path := writeReport(t, `{
		"pooled_metrics": {
			"vmaf": {"mean": 94.5678, "min": 80.1234, "max": 100.0}
		}
	}`)

	score, err := parseVmafReport(path)
	require.NoError(t, err)
	assert.InDelta(t, 94.568, score.Mean, 0.0001)
	assert.InDelta(t, 80.123, score.Min, 0.0001)
	assert.InDelta(t, 100.0, score.Max, 0.0001)
}

func TestParseVmafReportErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := parseVmafReport(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrVmafReport)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseVmafReport(writeReport(t, "{not json"))
		assert.ErrorIs(t, err, ErrVmafReport)
	})

	t.Run("no aggregate score", func(t *testing.T) {
		_, err := parseVmafReport(writeReport(t, `{"frames": []}`))
		assert.ErrorIs(t, err, ErrVmafNoScore)
	})
}

func TestFilterGraph(t *testing.T) {
	e := NewEvaluator(nil, nil, "vmaf_v0.6.1", 4, 1, nil)

	graph := e.filterGraph(1920, 1080, false, "/tmp/log.json")
	assert.Equal(t,
		"[0:v]setpts=PTS-STARTPTS[dist];"+
			"[1:v]setpts=PTS-STARTPTS[ref];"+
			"[dist][ref]libvmaf=model=version=vmaf_v0.6.1:n_threads=4:log_fmt=json:log_path=/tmp/log.json",
		graph)

	rescaled := e.filterGraph(1280, 720, true, "/tmp/log.json")
	assert.Contains(t, rescaled, "[1:v]scale=1280:720:flags=bicubic,setpts=PTS-STARTPTS[ref]")
}

func TestFilterGraphSubsample(t *testing.T) {
	e := NewEvaluator(nil, nil, "vmaf_v0.6.1", 0, 4, nil)
	graph := e.filterGraph(640, 480, false, "log.json")
	assert.Contains(t, graph, ":n_subsample=4")
	assert.NotContains(t, graph, "n_threads")
}
