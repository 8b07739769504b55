package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/vefmedia/vef/internal/models"
)

// Quality evaluation errors. ErrCanceled and ErrTimeout from the supervisor
// pass through unwrapped.
var (
	// ErrVmafProcess indicates the analysis run itself failed.
	ErrVmafProcess = errors.New("vmaf analysis failed")
	// ErrVmafReport indicates the JSON report could not be parsed.
	ErrVmafReport = errors.New("vmaf report malformed")
	// ErrVmafNoScore indicates a parsed report without an aggregate score.
	ErrVmafNoScore = errors.New("vmaf report has no aggregate score")
)

// vmafReport mirrors the libvmaf JSON log. Older builds emit "aggregate",
// newer ones "pooled_metrics"; both are accepted.
type vmafReport struct {
	Frames []struct {
		Metrics struct {
			Vmaf float64 `json:"vmaf"`
		} `json:"metrics"`
	} `json:"frames"`
	Aggregate struct {
		Vmaf *float64 `json:"vmaf"`
	} `json:"aggregate"`
	PooledMetrics struct {
		Vmaf struct {
			Mean *float64 `json:"mean"`
			Min  *float64 `json:"min"`
			Max  *float64 `json:"max"`
		} `json:"vmaf"`
	} `json:"pooled_metrics"`
}

// Evaluator measures the perceptual quality of an encoded file against its
// reference using ffmpeg's libvmaf filter.
type Evaluator struct {
	supervisor *Supervisor
	prober     *Prober
	model      string
	threads    int
	subsample  int
	logger     *slog.Logger
}

// NewEvaluator creates a quality evaluator.
func NewEvaluator(supervisor *Supervisor, prober *Prober, model string, threads, subsample int, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		supervisor: supervisor,
		prober:     prober,
		model:      model,
		threads:    threads,
		subsample:  subsample,
		logger:     logger,
	}
}

// Evaluate compares distorted against reference and returns the aggregate
// score rounded to three decimals. When the two files differ in resolution
// the reference is rescaled to the distorted dimensions, since libvmaf
// requires matching frames. refSlice, when non-nil, trims the reference to
// the given range so a scene encode is compared against its own source
// footage. duration sizes the run budget.
func (e *Evaluator) Evaluate(ctx context.Context, jobID, distorted, reference string, refSlice *Span, duration float64) (*models.VmafScore, error) {
	distW, distH, err := e.prober.Resolution(ctx, distorted)
	if err != nil {
		return nil, fmt.Errorf("probing distorted file: %w", err)
	}
	refW, refH, err := e.prober.Resolution(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("probing reference file: %w", err)
	}

	logPath := distorted + ".vmaf.json"
	defer os.Remove(logPath)

	graph := e.filterGraph(distW, distH, refW != distW || refH != distH, logPath)

	args := []string{"-hide_banner", "-i", distorted}
	if refSlice != nil {
		args = append(args,
			"-ss", formatSeconds(refSlice.Start),
			"-t", formatSeconds(refSlice.Duration()),
		)
	}
	args = append(args,
		"-i", reference,
		"-filter_complex", graph,
		"-f", "null", "-",
	)

	_, err = e.supervisor.Run(ctx, Command{
		JobID:         jobID,
		Args:          args,
		MediaDuration: duration,
	})
	if err != nil {
		if errors.Is(err, ErrCanceled) || errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrVmafProcess, err)
	}

	score, err := parseVmafReport(logPath)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("quality evaluation complete",
		slog.String("job_id", jobID),
		slog.Float64("vmaf_mean", score.Mean),
		slog.Float64("vmaf_min", score.Min),
		slog.Float64("vmaf_max", score.Max),
	)
	return score, nil
}

// filterGraph builds the libvmaf filter graph. Both inputs get their
// timestamps rebased so slice encodes starting mid-file still align.
func (e *Evaluator) filterGraph(width, height int, rescale bool, logPath string) string {
	var b strings.Builder
	b.WriteString("[0:v]setpts=PTS-STARTPTS[dist];")
	if rescale {
		fmt.Fprintf(&b, "[1:v]scale=%d:%d:flags=bicubic,setpts=PTS-STARTPTS[ref];", width, height)
	} else {
		b.WriteString("[1:v]setpts=PTS-STARTPTS[ref];")
	}
	fmt.Fprintf(&b, "[dist][ref]libvmaf=model=version=%s", e.model)
	if e.threads > 0 {
		fmt.Fprintf(&b, ":n_threads=%d", e.threads)
	}
	if e.subsample > 1 {
		fmt.Fprintf(&b, ":n_subsample=%d", e.subsample)
	}
	fmt.Fprintf(&b, ":log_fmt=json:log_path=%s", logPath)
	return b.String()
}

// parseVmafReport reads the JSON log and extracts {mean, min, max}. The mean
// comes from the aggregate (or pooled) section; min and max fall back to a
// per-frame scan when the report carries frames.
func parseVmafReport(path string) (*models.VmafScore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrVmafReport, path, err)
	}

	var report vmafReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVmafReport, err)
	}

	score := &models.VmafScore{}
	switch {
	case report.PooledMetrics.Vmaf.Mean != nil:
		score.Mean = *report.PooledMetrics.Vmaf.Mean
		if report.PooledMetrics.Vmaf.Min != nil {
			score.Min = *report.PooledMetrics.Vmaf.Min
		}
		if report.PooledMetrics.Vmaf.Max != nil {
			score.Max = *report.PooledMetrics.Vmaf.Max
		}
	case report.Aggregate.Vmaf != nil:
		score.Mean = *report.Aggregate.Vmaf
	default:
		return nil, ErrVmafNoScore
	}

	if len(report.Frames) > 0 && (score.Min == 0 && score.Max == 0) {
		min, max := math.Inf(1), math.Inf(-1)
		for _, f := range report.Frames {
			if f.Metrics.Vmaf < min {
				min = f.Metrics.Vmaf
			}
			if f.Metrics.Vmaf > max {
				max = f.Metrics.Vmaf
			}
		}
		score.Min, score.Max = min, max
	}

	score.Mean = round3(score.Mean)
	score.Min = round3(score.Min)
	score.Max = round3(score.Max)
	return score, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// formatSeconds renders a time value for ffmpeg arguments without trailing
// zeros.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
