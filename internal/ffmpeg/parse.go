package ffmpeg

import (
	"regexp"
	"strconv"
)

// timeRe matches the clock position ffmpeg prints on its stderr status line,
// e.g. "frame= 120 fps= 30 ... time=00:01:23.45 bitrate=...".
var timeRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)

// ParseClock extracts the media position in seconds from a stderr status
// line. Returns false when the line carries no time= field.
func ParseClock(line string) (float64, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)

	total := hours*3600 + minutes*60 + seconds
	if m[4] != "" {
		frac, err := strconv.ParseFloat("0."+m[4], 64)
		if err == nil {
			total += frac
		}
	}
	return total, true
}

// ptsTimeRe matches showinfo frame lines produced by the scene-change select
// filter, e.g. "[Parsed_showinfo_1 @ 0x...] n: 0 pts: 12345 pts_time:4.8048".
var ptsTimeRe = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

// ParseSceneCuts extracts every pts_time value from scene-detection stderr
// output, in encounter order and without deduplication.
func ParseSceneCuts(stderr string) []float64 {
	matches := ptsTimeRe.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	cuts := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, v)
	}
	return cuts
}
