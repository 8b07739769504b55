package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
		ok   bool
	}{
		{
			"status line",
			"frame=  120 fps= 30 q=28.0 size=     512kB time=00:01:23.45 bitrate= 502.1kbits/s speed=1.2x",
			83.45, true,
		},
		{"plain seconds", "time=00:00:05.00", 5.0, true},
		{"hours", "time=01:02:03.50", 3723.5, true},
		{"no fraction", "time=00:00:10", 10.0, true},
		{"no time field", "frame= 120 fps=30", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseClock(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParseSceneCuts(t *testing.T) {
	stderr := `[Parsed_showinfo_1 @ 0x5555] n:   0 pts:  48048 pts_time:2.002 pos: 1234
[Parsed_showinfo_1 @ 0x5555] n:   1 pts: 120120 pts_time:5.005 pos: 5678
some unrelated line
[Parsed_showinfo_1 @ 0x5555] n:   2 pts: 240240 pts_time:10 pos: 9012`

	cuts := ParseSceneCuts(stderr)
	assert.Equal(t, []float64{2.002, 5.005, 10}, cuts)

	assert.Nil(t, ParseSceneCuts("no cuts here"))
}

func TestParseEncoderList(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder
 A....D aac                  AAC (Advanced Audio Coding)
 not an encoder line`

	encoders := parseEncoderList(output)
	assert.Contains(t, encoders, "libx264")
	assert.Contains(t, encoders, "h264_nvenc")
	assert.Contains(t, encoders, "aac")
	assert.NotContains(t, encoders, "not")
}

func TestEncoderSetUnprobedAcceptsAll(t *testing.T) {
	s := NewEncoderSet()
	assert.True(t, s.Has("anything_at_all"))
}
