package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/vefmedia/vef/internal/ffmpeg"
)

const segmentSeconds = 4

// Packager derives streaming outputs from a finished encode by remuxing the
// final file, never re-encoding it.
type Packager struct {
	runner Runner
	logger *slog.Logger
}

// NewPackager creates a Packager.
func NewPackager(runner Runner, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{runner: runner, logger: logger}
}

// HLS packages the output into <name>-hls/index.m3u8 plus segments and
// returns the playlist path. The written playlist is parsed back to confirm
// ffmpeg produced a valid VOD playlist with at least one segment.
func (p *Packager) HLS(ctx context.Context, jobID, outputPath string, duration float64, rec *Recorder) (string, error) {
	dir := derivedDir(outputPath, "hls")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating hls directory: %w", err)
	}
	manifest := filepath.Join(dir, "index.m3u8")

	args := []string{
		"-y", "-hide_banner",
		"-i", outputPath,
		"-codec", "copy",
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_playlist_type", "vod",
		manifest,
	}
	if rec != nil {
		rec.Command("ffmpeg", args)
	}

	if _, err := p.runner.Run(ctx, ffmpeg.Command{
		JobID:         jobID,
		Args:          args,
		MediaDuration: duration,
	}); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("hls packaging: %w", err)
	}

	if err := validateMediaPlaylist(manifest); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("hls packaging: %w", err)
	}
	return manifest, nil
}

// DASH packages the output into <name>-dash/manifest.mpd plus segments and
// returns the manifest path.
func (p *Packager) DASH(ctx context.Context, jobID, outputPath string, duration float64, rec *Recorder) (string, error) {
	dir := derivedDir(outputPath, "dash")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating dash directory: %w", err)
	}
	manifest := filepath.Join(dir, "manifest.mpd")

	args := []string{
		"-y", "-hide_banner",
		"-i", outputPath,
		"-c", "copy",
		"-f", "dash",
		"-seg_duration", fmt.Sprintf("%d", segmentSeconds),
		manifest,
	}
	if rec != nil {
		rec.Command("ffmpeg", args)
	}

	if _, err := p.runner.Run(ctx, ffmpeg.Command{
		JobID:         jobID,
		Args:          args,
		MediaDuration: duration,
	}); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("dash packaging: %w", err)
	}

	if _, err := os.Stat(manifest); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("dash packaging: manifest missing: %w", err)
	}
	return manifest, nil
}

// validateMediaPlaylist parses an m3u8 file and checks it is a media
// playlist with at least one segment.
func validateMediaPlaylist(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading playlist: %w", err)
	}
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("parsing playlist: %w", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return fmt.Errorf("unexpected playlist type %T", pl)
	}
	if len(media.Segments) == 0 {
		return fmt.Errorf("playlist %q has no segments", path)
	}
	return nil
}

// derivedDir returns the directory for a derived output kind, e.g.
// movie-abc.mp4 -> movie-abc-hls.
func derivedDir(outputPath, kind string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "-" + kind
}
