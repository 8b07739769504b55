package encoding

import (
	"path/filepath"
	"strings"
)

// AudioArgs returns the audio encode arguments for an output path.
// WebM containers cannot carry AAC, so .webm outputs get Vorbis; everything
// else gets AAC at the same bitrate.
func AudioArgs(outputPath string) []string {
	ext := strings.ToLower(filepath.Ext(outputPath))
	if ext == ".webm" {
		return []string{"-c:a", "libvorbis", "-b:a", "128k"}
	}
	return []string{"-c:a", "aac", "-b:a", "128k"}
}
