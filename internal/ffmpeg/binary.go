// Package ffmpeg provides process supervision, probing, scene detection and
// quality evaluation on top of the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ResolveBinary resolves a configured binary name or path to an executable.
// Absolute and relative paths are checked directly; bare names are looked up
// on PATH.
func ResolveBinary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("binary name is empty")
	}

	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		info, err := os.Stat(name)
		if err != nil {
			return "", fmt.Errorf("binary %q: %w", name, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("binary %q is a directory", name)
		}
		return name, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found on PATH: %w", name, err)
	}
	return path, nil
}
