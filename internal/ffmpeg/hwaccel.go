package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
)

// EncoderSet holds the encoder names a local ffmpeg build supports. It backs
// the resolver's availability check and the options endpoint's hardware
// annotations.
type EncoderSet struct {
	mu       sync.RWMutex
	encoders map[string]struct{}
	probed   bool
}

// NewEncoderSet creates an unprobed EncoderSet. Before Probe succeeds, Has
// accepts everything so a failed probe degrades to optimistic behavior
// instead of rejecting all hardware encoders.
func NewEncoderSet() *EncoderSet {
	return &EncoderSet{}
}

// Probe runs `ffmpeg -encoders` and records the supported encoder names.
func (s *EncoderSet) Probe(ctx context.Context, ffmpegPath string) error {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return err
	}

	encoders := parseEncoderList(string(output))

	s.mu.Lock()
	s.encoders = encoders
	s.probed = true
	s.mu.Unlock()
	return nil
}

// Has reports whether the encoder is supported. Unprobed sets accept every
// name.
func (s *EncoderSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.probed {
		return true
	}
	_, ok := s.encoders[name]
	return ok
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
// Each entry line looks like " V....D libx264   H.264 / AVC ...", with the
// list preceded by a "------" separator.
func parseEncoderList(output string) map[string]struct{} {
	encoders := make(map[string]struct{})
	inList := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[6:]))
		if len(fields) >= 1 && fields[0] != "" {
			encoders[fields[0]] = struct{}{}
		}
	}
	return encoders
}
