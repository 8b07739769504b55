package encoding

import (
	"errors"
	"fmt"
)

// ErrUnknownResolution indicates a resolution name outside the preset list.
var ErrUnknownResolution = errors.New("unknown resolution")

// resolutionHeights maps resolution names to target heights. Width follows
// the source aspect ratio, rounded to an even value as most encoders require.
var resolutionHeights = map[string]int{
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

// ResolutionNames lists the accepted resolution names for the options
// endpoint, in descending quality order.
var ResolutionNames = []string{"source", "1080p", "720p", "480p", "360p"}

// ScaleArgs returns the -vf scale arguments for a named resolution.
// "source" and the empty string produce no arguments.
func ScaleArgs(resolution string) ([]string, error) {
	if resolution == "" || resolution == "source" {
		return nil, nil
	}
	height, ok := resolutionHeights[resolution]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResolution, resolution)
	}
	return []string{"-vf", fmt.Sprintf("scale=-2:%d", height)}, nil
}
