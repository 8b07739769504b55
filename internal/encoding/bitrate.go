package encoding

import (
	"fmt"
	"math"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/models"
)

// Ladder is a fully derived average-bitrate setting for one encode attempt.
type Ladder struct {
	BitrateKbps int
	MinrateKbps int
	MaxrateKbps int
	BufsizeKbps int
}

// Args returns the ladder as ffmpeg rate-control arguments.
func (l Ladder) Args() []string {
	return []string{
		"-b:v", fmt.Sprintf("%dk", l.BitrateKbps),
		"-minrate", fmt.Sprintf("%dk", l.MinrateKbps),
		"-maxrate", fmt.Sprintf("%dk", l.MaxrateKbps),
		"-bufsize", fmt.Sprintf("%dk", l.BufsizeKbps),
	}
}

// Controller derives bitrate ladders and proposes tuning steps. It holds no
// mutable state; every method is a pure function of its inputs and the
// configured factors.
type Controller struct {
	minKbps        int
	maxKbps        int
	increaseFactor float64
	decreaseFactor float64
	minrateFactor  float64
	maxrateFactor  float64
	bufsizeFactor  float64
}

// NewController builds a Controller from configuration.
func NewController(vmaf config.VmafConfig, abr config.AbrConfig) *Controller {
	return &Controller{
		minKbps:        vmaf.MinBitrateKbps,
		maxKbps:        vmaf.MaxBitrateKbps,
		increaseFactor: vmaf.IncreaseFactor,
		decreaseFactor: vmaf.DecreaseFactor,
		minrateFactor:  abr.MinrateFactor,
		maxrateFactor:  abr.MaxrateFactor,
		bufsizeFactor:  abr.BufsizeFactor,
	}
}

// Clamp bounds a bitrate to the configured range.
func (c *Controller) Clamp(kbps int) int {
	return clampInt(kbps, c.minKbps, c.maxKbps)
}

// Override clamps the requested bitrate and derives the minrate, maxrate and
// bufsize values from the configured factors.
func (c *Controller) Override(kbps int) Ladder {
	b := c.Clamp(kbps)
	return Ladder{
		BitrateKbps: b,
		MinrateKbps: roundKbps(float64(b) * c.minrateFactor),
		MaxrateKbps: roundKbps(float64(b) * c.maxrateFactor),
		BufsizeKbps: roundKbps(float64(b) * c.bufsizeFactor),
	}
}

// Next proposes the bitrate for the following tuning attempt given the
// measured score and the target band. It returns 0 when no further attempt
// is useful: the score is already in band, or the clamped proposal would
// repeat the current bitrate.
func (c *Controller) Next(currentKbps int, score float64, band models.VmafBand) int {
	var proposed int
	switch {
	case score < band.Min:
		proposed = roundKbps(float64(currentKbps) * c.increaseFactor)
	case score > band.Max:
		proposed = roundKbps(float64(currentKbps) * c.decreaseFactor)
	default:
		return 0
	}

	proposed = c.Clamp(proposed)
	if proposed == currentKbps {
		return 0
	}
	return proposed
}

func roundKbps(v float64) int {
	return int(math.Round(v))
}
