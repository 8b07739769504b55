package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/models"
)

func testController() *Controller {
	return NewController(
		config.VmafConfig{
			MinBitrateKbps: 200,
			MaxBitrateKbps: 80000,
			IncreaseFactor: 1.25,
			DecreaseFactor: 0.85,
		},
		config.AbrConfig{
			MinrateFactor: 0.7,
			MaxrateFactor: 1.15,
			BufsizeFactor: 2.0,
		},
	)
}

func TestOverrideDerivesLadder(t *testing.T) {
	ladder := testController().Override(1000)
	assert.Equal(t, Ladder{
		BitrateKbps: 1000,
		MinrateKbps: 700,
		MaxrateKbps: 1150,
		BufsizeKbps: 2000,
	}, ladder)
}

func TestOverrideClamps(t *testing.T) {
	c := testController()

	low := c.Override(50)
	assert.Equal(t, 200, low.BitrateKbps)
	assert.Equal(t, 140, low.MinrateKbps)

	high := c.Override(200000)
	assert.Equal(t, 80000, high.BitrateKbps)
	assert.Equal(t, 92000, high.MaxrateKbps)
}

func TestLadderArgs(t *testing.T) {
	args := testController().Override(1000).Args()
	assert.Equal(t, []string{
		"-b:v", "1000k",
		"-minrate", "700k",
		"-maxrate", "1150k",
		"-bufsize", "2000k",
	}, args)
}

func TestNextProposals(t *testing.T) {
	c := testController()
	band := models.VmafBand{Min: 90, Max: 95}

	tests := []struct {
		name    string
		current int
		score   float64
		want    int
	}{
		{"below band increases", 1000, 85, 1250},
		{"above band decreases", 1000, 97, 850},
		{"in band stops", 1000, 92, 0},
		{"at band edges stops", 1000, 90, 0},
		{"capped at max stops repeating", 80000, 85, 0},
		{"floored at min stops repeating", 200, 99, 0},
		{"increase is capped", 70000, 85, 80000},
		{"decrease is floored", 220, 99, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Next(tt.current, tt.score, band))
		})
	}
}

func TestNextIsMonotonicTowardBand(t *testing.T) {
	c := testController()
	band := models.VmafBand{Min: 90, Max: 95}

	// A score below the band must never propose a lower bitrate, and a
	// score above must never propose a higher one.
	for _, current := range []int{200, 500, 1000, 5000, 20000, 79999} {
		if next := c.Next(current, 80, band); next != 0 {
			assert.Greater(t, next, current)
		}
		if next := c.Next(current, 99, band); next != 0 {
			assert.Less(t, next, current)
		}
	}
}
