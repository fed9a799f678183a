// Package v4l2 drives UVC and other Video4Linux2 cameras through go4vl. The
// hardware has no frame filters or trigger input, so Rotate Flip and ROI are
// applied in software and the software trigger gates the free-running stream:
// with trigger mode enabled, only the first frame after each trigger is
// delivered to the frame callback.
//
// The backend registers itself as "v4l2" on linux.
package v4l2

import (
	"math"
	"sync"
)

const (
	Name = "v4l2"

	DefaultWidth  = 720
	DefaultHeight = 540
	DefaultFPS    = 30

	// exposure_time_absolute counts in 100us units
	exposureUnit = 1e-4

	ctrlExposureAuto     = 0x009a0901
	ctrlExposureAbsolute = 0x009a0902
	exposureManual       = 1
)

// exposureToCtrl converts seconds into the exposure_time_absolute value.
func exposureToCtrl(seconds float64) int32 {
	v := math.Round(seconds / exposureUnit)
	if v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

func ctrlToExposure(v int32) float64 {
	return float64(v) * exposureUnit
}

// gate lets frames through unconditionally while disabled, and one frame per
// armed trigger while enabled.
type gate struct {
	lock    sync.Mutex
	enabled bool
	pending int
}

func (g *gate) enable(on bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.enabled = on
	g.pending = 0
}

func (g *gate) isEnabled() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.enabled
}

func (g *gate) arm() {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.enabled {
		g.pending++
	}
}

func (g *gate) take() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.enabled {
		return true
	}
	if g.pending == 0 {
		return false
	}
	g.pending--

	return true
}
