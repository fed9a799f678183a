// Package chain applies Rotate Flip and ROI filters in software, for backends
// whose hardware has neither.
package chain

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
)

var ErrLive = errors.New("frame filters can not change while live")

// Chain is an ordered list of frame filters. Filter parameters are read at
// apply time, so they may change after the filter was added.
type Chain struct {
	lock    sync.Mutex
	filters []sdk.Filter
}

// Create returns a parameter bag for one of the filters the chain knows how
// to apply.
func Create(name string) (sdk.Filter, error) {
	switch name {
	case sdk.FilterRotateFlip, sdk.FilterROI:
		return sdk.NewBasicFilter(name), nil
	}
	return nil, fmt.Errorf("%w: filter %q", sdk.ErrNotSupported, name)
}

func (c *Chain) Add(f sdk.Filter) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.filters = append(c.filters, f)
}

func (c *Chain) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.filters = nil
}

func (c *Chain) Names() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	res := make([]string, len(c.filters))
	for i, f := range c.filters {
		res[i] = f.Name()
	}

	return res
}

// Describe returns the geometry frames of sensor will have after the chain.
func (c *Chain) Describe(sensor sdk.ImageDescription) sdk.ImageDescription {
	c.lock.Lock()
	defer c.lock.Unlock()
	d := sensor
	for _, f := range c.filters {
		switch f.Name() {
		case sdk.FilterRotateFlip:
			if a, _ := f.Parameter(sdk.ParamRotationAngle); (a/90)%2 != 0 {
				d.Width, d.Height = d.Height, d.Width
			}
		case sdk.FilterROI:
			if v, ok := f.Parameter(sdk.ParamWidth); ok {
				d.Width = v
			}
			if v, ok := f.Parameter(sdk.ParamHeight); ok {
				d.Height = v
			}
		}
	}

	return d
}

// Apply runs v through every filter in order. The result never shares memory
// with v.
func (c *Chain) Apply(v *frame.View) (*frame.View, error) {
	c.lock.Lock()
	filters := append([]sdk.Filter(nil), c.filters...)
	c.lock.Unlock()

	var err error
	for _, f := range filters {
		switch f.Name() {
		case sdk.FilterRotateFlip:
			a, _ := f.Parameter(sdk.ParamRotationAngle)
			if v, err = v.Rotate(a); err != nil {
				return nil, err
			}
		case sdk.FilterROI:
			top, _ := f.Parameter(sdk.ParamTop)
			left, _ := f.Parameter(sdk.ParamLeft)
			w, ok := f.Parameter(sdk.ParamWidth)
			if !ok {
				w = v.Width - left
			}
			h, ok := f.Parameter(sdk.ParamHeight)
			if !ok {
				h = v.Height - top
			}
			if v, err = v.Crop(image.Rect(left, top, left+w, top+h)); err != nil {
				return nil, err
			}
		}
	}

	return v.Clone(), nil
}
