// Package sim is an in-process camera backend. It renders a deterministic gray
// pattern, honors the ROI and Rotate Flip filters and behaves like a hardware
// triggered camera when trigger mode is enabled.
package sim

import (
	"fmt"
	"sync"

	"ephys-cam/pkg/sdk"
)

const (
	Name = "sim"

	DefaultWidth  = 720
	DefaultHeight = 540
	DefaultFPS    = 30
	DefaultCount  = 4
)

func init() {
	sdk.Register(Name, func() (sdk.Library, error) {
		names := make([]string, DefaultCount)
		for i := range names {
			names[i] = fmt.Sprintf("SIM 37BUX287 %d", i)
		}
		return New(names...), nil
	})
}

type Library struct {
	lock    sync.Mutex
	devices []*Device
}

// New creates a library with one DefaultWidth x DefaultHeight device per name,
// enumerated in the given order.
func New(names ...string) *Library {
	l := &Library{}
	for _, name := range names {
		l.Add(name, DefaultWidth, DefaultHeight)
	}

	return l
}

func (l *Library) Add(name string, width, height int) *Device {
	l.lock.Lock()
	defer l.lock.Unlock()
	d := newDevice(name, width, height)
	l.devices = append(l.devices, d)

	return d
}

func (l *Library) Devices() ([]string, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	res := make([]string, len(l.devices))
	for i, d := range l.devices {
		res[i] = d.name
	}

	return res, nil
}

func (l *Library) Open(name string) (sdk.Grabber, error) {
	d := l.Device(name)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", sdk.ErrNoDevice, name)
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}

	return d, nil
}

// Device returns the named device for inspection, or nil.
func (l *Library) Device(name string) *Device {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, d := range l.devices {
		if d.name == name {
			return d
		}
	}

	return nil
}
