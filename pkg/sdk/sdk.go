// Package sdk describes the surface of a machine-vision camera SDK: device
// enumeration, frame filters, device properties and frame-ready callbacks.
//
// The surface follows the grabber model of industrial camera vendors: one
// Grabber per opened device, frames delivered on a goroutine owned by the
// backend, never two callbacks of the same device at once.
package sdk

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoDevice     = errors.New("no such device")
	ErrDeviceBusy   = errors.New("device busy")
	ErrNotSupported = errors.New("not supported by device")
	ErrNotLive      = errors.New("device is not live")
	ErrTimeout      = errors.New("timeout")
	ErrReleased     = errors.New("grabber released")
)

type ColorFormat int

const (
	Y800 ColorFormat = iota
	RGB24
	RGB32
)

func (c ColorFormat) String() string {
	switch c {
	case Y800:
		return "Y800"
	case RGB24:
		return "RGB24"
	case RGB32:
		return "RGB32"
	default:
		return fmt.Sprintf("ColorFormat(%d)", int(c))
	}
}

// ImageDescription is the geometry of the frames a grabber currently delivers.
type ImageDescription struct {
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	BitsPerPixel int         `json:"bitsPerPixel"`
	ColorFormat  ColorFormat `json:"colorFormat"`
}

// FrameReadyFunc receives one captured buffer. buf is only valid until the
// function returns.
type FrameReadyFunc func(buf []byte, frameNumber uint64)

type Filter interface {
	Name() string
	SetParameter(param string, value int) error
	Parameter(param string) (int, bool)
}

type Grabber interface {
	Name() string
	IsDevValid() bool

	LoadDeviceState(path string) error
	SaveDeviceState(path string) error

	CreateFrameFilter(name string) (Filter, error)
	AddFrameFilter(f Filter) error

	SetFrameRate(fps float64) error
	SetPropertyAbsoluteValue(property, element string, value float64) error
	GetPropertyAbsoluteValue(property, element string) (float64, error)
	SetPropertyValue(property, element string, value int) error
	SetPropertySwitch(property, element string, on bool) error
	PropertyOnePush(property, element string) error

	SetContinuousMode(on bool) error
	StartLive(showDisplay bool) error
	StopLive() error

	SnapImage(timeout time.Duration) error
	GetImage() ([]byte, ImageDescription, error)
	ImageDescription() (ImageDescription, error)

	SetFrameReadyCallback(fn FrameReadyFunc) error

	Release() error
}

// Library enumerates and opens devices. Devices returns names in enumeration
// order; that order is what camera indexes refer to.
type Library interface {
	Devices() ([]string, error)
	Open(name string) (Grabber, error)
}
