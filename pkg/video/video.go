package video

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/icza/mjpeg"

	"ephys-cam/pkg/frame"
)

const DefaultQuality = 90

var ErrClosed = errors.New("video sink closed")

// Sink receives frames in arrival order.
type Sink interface {
	WriteFrame(v *frame.View) error
	Close() error
	Frames() int
}

// MJPEG writes every frame as a JPEG into an AVI container.
type MJPEG struct {
	width   int
	height  int
	fps     int
	quality int

	lock   sync.Mutex
	cnt    int
	buf    bytes.Buffer
	aw     mjpeg.AviWriter
	closed bool
}

func NewMJPEG(path string, width, height, fps, quality int) (*MJPEG, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid video geometry %dx%d@%d", width, height, fps)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &MJPEG{
		width:   width,
		height:  height,
		fps:     fps,
		quality: quality,
		aw:      aw,
	}, nil
}

func (b *MJPEG) WriteFrame(v *frame.View) error {
	if v.Width != b.width || v.Height != b.height {
		return fmt.Errorf("frame %dx%d does not match video %dx%d", v.Width, v.Height, b.width, b.height)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.buf.Reset()
	if err := frame.EncodeJPEG(v.Image(), &b.buf, b.quality); err != nil {
		return err
	}
	if err := b.aw.AddFrame(b.buf.Bytes()); err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *MJPEG) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	return b.aw.Close()
}

func (b *MJPEG) Frames() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.cnt
}
