package camera

import (
	"bytes"
	"sync"
	"testing"

	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
)

// memSink keeps copies of every written frame.
type memSink struct {
	lock   sync.Mutex
	frames [][]byte
	closed bool
}

func (m *memSink) WriteFrame(v *frame.View) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.frames = append(m.frames, v.Clone().Pix)
	return nil
}

func (m *memSink) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) Frames() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.frames)
}

func grayDesc(w, h int) sdk.ImageDescription {
	return sdk.ImageDescription{Width: w, Height: h, BitsPerPixel: 8, ColorFormat: sdk.Y800}
}

func TestOnFrameWritesFlipped(t *testing.T) {
	c := NewCallbackContext(0, 4)
	c.SetDescription(grayDesc(2, 3))
	sink := &memSink{}
	checkErr(t, c.Attach(sink))

	c.OnFrame([]byte{0, 1, 2, 3, 4, 5, 99}, 7)
	c.OnFrame([]byte{10, 11, 12, 13, 14, 15}, 8)
	if got := c.Detach(); got != sink {
		t.Fatalf("Detach returned %v", got)
	}

	if len(sink.frames) != 2 {
		t.Fatalf("frames written = %d", len(sink.frames))
	}
	if want := []byte{4, 5, 2, 3, 0, 1}; !bytes.Equal(sink.frames[0], want) {
		t.Errorf("frame 0 = %v, want %v", sink.frames[0], want)
	}
	ts := c.Timestamps()
	if len(ts.CallbackTimes) != 2 || len(ts.SavedTimes) != 2 {
		t.Errorf("timestamps = %+v", ts)
	}
	if len(ts.FrameNumbers) != 2 || ts.FrameNumbers[0] != 7 || ts.FrameNumbers[1] != 8 {
		t.Errorf("frame numbers = %v", ts.FrameNumbers)
	}
	if s := c.Stats(); s.Received != 2 || s.Saved != 2 || s.Dropped != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestOnFrameDropGuard(t *testing.T) {
	cases := []struct {
		name string
		desc *sdk.ImageDescription
		buf  []byte
	}{
		{"no description", nil, make([]byte, 16)},
		{"zero width", &sdk.ImageDescription{Width: 0, Height: 4, BitsPerPixel: 8}, make([]byte, 16)},
		{"sub byte depth", &sdk.ImageDescription{Width: 4, Height: 4, BitsPerPixel: 4}, make([]byte, 16)},
		{"short buffer", &sdk.ImageDescription{Width: 4, Height: 4, BitsPerPixel: 8}, make([]byte, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCallbackContext(1, 4)
			if tc.desc != nil {
				c.SetDescription(*tc.desc)
			}
			sink := &memSink{}
			checkErr(t, c.Attach(sink))
			c.OnFrame(tc.buf, 1)
			c.Detach()

			if sink.Frames() != 0 {
				t.Errorf("frame written")
			}
			ts := c.Timestamps()
			if len(ts.CallbackTimes) != 0 || len(ts.SavedTimes) != 0 || len(ts.FrameNumbers) != 0 {
				t.Errorf("timestamps recorded for a dropped frame: %+v", ts)
			}
			if s := c.Stats(); s.Dropped != 1 || s.Received != 1 {
				t.Errorf("stats = %+v", c.Stats())
			}
		})
	}
}

func TestOnFrameWithoutSink(t *testing.T) {
	c := NewCallbackContext(0, 4)
	c.SetDescription(grayDesc(2, 2))
	c.OnFrame(make([]byte, 4), 1)
	if s := c.Stats(); s.Dropped != 1 || s.Late != 0 {
		t.Errorf("before attach: %+v", s)
	}

	checkErr(t, c.Attach(&memSink{}))
	if err := c.Attach(&memSink{}); err != ErrSinkAttached {
		t.Errorf("second attach err = %v", err)
	}
	c.Detach()
	if c.Detach() != nil {
		t.Error("second detach returned a sink")
	}

	c.OnFrame(make([]byte, 4), 2)
	if s := c.Stats(); s.Late != 1 {
		t.Errorf("after detach: %+v", s)
	}

	c.Reset()
	if s := c.Stats(); s != (Stats{}) || len(c.Timestamps().CallbackTimes) != 0 {
		t.Errorf("after reset: %+v", s)
	}
}

func TestQueueBlocksInsteadOfDropping(t *testing.T) {
	c := NewCallbackContext(0, 1)
	c.SetDescription(grayDesc(4, 4))
	sink := &memSink{}
	checkErr(t, c.Attach(sink))
	const n = 50
	for i := 0; i < n; i++ {
		c.OnFrame(make([]byte, 16), uint64(i+1))
	}
	c.Detach()
	if sink.Frames() != n {
		t.Errorf("frames written = %d, want %d", sink.Frames(), n)
	}
	ts := c.Timestamps()
	for i, fn := range ts.FrameNumbers {
		if fn != uint64(i+1) {
			t.Fatalf("frame %d out of order: %d", i, fn)
		}
	}
}
