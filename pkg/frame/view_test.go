package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"unsafe"

	"ephys-cam/pkg/sdk"
)

func gray(w, h int) sdk.ImageDescription {
	return sdk.ImageDescription{Width: w, Height: h, BitsPerPixel: 8, ColorFormat: sdk.Y800}
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func TestBufferSize(t *testing.T) {
	cases := []struct {
		w, h, bits int
		want       int
	}{
		{720, 540, 8, 388800},
		{720, 540, 24, 1166400},
		{720, 540, 32, 1555200},
		{720, 540, 4, 0},
		{0, 540, 8, 0},
		{720, -1, 8, 0},
	}
	for _, c := range cases {
		if got := BufferSize(c.w, c.h, c.bits); got != c.want {
			t.Errorf("BufferSize(%d, %d, %d) = %d, want %d", c.w, c.h, c.bits, got, c.want)
		}
	}
}

func TestNewViewBounds(t *testing.T) {
	if _, err := NewView(make([]byte, 11), gray(4, 3)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short buffer err = %v", err)
	}
	if _, err := NewView(make([]byte, 12), gray(0, 3)); !errors.Is(err, ErrGeometry) {
		t.Errorf("zero width err = %v", err)
	}
	if _, err := NewStridedView(make([]byte, 12), gray(4, 3), 3); !errors.Is(err, ErrGeometry) {
		t.Errorf("small stride err = %v", err)
	}
	// last row does not need trailing stride padding
	v, err := NewStridedView(make([]byte, 6*2+4), gray(4, 3), 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Pix) != 16 || cap(v.Pix) != 16 {
		t.Errorf("pix len/cap = %d/%d", len(v.Pix), cap(v.Pix))
	}
}

func TestViewFromPointer(t *testing.T) {
	buf := pattern(12)
	v, err := ViewFromPointer(unsafe.Pointer(&buf[0]), len(buf), gray(4, 3), 4)
	if err != nil {
		t.Fatal(err)
	}
	if v.Pix[11] != 11 {
		t.Errorf("last pixel = %d", v.Pix[11])
	}
	if _, err = ViewFromPointer(unsafe.Pointer(&buf[0]), 8, gray(4, 3), 4); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("err = %v, want ErrShortBuffer", err)
	}
	if _, err = ViewFromPointer(nil, 12, gray(4, 3), 4); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("nil pointer err = %v", err)
	}
}

func TestFlipVertical(t *testing.T) {
	v, err := NewView(pattern(6), gray(2, 3))
	if err != nil {
		t.Fatal(err)
	}
	v.FlipVertical()
	want := []byte{4, 5, 2, 3, 0, 1}
	if !bytes.Equal(v.Pix, want) {
		t.Errorf("flipped = %v, want %v", v.Pix, want)
	}
}

func TestCrop(t *testing.T) {
	v, err := NewView(pattern(16), gray(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	c, err := v.Crop(image.Rect(1, 1, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	got := c.Clone().Pix
	want := []byte{5, 6, 9, 10}
	if !bytes.Equal(got, want) {
		t.Errorf("crop = %v, want %v", got, want)
	}
	if _, err = v.Crop(image.Rect(2, 2, 5, 3)); !errors.Is(err, ErrGeometry) {
		t.Errorf("out of bounds crop err = %v", err)
	}
}

func TestRotate(t *testing.T) {
	// 0 1 2
	// 3 4 5
	v, err := NewView(pattern(6), gray(3, 2))
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		angle int
		w, h  int
		want  []byte
	}{
		{90, 2, 3, []byte{3, 0, 4, 1, 5, 2}},
		{180, 3, 2, []byte{5, 4, 3, 2, 1, 0}},
		{270, 2, 3, []byte{2, 5, 1, 4, 0, 3}},
		{-90, 2, 3, []byte{2, 5, 1, 4, 0, 3}},
		{0, 3, 2, []byte{0, 1, 2, 3, 4, 5}},
	}
	for _, c := range cases {
		r, err := v.Rotate(c.angle)
		if err != nil {
			t.Fatal(err)
		}
		if r.Width != c.w || r.Height != c.h || !bytes.Equal(r.Pix, c.want) {
			t.Errorf("rotate %d = %dx%d %v, want %dx%d %v", c.angle, r.Width, r.Height, r.Pix, c.w, c.h, c.want)
		}
	}
	if _, err = v.Rotate(45); !errors.Is(err, ErrGeometry) {
		t.Errorf("rotate 45 err = %v", err)
	}
}

func TestImage(t *testing.T) {
	v, _ := NewView(pattern(6), gray(2, 3))
	if g, ok := v.Image().(*image.Gray); !ok || g.GrayAt(1, 2).Y != 5 {
		t.Errorf("gray image = %#v", v.Image())
	}

	bgr, err := NewView([]byte{10, 20, 30, 40, 50, 60}, sdk.ImageDescription{Width: 2, Height: 1, BitsPerPixel: 24, ColorFormat: sdk.RGB24})
	if err != nil {
		t.Fatal(err)
	}
	c := bgr.Image().At(1, 0).(color.RGBA)
	if c.R != 60 || c.G != 50 || c.B != 40 {
		t.Errorf("bgr pixel = %+v", c)
	}

	var buf bytes.Buffer
	if err = EncodeJPEG(v.Image(), &buf, 90); err != nil {
		t.Fatal(err)
	}
	if _, err = jpeg.Decode(&buf); err != nil {
		t.Errorf("decode: %s", err)
	}
}
