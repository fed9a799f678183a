// Package frame wraps raw camera buffers in bounds-checked views.
//
// A View never reads outside the buffer it was built from: the buffer length
// is checked against the claimed geometry when the view is constructed.
package frame

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"ephys-cam/pkg/sdk"
)

var (
	ErrGeometry    = errors.New("invalid frame geometry")
	ErrShortBuffer = errors.New("buffer shorter than frame geometry")
)

// BytesPerPixel truncates like the integer division the SDK geometry implies:
// 8 bits is one byte, 24 bits three, 12 bits one.
func BytesPerPixel(bitsPerPixel int) int {
	return bitsPerPixel / 8
}

// BufferSize is width*height*bytes-per-pixel. Non-positive results mean the
// geometry is unusable and the frame has to be dropped.
func BufferSize(width, height, bitsPerPixel int) int {
	if width <= 0 || height <= 0 {
		return 0
	}

	return width * height * BytesPerPixel(bitsPerPixel)
}

func DescriptionSize(d sdk.ImageDescription) int {
	return BufferSize(d.Width, d.Height, d.BitsPerPixel)
}

type View struct {
	// Pix holds rows of Width*BytesPerPixel bytes, Stride bytes apart.
	Pix    []byte
	Stride int
	Width  int
	Height int
	// Bpp is bytes per pixel.
	Bpp    int
	Format sdk.ColorFormat
}

// NewView wraps a tightly packed buffer described by d.
func NewView(buf []byte, d sdk.ImageDescription) (*View, error) {
	return NewStridedView(buf, d, d.Width*BytesPerPixel(d.BitsPerPixel))
}

func NewStridedView(buf []byte, d sdk.ImageDescription, stride int) (*View, error) {
	bpp := BytesPerPixel(d.BitsPerPixel)
	if d.Width <= 0 || d.Height <= 0 || bpp <= 0 {
		return nil, fmt.Errorf("%w: %dx%d %d bits", ErrGeometry, d.Width, d.Height, d.BitsPerPixel)
	}
	row := d.Width * bpp
	if stride < row {
		return nil, fmt.Errorf("%w: stride %d < row %d", ErrGeometry, stride, row)
	}
	need := stride*(d.Height-1) + row
	if len(buf) < need {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(buf), need)
	}

	return &View{
		Pix:    buf[:need:need],
		Stride: stride,
		Width:  d.Width,
		Height: d.Height,
		Bpp:    bpp,
		Format: d.ColorFormat,
	}, nil
}

// ViewFromPointer wraps memory owned by a C SDK. length is the size of the
// allocation behind p as reported by the SDK, not the size implied by d.
func ViewFromPointer(p unsafe.Pointer, length int, d sdk.ImageDescription, stride int) (*View, error) {
	if p == nil || length <= 0 {
		return nil, fmt.Errorf("%w: nil buffer", ErrShortBuffer)
	}

	return NewStridedView(unsafe.Slice((*byte)(p), length), d, stride)
}

func (v *View) Description() sdk.ImageDescription {
	return sdk.ImageDescription{
		Width:        v.Width,
		Height:       v.Height,
		BitsPerPixel: v.Bpp * 8,
		ColorFormat:  v.Format,
	}
}

func (v *View) row(y int) []byte {
	i := y * v.Stride
	return v.Pix[i : i+v.Width*v.Bpp]
}

// Clone copies the view into a new tightly packed buffer.
func (v *View) Clone() *View {
	row := v.Width * v.Bpp
	out := &View{
		Pix:    make([]byte, row*v.Height),
		Stride: row,
		Width:  v.Width,
		Height: v.Height,
		Bpp:    v.Bpp,
		Format: v.Format,
	}
	for y := 0; y < v.Height; y++ {
		copy(out.Pix[y*row:], v.row(y))
	}

	return out
}

// FlipVertical swaps rows top to bottom in place.
func (v *View) FlipVertical() {
	tmp := make([]byte, v.Width*v.Bpp)
	for top, bottom := 0, v.Height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a, b := v.row(top), v.row(bottom)
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// Crop returns a view of r sharing v's buffer.
func (v *View) Crop(r image.Rectangle) (*View, error) {
	if r.Empty() || !r.In(image.Rect(0, 0, v.Width, v.Height)) {
		return nil, fmt.Errorf("%w: crop %v outside %dx%d", ErrGeometry, r, v.Width, v.Height)
	}
	start := r.Min.Y*v.Stride + r.Min.X*v.Bpp
	end := (r.Max.Y-1)*v.Stride + r.Max.X*v.Bpp

	return &View{
		Pix:    v.Pix[start:end:end],
		Stride: v.Stride,
		Width:  r.Dx(),
		Height: r.Dy(),
		Bpp:    v.Bpp,
		Format: v.Format,
	}, nil
}

// Rotate returns a copy rotated clockwise by angle, a multiple of 90 degrees.
func (v *View) Rotate(angle int) (*View, error) {
	angle = ((angle % 360) + 360) % 360
	if angle%90 != 0 {
		return nil, fmt.Errorf("%w: rotation %d", ErrGeometry, angle)
	}
	if angle == 0 {
		return v.Clone(), nil
	}
	w, h := v.Width, v.Height
	if angle != 180 {
		w, h = h, w
	}
	out := &View{
		Pix:    make([]byte, w*h*v.Bpp),
		Stride: w * v.Bpp,
		Width:  w,
		Height: h,
		Bpp:    v.Bpp,
		Format: v.Format,
	}
	for y := 0; y < v.Height; y++ {
		src := v.row(y)
		for x := 0; x < v.Width; x++ {
			var dx, dy int
			switch angle {
			case 90:
				dx, dy = v.Height-1-y, x
			case 180:
				dx, dy = v.Width-1-x, v.Height-1-y
			case 270:
				dx, dy = y, v.Width-1-x
			}
			copy(out.Pix[dy*out.Stride+dx*v.Bpp:], src[x*v.Bpp:(x+1)*v.Bpp])
		}
	}

	return out, nil
}
