package frame

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"ephys-cam/pkg/sdk"
)

// BGR is a packed 24 bit image in the byte order of RGB24 camera buffers.
type BGR struct {
	// Pix holds the image's pixels, in B, G, R order. The pixel at
	// (x, y) starts at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*3].
	Pix []byte
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
	// Step is 3 for RGB24 and 4 for RGB32 buffers.
	Step int
}

func (p *BGR) ColorModel() color.Model { return color.RGBAModel }

func (p *BGR) Bounds() image.Rectangle { return p.Rect }

func (p *BGR) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*p.Step
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{R: s[2], G: s[1], B: s[0], A: 0xff}
}

// Image exposes the view as an image.Image without copying.
func (v *View) Image() image.Image {
	rect := image.Rect(0, 0, v.Width, v.Height)
	switch {
	case v.Format == sdk.Y800 && v.Bpp == 1:
		return &image.Gray{Pix: v.Pix, Stride: v.Stride, Rect: rect}
	case v.Bpp >= 3:
		return &BGR{Pix: v.Pix, Stride: v.Stride, Rect: rect, Step: v.Bpp}
	default:
		// unknown packing: show the first byte of every pixel as luma
		g := image.NewGray(rect)
		for y := 0; y < v.Height; y++ {
			src := v.row(y)
			for x := 0; x < v.Width; x++ {
				g.Pix[y*g.Stride+x] = src[x*v.Bpp]
			}
		}
		return g
	}
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}
