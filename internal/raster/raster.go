// Package raster reduces source frames to fixed-size thumbnails.
package raster

import (
	"bytes"
	"image"

	"golang.org/x/image/draw"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

// DefaultSize is the thumbnail edge length.
const DefaultSize = 64

// Thumbnail is a square RGBA buffer derived from a cropped frame.
type Thumbnail struct {
	img *image.RGBA
}

// NewThumbnail wraps an existing RGBA image, rebasing it to a zero origin.
func NewThumbnail(img *image.RGBA) *Thumbnail {
	if img.Bounds().Min != (image.Point{}) {
		c := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(c, c.Bounds(), img, img.Bounds().Min, draw.Src)
		img = c
	}
	return &Thumbnail{img: img}
}

// Size returns the edge length in pixels.
func (t *Thumbnail) Size() int { return t.img.Bounds().Dx() }

// Image exposes the underlying buffer. Callers must not mutate it.
func (t *Thumbnail) Image() *image.RGBA { return t.img }

// Pix returns the raw RGBA bytes.
func (t *Thumbnail) Pix() []byte { return t.img.Pix }

// Gray returns the channel mean of pixel (x, y), floored.
func (t *Thumbnail) Gray(x, y int) int {
	i := t.img.PixOffset(x, y)
	p := t.img.Pix[i : i+3 : i+3]
	return (int(p[0]) + int(p[1]) + int(p[2])) / 3
}

// Equal reports byte-for-byte equality.
func (t *Thumbnail) Equal(o *Thumbnail) bool {
	if t == nil || o == nil {
		return false
	}
	return t.img.Bounds().Eq(o.img.Bounds()) && bytes.Equal(t.img.Pix, o.img.Pix)
}

// Clone returns an independent copy.
func (t *Thumbnail) Clone() *Thumbnail {
	c := image.NewRGBA(t.img.Bounds())
	copy(c.Pix, t.img.Pix)
	return &Thumbnail{img: c}
}

// Reduce scales the pixels inside r down to a size x size thumbnail. The
// rectangle is relative to the frame origin and is not clamped here.
func Reduce(frame image.Image, r crop.Rect, size int) (*Thumbnail, error) {
	src, err := sourceRect(frame, r)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, apperrors.Newf(apperrors.Configuration, "thumbnail size %d", size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, src, draw.Src, nil)
	return &Thumbnail{img: dst}, nil
}

// Crop copies the pixels inside r at full resolution.
func Crop(frame image.Image, r crop.Rect) (*image.RGBA, error) {
	src, err := sourceRect(frame, r)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
	draw.Draw(dst, dst.Bounds(), frame, src.Min, draw.Src)
	return dst, nil
}

func sourceRect(frame image.Image, r crop.Rect) (image.Rectangle, error) {
	if frame == nil {
		return image.Rectangle{}, apperrors.New(apperrors.SourceUnavailable, "no frame")
	}
	b := frame.Bounds()
	if b.Empty() {
		return image.Rectangle{}, apperrors.Newf(apperrors.SourceUnavailable, "frame has zero area (%dx%d)", b.Dx(), b.Dy())
	}
	src := image.Rect(b.Min.X+r.X, b.Min.Y+r.Y, b.Min.X+r.X+r.W, b.Min.Y+r.Y+r.H)
	if r.Empty() || !src.In(b) {
		return image.Rectangle{}, apperrors.Newf(apperrors.SourceUnavailable,
			"crop %+v outside %dx%d frame", r, b.Dx(), b.Dy())
	}
	return src, nil
}
