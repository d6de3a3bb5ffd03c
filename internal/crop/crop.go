// Package crop computes the region of interest inside a source frame.
package crop

import (
	"fmt"
	"math"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

// Anchor names the compass point the crop rectangle is flush against.
type Anchor string

const (
	TopLeft     Anchor = "top-left"
	Top         Anchor = "top"
	TopRight    Anchor = "top-right"
	Left        Anchor = "left"
	Center      Anchor = "center"
	Right       Anchor = "right"
	BottomLeft  Anchor = "bottom-left"
	Bottom      Anchor = "bottom"
	BottomRight Anchor = "bottom-right"
)

// Anchors lists every supported anchor.
var Anchors = []Anchor{TopLeft, Top, TopRight, Left, Center, Right, BottomLeft, Bottom, BottomRight}

// ParseAnchor validates an anchor name.
func ParseAnchor(s string) (Anchor, error) {
	for _, a := range Anchors {
		if string(a) == s {
			return a, nil
		}
	}
	return "", apperrors.Newf(apperrors.Configuration, "unknown crop anchor %q", s)
}

// Region is a crop expressed relative to the source size.
type Region struct {
	Anchor         Anchor  `json:"direction" yaml:"direction"`
	WidthFraction  float64 `json:"width" yaml:"width"`
	HeightFraction float64 `json:"height" yaml:"height"`
}

// Identity is the full-frame region.
func Identity() Region {
	return Region{Anchor: Center, WidthFraction: MaxFraction, HeightFraction: MaxFraction}
}

// IsIdentity reports whether the region covers the whole source.
func (r Region) IsIdentity() bool {
	return r.WidthFraction >= MaxFraction && r.HeightFraction >= MaxFraction
}

// Validate rejects regions that cannot be applied. Use at configuration time.
func (r Region) Validate() error {
	if _, err := ParseAnchor(string(r.Anchor)); err != nil {
		return err
	}
	for _, side := range []struct {
		name string
		f    float64
	}{
		{"width", r.WidthFraction},
		{"height", r.HeightFraction},
	} {
		if math.IsNaN(side.f) || side.f <= 0 || side.f > MaxFraction {
			return apperrors.Newf(apperrors.Configuration, "crop %s fraction %v outside (0,1]", side.name, side.f).
				WithMetadata("field", side.name)
		}
	}
	return nil
}

// Clamped returns the region with fractions pulled into [MinFraction, MaxFraction].
func (r Region) Clamped() Region {
	r.WidthFraction = clamp(r.WidthFraction)
	r.HeightFraction = clamp(r.HeightFraction)
	return r
}

func clamp(f float64) float64 {
	if math.IsNaN(f) || f < MinFraction {
		return MinFraction
	}
	if f > MaxFraction {
		return MaxFraction
	}
	return f
}

func (r Region) String() string {
	return fmt.Sprintf("%s %.0f%%x%.0f%%", r.Anchor, r.WidthFraction*100, r.HeightFraction*100)
}

// Rect is an axis-aligned rectangle in source pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Compute places the region on a srcW x srcH source.
func Compute(srcW, srcH int, r Region) (Rect, error) {
	w := int(math.Floor(float64(srcW) * r.WidthFraction))
	h := int(math.Floor(float64(srcH) * r.HeightFraction))
	w = min(max(w, 0), max(srcW, 0))
	h = min(max(h, 0), max(srcH, 0))

	midX := (srcW - w) / 2
	midY := (srcH - h) / 2
	farX := srcW - w
	farY := srcH - h

	var x, y int
	switch r.Anchor {
	case TopLeft:
		x, y = 0, 0
	case Top:
		x, y = midX, 0
	case TopRight:
		x, y = farX, 0
	case Left:
		x, y = 0, midY
	case Center:
		x, y = midX, midY
	case Right:
		x, y = farX, midY
	case BottomLeft:
		x, y = 0, farY
	case Bottom:
		x, y = midX, farY
	case BottomRight:
		x, y = farX, farY
	default:
		return Rect{}, apperrors.Newf(apperrors.Configuration, "unknown crop anchor %q", r.Anchor)
	}
	return Rect{X: x, Y: y, W: w, H: h}, nil
}
