package crop

// Overlay is the crop rectangle expressed in displayed element pixels.
type Overlay struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Box is where the source element is drawn on screen.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToOverlay maps a crop computed on intrinsic srcW x srcH pixels onto the
// element's displayed box. The identity region highlights the whole box.
func ToOverlay(box Box, srcW, srcH int, region Region) (Overlay, error) {
	if region.IsIdentity() || srcW <= 0 || srcH <= 0 {
		return Overlay(box), nil
	}
	r, err := Compute(srcW, srcH, region)
	if err != nil {
		return Overlay{}, err
	}
	scaleX := box.Width / float64(srcW)
	scaleY := box.Height / float64(srcH)
	return Overlay{
		Left:   box.Left + float64(r.X)*scaleX,
		Top:    box.Top + float64(r.Y)*scaleY,
		Width:  float64(r.W) * scaleX,
		Height: float64(r.H) * scaleY,
	}, nil
}
