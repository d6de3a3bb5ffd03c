package imghash

import (
	"math/big"

	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/raster"
)

// Average computes the n x n mean-thresholded hash of t. A cell's gray is the
// mean of R, G and B over the pixels it covers; cells equal to the mean get 0.
func Average(t *raster.Thumbnail, n int) (*Hash, error) {
	if n <= 0 {
		return nil, apperrors.Newf(apperrors.Configuration, "average hash size %d", n)
	}
	if t == nil || t.Image().Bounds().Empty() {
		return nil, apperrors.New(apperrors.SourceUnavailable, "empty thumbnail")
	}
	totals, counts := cellSums(t, n)

	// gray_c > mean  <=>  n²·T_c/C_c > Σ T_k/C_k, compared exactly.
	sum := new(big.Rat)
	for i := range totals {
		sum.Add(sum, big.NewRat(totals[i], counts[i]))
	}
	bits := make([]bool, len(totals))
	cell := new(big.Rat)
	for i := range totals {
		cell.SetFrac64(totals[i]*int64(n*n), counts[i])
		bits[i] = cell.Cmp(sum) > 0
	}
	return FromBits(bits, goimagehash.AHash), nil
}

// cellSums area-sums t onto an n x n grid, row-major, returning the channel
// total (R+G+B) and pixel count of each cell.
func cellSums(t *raster.Thumbnail, n int) ([]int64, []int64) {
	img := t.Image()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	totals := make([]int64, n*n)
	counts := make([]int64, n*n)

	for cy := 0; cy < n; cy++ {
		y0, y1 := span(cy, n, h)
		for cx := 0; cx < n; cx++ {
			x0, x1 := span(cx, n, w)
			var total int64
			for y := y0; y < y1; y++ {
				row := img.Pix[y*img.Stride:]
				for x := x0; x < x1; x++ {
					p := row[x*4 : x*4+3 : x*4+3]
					total += int64(p[0]) + int64(p[1]) + int64(p[2])
				}
			}
			totals[cy*n+cx] = total
			counts[cy*n+cx] = int64((y1 - y0) * (x1 - x0))
		}
	}
	return totals, counts
}

// span returns the half-open pixel range covered by cell i of n over length l,
// always at least one pixel wide.
func span(i, n, l int) (int, int) {
	a := i * l / n
	b := (i + 1) * l / n
	if b <= a {
		if a >= l {
			a = l - 1
		}
		b = a + 1
	}
	return a, b
}
