package imghash

import (
	"math"
	"sync"

	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/raster"
)

var (
	cosOnce  sync.Once
	cosTable [PerceptualMatrix][PerceptualMatrix]float64 // [k][i] = cos((2i+1)kπ/2N)
)

func cosines() *[PerceptualMatrix][PerceptualMatrix]float64 {
	cosOnce.Do(func() {
		const n = PerceptualMatrix
		for k := 0; k < n; k++ {
			for i := 0; i < n; i++ {
				cosTable[k][i] = math.Cos(float64((2*i+1)*k) * math.Pi / (2 * n))
			}
		}
	})
	return &cosTable
}

// Perceptual computes the 64-bit DCT hash of t. A bit is set when its
// coefficient exceeds coefficientEpsilon (1e-9) rather than plain zero, so
// terms that vanish analytically stay 0 despite rounding.
func Perceptual(t *raster.Thumbnail) (*Hash, error) {
	if t == nil || t.Image().Bounds().Empty() {
		return nil, apperrors.New(apperrors.SourceUnavailable, "empty thumbnail")
	}
	m := grayMatrix(t)
	coeffs := lowFrequencyDCT(&m)

	bits := make([]bool, PerceptualBits)
	for u := 0; u < PerceptualBlock; u++ {
		for v := 0; v < PerceptualBlock; v++ {
			c := coeffs[u][v]
			bits[u*PerceptualBlock+v] = c > coefficientEpsilon
		}
	}
	return FromBits(bits, goimagehash.PHash), nil
}

// grayMatrix reduces t to 32x32 by averaging the floored per-pixel gray
// over each block.
func grayMatrix(t *raster.Thumbnail) [PerceptualMatrix][PerceptualMatrix]float64 {
	var m [PerceptualMatrix][PerceptualMatrix]float64
	w, h := t.Image().Bounds().Dx(), t.Image().Bounds().Dy()

	for i := 0; i < PerceptualMatrix; i++ {
		y0, y1 := span(i, PerceptualMatrix, h)
		for j := 0; j < PerceptualMatrix; j++ {
			x0, x1 := span(j, PerceptualMatrix, w)
			var sum, count int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += t.Gray(x, y)
					count++
				}
			}
			m[i][j] = float64(sum) / float64(count)
		}
	}
	return m
}

// lowFrequencyDCT evaluates the 2-D DCT-II of m for the top-left block only,
// using the separable row/column form. Scaling follows c(0)=1/√2, c(k)=1.
func lowFrequencyDCT(m *[PerceptualMatrix][PerceptualMatrix]float64) [PerceptualBlock][PerceptualBlock]float64 {
	const n = PerceptualMatrix
	cos := cosines()

	// rows[u][j] = Σ_i m[i][j]·cos((2i+1)uπ/2N)
	var rows [PerceptualBlock][n]float64
	for u := 0; u < PerceptualBlock; u++ {
		for j := 0; j < n; j++ {
			var s float64
			for i := 0; i < n; i++ {
				s += m[i][j] * cos[u][i]
			}
			rows[u][j] = s
		}
	}

	var out [PerceptualBlock][PerceptualBlock]float64
	for u := 0; u < PerceptualBlock; u++ {
		for v := 0; v < PerceptualBlock; v++ {
			var s float64
			for j := 0; j < n; j++ {
				s += rows[u][j] * cos[v][j]
			}
			out[u][v] = scale(u) * scale(v) * math.Sqrt(2.0/n) * math.Sqrt(2.0/n) * s
		}
	}
	return out
}

func scale(k int) float64 {
	if k == 0 {
		return 1 / math.Sqrt2
	}
	return 1
}
