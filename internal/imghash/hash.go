package imghash

import (
	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

// Hash is an ordered bit sequence produced by Average or Perceptual.
type Hash struct {
	ext *goimagehash.ExtImageHash
}

// FromBits packs bits (MSB first within each 64-bit word) into a hash of the given kind.
func FromBits(bits []bool, kind goimagehash.Kind) *Hash {
	words := make([]uint64, (len(bits)+63)/64)
	for i, b := range bits {
		if b {
			words[i/64] |= 1 << (63 - uint(i%64))
		}
	}
	return &Hash{ext: goimagehash.NewExtImageHash(words, kind, len(bits))}
}

// Len returns the number of bits.
func (h *Hash) Len() int { return h.ext.Bits() }

// Kind reports which algorithm produced the hash.
func (h *Hash) Kind() goimagehash.Kind { return h.ext.GetKind() }

// Bit returns bit i.
func (h *Hash) Bit(i int) bool {
	w := h.ext.GetHash()[i/64]
	return w&(1<<(63-uint(i%64))) != 0
}

// Bits unpacks the hash.
func (h *Hash) Bits() []bool {
	out := make([]bool, h.Len())
	for i := range out {
		out[i] = h.Bit(i)
	}
	return out
}

// Equal reports bit-exact equality.
func (h *Hash) Equal(o *Hash) bool {
	s, err := Similarity(h, o)
	return err == nil && s == 1
}

// String renders the hash in goimagehash's kind-prefixed hex form.
func (h *Hash) String() string { return h.ext.ToString() }

// Similarity returns the fraction of matching bit positions.
func Similarity(a, b *Hash) (float64, error) {
	if a == nil || b == nil {
		return 0, apperrors.New(apperrors.LengthMismatch, "missing hash")
	}
	if a.Len() != b.Len() {
		return 0, apperrors.Newf(apperrors.LengthMismatch, "hash lengths differ: %d vs %d", a.Len(), b.Len())
	}
	if a.Kind() != b.Kind() {
		return 0, apperrors.New(apperrors.InvalidArgument, "hash kinds differ")
	}
	if a.Len() == 0 {
		return 1, nil
	}
	dist, err := a.ext.Distance(b.ext)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.LengthMismatch, "hash distance")
	}
	return float64(a.Len()-dist) / float64(a.Len()), nil
}

// PerceptualSimilarity is Similarity restricted to 64-bit perceptual hashes.
func PerceptualSimilarity(a, b *Hash) (float64, error) {
	for _, h := range []*Hash{a, b} {
		if h != nil && h.Len() != PerceptualBits {
			return 0, apperrors.Newf(apperrors.LengthMismatch, "perceptual hash has %d bits, want %d", h.Len(), PerceptualBits)
		}
	}
	return Similarity(a, b)
}
