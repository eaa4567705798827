package dataset

import (
	"image"

	"github.com/pkg/errors"
)

// Subset restricts a Provider to its first n indices. The index→sample
// mapping for [0, n) is the provider's own, so subsetting only truncates, it
// never reorders.
type Subset struct {
	p *Provider
	n int
}

// NewSubset wraps p so only its first n samples are visible. n is clamped to
// the provider's length.
func NewSubset(p *Provider, n int) *Subset {
	if n > p.Len() {
		n = p.Len()
	}
	if n < 0 {
		n = 0
	}
	return &Subset{p: p, n: n}
}

// Len returns the subset length.
func (s *Subset) Len() int { return s.n }

// Get delegates to the underlying provider after bounds checking against the
// subset length.
func (s *Subset) Get(i int) (image.Image, []int32, error) {
	if i < 0 || i >= s.n {
		return nil, nil, errors.Errorf("index %d out of range for subset of %d", i, s.n)
	}
	return s.p.Get(i)
}

// GetImage delegates to the underlying provider after bounds checking.
func (s *Subset) GetImage(i int) (image.Image, error) {
	if i < 0 || i >= s.n {
		return nil, errors.Errorf("index %d out of range for subset of %d", i, s.n)
	}
	return s.p.GetImage(i)
}
