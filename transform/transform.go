// Package transform implements the image preprocessing applied to every
// sample before batching: a fixed square resize followed by randomized color
// jitter and flips whose probability is a per-split constant (0 disables the
// random operations but keeps the same code path).
package transform

import (
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Jitter ranges for the color augmentations, in imaging's percentage units.
const (
	brightnessJitter = 20.0
	contrastJitter   = 20.0
	saturationJitter = 30.0
)

// Pipeline resizes images to a fixed square and optionally augments them.
type Pipeline struct {
	size int
	prob float64

	// mu guards rng: Apply may be called from concurrent workers and
	// rand.Rand is not goroutine safe.
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Pipeline producing size×size images, applying each random
// augmentation independently with probability prob. A nil rng falls back to a
// time-based seed; tests pass a fixed-seed rand to make augmentation
// deterministic.
func New(size int, prob float64, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pipeline{size: size, prob: prob, rng: rng}
}

// Size returns the output side length in pixels.
func (p *Pipeline) Size() int { return p.size }

// Apply resizes img to size×size and applies the configured augmentations:
// brightness, contrast and saturation jitter, then horizontal and vertical
// flips, each with probability prob. The resize always runs.
func (p *Pipeline) Apply(img image.Image) image.Image {
	out := image.Image(imaging.Resize(img, p.size, p.size, imaging.Lanczos))
	if p.prob <= 0 {
		return out
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng.Float64() < p.prob {
		out = imaging.AdjustBrightness(out, p.rng.Float64()*2*brightnessJitter-brightnessJitter)
	}
	if p.rng.Float64() < p.prob {
		out = imaging.AdjustContrast(out, p.rng.Float64()*2*contrastJitter-contrastJitter)
	}
	if p.rng.Float64() < p.prob {
		out = imaging.AdjustSaturation(out, p.rng.Float64()*2*saturationJitter-saturationJitter)
	}
	if p.rng.Float64() < p.prob {
		out = imaging.FlipH(out)
	}
	if p.rng.Float64() < p.prob {
		out = imaging.FlipV(out)
	}
	return out
}
