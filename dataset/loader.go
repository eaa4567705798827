package dataset

import (
	"image"
	"io"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// PadToken is the value caption tensors are right-padded with.
const PadToken = 0

// Loader batches samples from a Source into a stacked image tensor and a
// padded caption tensor. It implements gomlx's train.Dataset: each Yield
// returns one batch and io.EOF ends the epoch; Reset starts the next one,
// reshuffling the order when shuffle is enabled.
type Loader struct {
	name         string
	src          Source
	batchSize    int
	shuffle      bool
	withCaptions bool

	rng   *rand.Rand
	order []int
	pos   int
}

var _ train.Dataset = &Loader{}

// NewLoader wraps src with batching and optional per-epoch shuffling. When
// withCaptions is false (the test split) Yield skips caption handling
// entirely and returns image tensors only. A nil rng falls back to a
// time-based seed.
func NewLoader(name string, src Source, batchSize int, shuffle, withCaptions bool, rng *rand.Rand) *Loader {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	l := &Loader{
		name:         name,
		src:          src,
		batchSize:    batchSize,
		shuffle:      shuffle,
		withCaptions: withCaptions,
		rng:          rng,
	}
	l.Reset()
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// Reset implements train.Dataset. It restarts the epoch and reshuffles the
// sample order if the loader was built with shuffling.
func (l *Loader) Reset() {
	if l.order == nil {
		l.order = make([]int, l.src.Len())
		for i := range l.order {
			l.order[i] = i
		}
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Yield implements train.Dataset. Inputs hold the image batch shaped
// [batch, 3, size, size] (float32, pixel values scaled to [0, 1]); labels
// hold the caption batch shaped [batch, maxLenInBatch] (int64, right-padded
// with PadToken), absent for caption-less loaders. The final batch of an
// epoch may be smaller than the configured batch size.
//
// A sample error (unreadable image, missing captions) aborts the whole batch
// fetch; callers that want skip-and-retry can filter on ErrNoCaptions.
func (l *Loader) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if l.pos >= len(l.order) {
		return nil, nil, nil, io.EOF
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	indices := l.order[l.pos:end]
	l.pos = end

	images := make([]image.Image, len(indices))
	var caps [][]int32
	if l.withCaptions {
		caps = make([][]int32, len(indices))
	}
	for bi, idx := range indices {
		if l.withCaptions {
			img, ids, err := l.src.Get(idx)
			if err != nil {
				return nil, nil, nil, err
			}
			images[bi], caps[bi] = img, ids
		} else {
			img, err := l.src.GetImage(idx)
			if err != nil {
				return nil, nil, nil, err
			}
			images[bi] = img
		}
	}

	imgT, err := collateImages(images)
	if err != nil {
		return nil, nil, nil, err
	}
	spec = l
	inputs = []*tensors.Tensor{imgT}
	if l.withCaptions {
		labels = []*tensors.Tensor{collateCaptions(caps)}
	}
	return spec, inputs, labels, nil
}

// collateImages stacks same-sized images into a Float32 tensor shaped
// [batch, 3, height, width], scaling pixel values to [0, 1]. The equal-size
// requirement is guaranteed upstream by the fixed resize step.
func collateImages(images []image.Image) (*tensors.Tensor, error) {
	if len(images) == 0 {
		return nil, errors.New("cannot collate an empty image batch")
	}
	width := images[0].Bounds().Dx()
	height := images[0].Bounds().Dy()
	for i, img := range images {
		if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
			return nil, errors.Errorf("image %d is %dx%d, batch expects %dx%d",
				i, img.Bounds().Dx(), img.Bounds().Dy(), width, height)
		}
	}

	t := tensors.FromShape(shapes.Make(dtypes.Float32, len(images), 3, height, width))
	t.MutableFlatData(func(flatAny any) {
		data := flatAny.([]float32)
		plane := height * width
		for n, img := range images {
			base := n * 3 * plane
			bounds := img.Bounds()
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					off := y*width + x
					data[base+off] = float32(r>>8) / 255
					data[base+plane+off] = float32(g>>8) / 255
					data[base+2*plane+off] = float32(b>>8) / 255
				}
			}
		}
	})
	return t, nil
}

// collateCaptions right-pads token sequences with PadToken to the longest
// length in this batch (not a global maximum), producing an Int64 tensor
// shaped [batch, maxLen].
func collateCaptions(seqs [][]int32) *tensors.Tensor {
	maxLen := 0
	for _, s := range seqs {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	t := tensors.FromShape(shapes.Make(dtypes.Int64, len(seqs), maxLen))
	t.MutableFlatData(func(flatAny any) {
		data := flatAny.([]int64)
		for i, s := range seqs {
			row := data[i*maxLen : (i+1)*maxLen]
			for j, id := range s {
				row[j] = int64(id)
			}
			// Positions past len(s) keep the zero value, which is PadToken.
		}
	})
	return t
}
