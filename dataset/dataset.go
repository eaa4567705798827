// Package dataset pairs images with tokenized captions and assembles padded,
// model-ready batches.
//
// A Provider resolves a sample index to a decoded, transformed image plus one
// of its captions, chosen at random and tokenized. A Loader batches a
// Provider (or a Subset of one) into a stacked image tensor and a padded
// caption tensor, implementing gomlx's train.Dataset so it plugs directly
// into a training loop.
package dataset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hericlys/cocopipe/captions"
	"github.com/hericlys/cocopipe/transform"
)

// Tokenizer converts caption text into a token-ID sequence. It is injected
// so the pipeline stays decoupled from any particular tokenizer; the tokenize
// package provides a HuggingFace-backed implementation.
type Tokenizer interface {
	Encode(text string) ([]int32, error)
}

// ErrNoCaptions marks an image whose ID has no caption record, or whose
// record holds an empty caption list. The reference behavior for this case
// was an anonymous out-of-range crash; the typed error lets callers decide
// whether to skip the sample or abort.
var ErrNoCaptions = errors.New("no captions for image")

// Source is the sample access surface Loader batches over. Provider and
// Subset both implement it.
type Source interface {
	Len() int
	Get(i int) (image.Image, []int32, error)
	GetImage(i int) (image.Image, error)
}

// Provider resolves sample indices for one split. Each Get opens and closes
// its own file handle and mutates no shared state beyond the mutex-guarded
// rand source, so concurrent calls from parallel loader workers are safe.
type Provider struct {
	paths     []string
	store     *captions.Store
	tokenizer Tokenizer
	pipeline  *transform.Pipeline

	// mu guards rng for concurrent Get calls.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider discovers Root/<split>/*.jpg and loads the split's caption
// file. filepath.Glob returns lexically sorted paths, so the index order is
// stable within a run (and across runs over the same file set). A missing
// caption file degrades to an empty caption set; see captions.Load.
//
// A nil rng falls back to a time-based seed. Pass a seeded rand to make
// caption selection and augmentation reproducible.
func NewProvider(cfg Config, split string, tok Tokenizer, rng *rand.Rand) (*Provider, error) {
	cfg = cfg.withDefaults()
	p, err := newImageProvider(cfg, split, rng)
	if err != nil {
		return nil, err
	}
	store, err := captions.Load(filepath.Join(cfg.Root, cfg.CaptionDir, cfg.captionFile(split)))
	if err != nil {
		return nil, err
	}
	p.store = store
	p.tokenizer = tok
	return p, nil
}

// NewImageProvider builds a Provider without caption handling, the access
// path used for the test split: only GetImage is available.
func NewImageProvider(cfg Config, split string, rng *rand.Rand) (*Provider, error) {
	return newImageProvider(cfg.withDefaults(), split, rng)
}

func newImageProvider(cfg Config, split string, rng *rand.Rand) (*Provider, error) {
	pattern := filepath.Join(cfg.Root, split, "*.jpg")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to glob %s", pattern)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// The transform pipeline gets its own rand source: it serializes access
	// behind a separate mutex, so sharing rng with caption selection would
	// race.
	pipeline := transform.New(cfg.ImageSize, cfg.augmentProb(split), rand.New(rand.NewSource(rng.Int63())))
	return &Provider{paths: paths, pipeline: pipeline, rng: rng}, nil
}

// Len returns the number of discovered image files. This can diverge from
// the number of captioned images: the image set and the caption set are not
// cross-validated.
func (p *Provider) Len() int { return len(p.paths) }

// ImagePath returns the file path backing index i.
func (p *Provider) ImagePath(i int) string { return p.paths[i] }

// GetImage decodes and transforms the i-th image, without caption handling.
func (p *Provider) GetImage(i int) (image.Image, error) {
	if i < 0 || i >= len(p.paths) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(p.paths))
	}
	img, err := decodeImage(p.paths[i])
	if err != nil {
		return nil, err
	}
	return p.pipeline.Apply(img), nil
}

// Get returns the transformed image at index i together with one of its
// captions, chosen uniformly at random and tokenized. Images without a
// caption record yield ErrNoCaptions.
func (p *Provider) Get(i int) (image.Image, []int32, error) {
	if p.store == nil || p.tokenizer == nil {
		return nil, nil, errors.New("provider was built without caption support")
	}
	img, err := p.GetImage(i)
	if err != nil {
		return nil, nil, err
	}
	id, err := imageID(p.paths[i])
	if err != nil {
		return nil, nil, err
	}
	caps, ok := p.store.Lookup(id)
	if !ok || len(caps) == 0 {
		klog.Warningf("no captions found for image ID %d (%s)", id, p.paths[i])
		return nil, nil, errors.Wrapf(ErrNoCaptions, "image ID %d", id)
	}

	p.mu.Lock()
	chosen := caps[p.rng.Intn(len(caps))]
	p.mu.Unlock()

	ids, err := p.tokenizer.Encode(strings.TrimSpace(chosen))
	if err != nil {
		return nil, nil, err
	}
	return img, ids, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "image not found at %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", path)
	}
	return img, nil
}

// imageID parses the integer image ID from a path's filename stem, e.g.
// ".../000000123.jpg" -> 123.
func imageID(path string) (int64, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "image filename %s does not encode a numeric ID", path)
	}
	return id, nil
}
