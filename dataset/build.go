package dataset

import (
	"math/rand"
)

// NewTrainLoader builds the full train pipeline: provider, optional subset,
// batching with shuffling and caption collation.
func NewTrainLoader(cfg Config, tok Tokenizer) (*Loader, error) {
	cfg = cfg.withDefaults()
	return buildLoader(cfg, cfg.TrainSplit, tok, true)
}

// NewValLoader builds the validation pipeline. Augmentation probability is 0
// for the val split, so samples only get the fixed resize.
func NewValLoader(cfg Config, tok Tokenizer) (*Loader, error) {
	cfg = cfg.withDefaults()
	return buildLoader(cfg, cfg.ValSplit, tok, true)
}

// NewTestLoader builds the test pipeline: images only, no caption handling
// and no caption collation.
func NewTestLoader(cfg Config) (*Loader, error) {
	cfg = cfg.withDefaults()
	return buildLoader(cfg, cfg.TestSplit, nil, false)
}

func buildLoader(cfg Config, split string, tok Tokenizer, withCaptions bool) (*Loader, error) {
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	var provider *Provider
	var err error
	if withCaptions {
		provider, err = NewProvider(cfg, split, tok, rng)
	} else {
		provider, err = NewImageProvider(cfg, split, rng)
	}
	if err != nil {
		return nil, err
	}

	var src Source = provider
	if cfg.Subset > 0 {
		src = NewSubset(provider, cfg.Subset)
	}

	var loaderRNG *rand.Rand
	if cfg.Seed != 0 {
		loaderRNG = rand.New(rand.NewSource(cfg.Seed + 1))
	}
	return NewLoader(split, src, cfg.BatchSize, cfg.Shuffle, withCaptions, loaderRNG), nil
}
