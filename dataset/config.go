package dataset

// Default split directory names, following the COCO 2017 layout.
const (
	SplitTrain = "train2017"
	SplitVal   = "val2017"
	SplitTest  = "test2017"
)

// Config collects every knob of the input pipeline. The dataset root used to
// live in a hardcoded path; here it is an explicit option passed to the
// constructors.
type Config struct {
	// Root is the dataset root directory. Images live under Root/<split>/*.jpg
	// and caption files under Root/CaptionDir.
	Root string

	// TrainSplit, ValSplit and TestSplit name the image subdirectories.
	// Defaults: train2017, val2017, test2017.
	TrainSplit string
	ValSplit   string
	TestSplit  string

	// CaptionDir is the subdirectory of Root holding the caption JSON files.
	// Default: "captions".
	CaptionDir string

	// TrainCaptions and ValCaptions name the caption files inside CaptionDir.
	// The train split reads TrainCaptions; every other split reads
	// ValCaptions. Defaults: train_captions.json, val_captions.json.
	TrainCaptions string
	ValCaptions   string

	// ImageSize is the square side images are resized to. Default: 224.
	ImageSize int

	// BatchSize of each yielded batch. Default: 32. The final batch of an
	// epoch may be smaller.
	BatchSize int

	// Shuffle reshuffles the sample order at every epoch start.
	Shuffle bool

	// Subset, when positive, restricts a split to its first Subset samples in
	// discovery order. It is a fixed prefix, not a random sample.
	Subset int

	// TrainAugmentProb is the probability of each random augmentation on the
	// train split. Default: 0.5. Val and test always run the transform
	// pipeline with probability 0, so only the resize applies.
	TrainAugmentProb float64

	// Seed drives shuffling, caption selection and augmentation randomness.
	// Zero means a time-based seed, which is not reproducible across runs.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.TrainSplit == "" {
		c.TrainSplit = SplitTrain
	}
	if c.ValSplit == "" {
		c.ValSplit = SplitVal
	}
	if c.TestSplit == "" {
		c.TestSplit = SplitTest
	}
	if c.CaptionDir == "" {
		c.CaptionDir = "captions"
	}
	if c.TrainCaptions == "" {
		c.TrainCaptions = "train_captions.json"
	}
	if c.ValCaptions == "" {
		c.ValCaptions = "val_captions.json"
	}
	if c.ImageSize == 0 {
		c.ImageSize = 224
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.TrainAugmentProb == 0 {
		c.TrainAugmentProb = 0.5
	}
	return c
}

// captionFile returns the caption file name for a split: the train split
// reads the train file, everything else reads the val file.
func (c Config) captionFile(split string) string {
	if split == c.TrainSplit {
		return c.TrainCaptions
	}
	return c.ValCaptions
}

// augmentProb returns the augmentation probability for a split.
func (c Config) augmentProb(split string) float64 {
	if split == c.TrainSplit {
		return c.TrainAugmentProb
	}
	return 0
}
