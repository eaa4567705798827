// Command cocostats scans one split of a caption dataset and reports its
// health: how many images decode, how many have no caption record, and which
// caption IDs are duplicated. It can also write a histogram of caption
// lengths (in tokens when a tokenizer.json is given, in words otherwise).
//
// Example:
//
//	cocostats -root /data/coco2017 -split train2017 \
//	    -tokenizer bert-base-uncased/tokenizer.json -hist lengths.png
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/hericlys/cocopipe/captions"
	"github.com/hericlys/cocopipe/dataset"
	"github.com/hericlys/cocopipe/tokenize"
)

var (
	rootFlag       = flag.String("root", "", "dataset root directory (required)")
	splitFlag      = flag.String("split", dataset.SplitTrain, "split directory to scan")
	captionDirFlag = flag.String("caption-dir", "captions", "caption subdirectory under root")
	sizeFlag       = flag.Int("size", 64, "resize side used while checking images")
	subsetFlag     = flag.Int("subset", 0, "scan only the first N images (0 = all)")
	tokenizerFlag  = flag.String("tokenizer", "", "path to a tokenizer.json; when set, caption lengths are in tokens")
	histFlag       = flag.String("hist", "", "write a caption-length histogram PNG to this path")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *rootFlag == "" {
		fmt.Fprintln(os.Stderr, "cocostats: -root is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(); err != nil {
		klog.Exitf("cocostats: %v", err)
	}
}

func run() error {
	cfg := dataset.Config{
		Root:       *rootFlag,
		CaptionDir: *captionDirFlag,
		ImageSize:  *sizeFlag,
	}

	provider, err := dataset.NewImageProvider(cfg, *splitFlag, nil)
	if err != nil {
		return err
	}

	captionPath := filepath.Join(*rootFlag, *captionDirFlag, captionFileFor(*splitFlag))
	store, err := captions.Load(captionPath)
	if err != nil {
		return err
	}
	dupes, err := duplicateIDs(captionPath)
	if err != nil {
		return err
	}

	var encode func(string) (int, error)
	if *tokenizerFlag != "" {
		bert, err := tokenize.NewBert(*tokenizerFlag)
		if err != nil {
			return err
		}
		encode = func(text string) (int, error) {
			ids, err := bert.Encode(text)
			return len(ids), err
		}
	} else {
		encode = func(text string) (int, error) {
			return len(strings.Fields(text)), nil
		}
	}

	total := provider.Len()
	if *subsetFlag > 0 && *subsetFlag < total {
		total = *subsetFlag
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
	)

	var badImages, captionless int
	var lengths plotter.Values
	for i := 0; i < total; i++ {
		if _, err := provider.GetImage(i); err != nil {
			klog.V(1).Infof("unreadable image %s: %v", provider.ImagePath(i), err)
			badImages++
			_ = bar.Add(1)
			continue
		}
		id, caps, ok := lookupCaptions(provider.ImagePath(i), store)
		if !ok || len(caps) == 0 {
			klog.V(1).Infof("no captions for image ID %d (%s)", id, provider.ImagePath(i))
			captionless++
			_ = bar.Add(1)
			continue
		}
		for _, c := range caps {
			n, err := encode(c)
			if err != nil {
				return err
			}
			lengths = append(lengths, float64(n))
		}
		_ = bar.Add(1)
	}
	_ = bar.Close()
	fmt.Println()

	fmt.Printf("split %s: %d images scanned\n", *splitFlag, total)
	fmt.Printf("  unreadable images:  %d\n", badImages)
	fmt.Printf("  captionless images: %d\n", captionless)
	fmt.Printf("  caption records:    %d\n", store.Len())
	fmt.Printf("  duplicate IDs:      %d\n", len(dupes))
	for _, id := range dupes {
		fmt.Printf("    image_id %d appears more than once (last record wins)\n", id)
	}

	if *histFlag != "" && len(lengths) > 0 {
		if err := plotLengths(lengths, *histFlag); err != nil {
			return err
		}
		fmt.Printf("caption-length histogram written to %s\n", *histFlag)
	}
	return nil
}

// captionFileFor mirrors the split→file selection of the dataset package.
func captionFileFor(split string) string {
	if split == dataset.SplitTrain {
		return "train_captions.json"
	}
	return "val_captions.json"
}

// lookupCaptions parses the image ID from path and looks it up in the store.
func lookupCaptions(path string, store *captions.Store) (int64, []string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var id int64
	if _, err := fmt.Sscanf(stem, "%d", &id); err != nil {
		return 0, nil, false
	}
	caps, ok := store.Lookup(id)
	return id, caps, ok
}

// duplicateIDs re-reads the raw caption file to find IDs that appear in more
// than one record. The Store cannot report this: its index already resolved
// duplicates last-wins.
func duplicateIDs(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []captions.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	seen := make(map[int64]int)
	for _, rec := range records {
		seen[rec.ImageID]++
	}
	var dupes []int64
	for _, rec := range records {
		if seen[rec.ImageID] > 1 {
			dupes = append(dupes, rec.ImageID)
			seen[rec.ImageID] = 0 // report each ID once
		}
	}
	return dupes, nil
}

func plotLengths(lengths plotter.Values, outPath string) error {
	p := plot.New()
	p.Title.Text = "Caption lengths"
	p.X.Label.Text = "length"
	p.Y.Label.Text = "captions"

	h, err := plotter.NewHist(lengths, 32)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}
