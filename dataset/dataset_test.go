package dataset

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hericlys/cocopipe/captions"
)

// fakeTokenizer maps each word to its rune length, so token sequences are
// deterministic and distinguish captions by content.
type fakeTokenizer struct{}

func (fakeTokenizer) Encode(text string) ([]int32, error) {
	words := strings.Fields(text)
	ids := make([]int32, len(words))
	for i, w := range words {
		ids[i] = int32(len(w))
	}
	return ids, nil
}

// writeJPEG writes a w×h solid-color JPEG to path.
func writeJPEG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// writeCaptionsFile marshals records into a caption JSON file, creating the
// parent directory.
func writeCaptionsFile(t *testing.T, path string, recs []captions.Record) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to mkdir for %s: %v", path, err)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		t.Fatalf("failed to marshal captions: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// valFixture builds a dataset root with images in val2017 (no augmentation,
// so pipelines are deterministic) and a val caption file.
func valFixture(t *testing.T, ids []int64, recs []captions.Record) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, SplitVal)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to mkdir %s: %v", dir, err)
	}
	for i, id := range ids {
		name := filepath.Join(dir, paddedName(id))
		writeJPEG(t, name, 10+i, 12, color.NRGBA{R: uint8(40 * (i + 1)), G: 80, B: 120, A: 255})
	}
	writeCaptionsFile(t, filepath.Join(root, "captions", "val_captions.json"), recs)
	return root
}

// paddedName formats an image ID the way COCO names files: zero-padded
// digits plus the .jpg extension.
func paddedName(id int64) string {
	digits := []byte("000000")
	for i := len(digits) - 1; i >= 0 && id > 0; i-- {
		digits[i] = byte('0' + id%10)
		id /= 10
	}
	return string(digits) + ".jpg"
}

func TestProviderGet(t *testing.T) {
	root := valFixture(t, []int64{123},
		[]captions.Record{{ImageID: 123, Captions: []string{"a dog"}}})
	cfg := Config{Root: root, ImageSize: 8, Seed: 1}

	p, err := NewProvider(cfg, SplitVal, fakeTokenizer{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 image, got %d", p.Len())
	}

	img, ids, err := p.Get(0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("expected 8x8 image, got %v", img.Bounds())
	}
	// Single caption, so random selection is deterministic: "a dog".
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected token sequence: %v", ids)
	}
}

func TestProviderSortedDiscovery(t *testing.T) {
	root := valFixture(t, []int64{125, 123, 124}, nil)
	p, err := NewImageProvider(Config{Root: root, ImageSize: 8}, SplitVal, nil)
	if err != nil {
		t.Fatalf("NewImageProvider failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 images, got %d", p.Len())
	}
	for i, want := range []string{"000123.jpg", "000124.jpg", "000125.jpg"} {
		if got := filepath.Base(p.ImagePath(i)); got != want {
			t.Fatalf("index %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestProviderNoCaptions(t *testing.T) {
	root := valFixture(t, []int64{999},
		[]captions.Record{{ImageID: 123, Captions: []string{"a dog"}}})
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	// The miss is deterministic: every access to this image fails the same way.
	for i := 0; i < 3; i++ {
		_, _, err := p.Get(0)
		if !errors.Is(err, ErrNoCaptions) {
			t.Fatalf("expected ErrNoCaptions, got %v", err)
		}
	}
}

// TestProviderEmptyCaptionList treats a record with an empty caption list the
// same as a missing record.
func TestProviderEmptyCaptionList(t *testing.T) {
	root := valFixture(t, []int64{123},
		[]captions.Record{{ImageID: 123, Captions: []string{}}})
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, _, err := p.Get(0); !errors.Is(err, ErrNoCaptions) {
		t.Fatalf("expected ErrNoCaptions for empty caption list, got %v", err)
	}
}

// TestProviderMissingCaptionFile checks the degraded mode end to end: no
// caption file at all means construction succeeds and every sample misses.
func TestProviderMissingCaptionFile(t *testing.T) {
	root := valFixture(t, []int64{123}, nil)
	if err := os.RemoveAll(filepath.Join(root, "captions")); err != nil {
		t.Fatalf("failed to remove captions dir: %v", err)
	}
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, _, err := p.Get(0); !errors.Is(err, ErrNoCaptions) {
		t.Fatalf("expected ErrNoCaptions with missing caption file, got %v", err)
	}
}

// TestProviderDuplicateLastWins checks the duplicate policy through the full
// sample path: the caption served comes from the last matching record.
func TestProviderDuplicateLastWins(t *testing.T) {
	root := valFixture(t, []int64{123}, []captions.Record{
		{ImageID: 123, Captions: []string{"first one"}},
		{ImageID: 123, Captions: []string{"second caption"}},
	})
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	_, ids, err := p.Get(0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	// "second caption" -> word lengths [6, 7].
	if len(ids) != 2 || ids[0] != 6 || ids[1] != 7 {
		t.Fatalf("expected tokens of last record, got %v", ids)
	}
}

// TestProviderCaptionSelection verifies the injected randomness source
// drives caption choice: with several captions and a seeded rand, repeated
// accesses must eventually return each of them.
func TestProviderCaptionSelection(t *testing.T) {
	root := valFixture(t, []int64{123}, []captions.Record{
		{ImageID: 123, Captions: []string{"aa", "bbb"}},
	})
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	seen := make(map[int32]bool)
	for i := 0; i < 50; i++ {
		_, ids, err := p.Get(0)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(ids) != 1 || (ids[0] != 2 && ids[0] != 3) {
			t.Fatalf("unexpected token sequence: %v", ids)
		}
		seen[ids[0]] = true
	}
	if !seen[2] || !seen[3] {
		t.Fatalf("expected both captions to be selected over 50 draws, saw %v", seen)
	}
}

func TestProviderCorruptImage(t *testing.T) {
	root := valFixture(t, nil, []captions.Record{{ImageID: 1, Captions: []string{"x"}}})
	bad := filepath.Join(root, SplitVal, "000001.jpg")
	if err := os.WriteFile(bad, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt image: %v", err)
	}
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	_, _, err = p.Get(0)
	if err == nil {
		t.Fatalf("expected decode error for corrupt image")
	}
	if errors.Is(err, ErrNoCaptions) {
		t.Fatalf("decode failure should not be reported as missing captions")
	}
}

func TestProviderNonNumericFilename(t *testing.T) {
	root := valFixture(t, nil, nil)
	writeJPEG(t, filepath.Join(root, SplitVal, "cover.jpg"), 4, 4, color.NRGBA{A: 255})

	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, _, err := p.Get(0); err == nil {
		t.Fatalf("expected error for non-numeric filename stem")
	}
}

func TestImageProviderHasNoCaptionPath(t *testing.T) {
	root := valFixture(t, []int64{5}, nil)
	p, err := NewImageProvider(Config{Root: root, ImageSize: 8}, SplitVal, nil)
	if err != nil {
		t.Fatalf("NewImageProvider failed: %v", err)
	}

	img, err := p.GetImage(0)
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("expected 8x8 image, got %v", img.Bounds())
	}
	if _, _, err := p.Get(0); err == nil {
		t.Fatalf("expected Get to fail on an image-only provider")
	}
}

func TestSubset(t *testing.T) {
	root := valFixture(t, []int64{1, 2, 3}, []captions.Record{
		{ImageID: 1, Captions: []string{"a"}},
		{ImageID: 2, Captions: []string{"bb"}},
		{ImageID: 3, Captions: []string{"ccc"}},
	})
	p, err := NewProvider(Config{Root: root, ImageSize: 8}, SplitVal, fakeTokenizer{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	s := NewSubset(p, 2)
	if s.Len() != 2 {
		t.Fatalf("expected subset length 2, got %d", s.Len())
	}

	// Index mapping is preserved for [0, n).
	for i, wantLen := range []int32{1, 2} {
		_, ids, err := s.Get(i)
		if err != nil {
			t.Fatalf("subset Get(%d) failed: %v", i, err)
		}
		if len(ids) != 1 || ids[0] != wantLen {
			t.Fatalf("subset Get(%d): unexpected tokens %v", i, ids)
		}
	}
	if _, _, err := s.Get(2); err == nil {
		t.Fatalf("expected out-of-range error past subset length")
	}

	// Clamping: asking for more than the provider holds.
	if got := NewSubset(p, 10).Len(); got != 3 {
		t.Fatalf("expected clamped subset length 3, got %d", got)
	}
}
