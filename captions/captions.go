// Package captions loads per-split caption annotation files and serves
// image-ID lookups for the rest of the input pipeline.
//
// A caption file is a JSON array of records, one per image:
//
//	[{"image_id": 123, "captions": ["a dog", "a small dog on grass"]}, ...]
//
// The file is read once at construction and indexed by image ID; the store is
// immutable afterwards and safe to share across concurrent readers.
package captions

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Record is one entry of a caption annotation file: a numeric image ID and
// the human-written captions for that image.
type Record struct {
	ImageID  int64    `json:"image_id"`
	Captions []string `json:"captions"`
}

// Store holds the caption annotations for one split, indexed by image ID.
type Store struct {
	byID map[int64][]string
}

// Load reads a caption JSON file and builds the ID index.
//
// A missing file is not fatal: Load logs a warning and returns an empty
// store, so every downstream lookup simply misses. A file that exists but
// fails to parse is a real error.
//
// Records are inserted in file order, so if the file contains several records
// for the same image ID the last one wins. This mirrors the behavior of the
// linear scan the index replaces.
func Load(path string) (*Store, error) {
	s := &Store{byID: make(map[int64][]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			klog.Warningf("caption file %s not found, continuing with an empty caption set", path)
			return s, nil
		}
		return nil, errors.Wrapf(err, "failed to read caption file %s", path)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "failed to parse caption file %s", path)
	}

	for _, rec := range records {
		s.byID[rec.ImageID] = rec.Captions
	}
	return s, nil
}

// Lookup returns the captions recorded for an image ID.
func (s *Store) Lookup(id int64) ([]string, bool) {
	caps, ok := s.byID[id]
	return caps, ok
}

// Len returns the number of distinct image IDs with caption records.
func (s *Store) Len() int { return len(s.byID) }

// Empty reports whether the store holds no caption records at all.
func (s *Store) Empty() bool { return len(s.byID) == 0 }
