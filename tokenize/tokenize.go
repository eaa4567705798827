// Package tokenize wraps a HuggingFace tokenizer behind the small encoding
// surface the dataset pipeline needs.
package tokenize

import (
	"strings"

	"github.com/pkg/errors"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// MaxTokens is the truncation ceiling for a single caption. Sequences longer
// than this are cut; padding up to a common length is the collation step's
// job, not the tokenizer's.
const MaxTokens = 512

// Bert encodes caption text with a tokenizer loaded from a HuggingFace
// tokenizer.json file (e.g. bert-base-uncased).
type Bert struct {
	tok    *tk.Tokenizer
	maxLen int
}

// NewBert loads a tokenizer.json from path.
func NewBert(path string) (*Bert, error) {
	tok, err := pretrained.FromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tokenizer from %s", path)
	}
	return &Bert{tok: tok, maxLen: MaxTokens}, nil
}

// VocabSize returns the size of the tokenizer's base vocabulary.
func (b *Bert) VocabSize() int {
	return int(b.tok.GetVocabSize(false))
}

// Encode converts caption text into token IDs with special tokens added,
// truncated to MaxTokens.
func (b *Bert) Encode(text string) ([]int32, error) {
	enc, err := b.tok.EncodeSingle(strings.TrimSpace(text), true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to tokenize %q", text)
	}
	ids := enc.Ids
	if len(ids) > b.maxLen {
		ids = ids[:b.maxLen]
	}
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out, nil
}
