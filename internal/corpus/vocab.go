// Package corpus turns a text file into character-level minibatches.
//
// The vocabulary is the set of distinct runes in the corpus, sorted, with ids
// 0..V-1. The encoded text is cut into batchSize parallel streams and each
// stream into seqLength-long windows; consecutive batches continue the same
// streams, which is what lets the trainer carry hidden state across batches.
package corpus

import (
	"fmt"
	"sort"
)

// Vocab is a bijection between runes and dense ids.
type Vocab struct {
	runes []rune         // id -> rune
	ids   map[rune]int32 // rune -> id
}

// NewVocab builds a vocabulary from the distinct runes of text, sorted ascending.
func NewVocab(text string) *Vocab {
	set := make(map[rune]struct{})
	for _, r := range text {
		set[r] = struct{}{}
	}
	runes := make([]rune, 0, len(set))
	for r := range set {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return fromRunes(runes)
}

// FromMapping rebuilds a vocabulary from its rune -> id mapping, as stored in
// checkpoints. Ids must be exactly 0..len(mapping)-1.
func FromMapping(mapping map[string]int32) (*Vocab, error) {
	runes := make([]rune, len(mapping))
	filled := make([]bool, len(mapping))
	for s, id := range mapping {
		r := []rune(s)
		if len(r) != 1 {
			return nil, fmt.Errorf("corpus: vocabulary key %q is not a single character", s)
		}
		if id < 0 || int(id) >= len(runes) || filled[id] {
			return nil, fmt.Errorf("corpus: vocabulary id %d for %q is out of range or duplicated", id, s)
		}
		runes[id] = r[0]
		filled[id] = true
	}
	return fromRunes(runes), nil
}

func fromRunes(runes []rune) *Vocab {
	ids := make(map[rune]int32, len(runes))
	for i, r := range runes {
		ids[r] = int32(i)
	}
	return &Vocab{runes: runes, ids: ids}
}

// Size returns the number of symbols.
func (v *Vocab) Size() int {
	return len(v.runes)
}

// ID returns the id of r.
func (v *Vocab) ID(r rune) (int32, bool) {
	id, ok := v.ids[r]
	return id, ok
}

// Rune returns the symbol for id.
func (v *Vocab) Rune(id int32) rune {
	return v.runes[id]
}

// Encode maps text to ids. Unknown runes are an error.
func (v *Vocab) Encode(text string) ([]int32, error) {
	out := make([]int32, 0, len(text))
	for _, r := range text {
		id, ok := v.ids[r]
		if !ok {
			return nil, fmt.Errorf("corpus: character %q not in vocabulary", r)
		}
		out = append(out, id)
	}
	return out, nil
}

// Decode maps ids back to text.
func (v *Vocab) Decode(ids []int32) string {
	out := make([]rune, len(ids))
	for i, id := range ids {
		out[i] = v.runes[id]
	}
	return string(out)
}

// Mapping returns the rune -> id table keyed by the character as a string.
func (v *Vocab) Mapping() map[string]int32 {
	m := make(map[string]int32, len(v.runes))
	for i, r := range v.runes {
		m[string(r)] = int32(i)
	}
	return m
}

// Equal reports whether both vocabularies assign the same ids to the same runes.
func (v *Vocab) Equal(other *Vocab) bool {
	if other == nil || len(v.runes) != len(other.runes) {
		return false
	}
	for i, r := range v.runes {
		if other.runes[i] != r {
			return false
		}
	}
	return true
}
