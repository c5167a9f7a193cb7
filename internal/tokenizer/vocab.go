package tokenizer

import (
	"fmt"
	"maps"
	"strings"
)

// Vocab is a greedy longest-match tokenizer over a fixed vocabulary. It is
// what the toy runtime and the vocabulary files loaded by LoadVocabJSON use.
type Vocab struct {
	pieces  []string
	ids     map[string]int
	special map[int]bool
	eos     int
	maxLen  int
}

// NewVocab builds a Vocab from tokens indexed by id. eos must name a token in
// the list; it is treated as special and never matched by Encode.
func NewVocab(tokens []string, eos string) (*Vocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: no tokens")
	}
	v := &Vocab{
		pieces:  append([]string(nil), tokens...),
		ids:     make(map[string]int, len(tokens)),
		special: make(map[int]bool),
		eos:     -1,
	}
	for id, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("vocab: empty token at id %d", id)
		}
		if prev, ok := v.ids[tok]; ok {
			return nil, fmt.Errorf("vocab: token %q duplicated at ids %d and %d", tok, prev, id)
		}
		v.ids[tok] = id
		if tok == eos {
			v.eos = id
			v.special[id] = true
			continue
		}
		v.maxLen = max(v.maxLen, len(tok))
	}
	if v.eos < 0 {
		return nil, fmt.Errorf("vocab: eos token %q not in vocabulary", eos)
	}
	return v, nil
}

// MarkSpecial flags additional control tokens. Special tokens are excluded
// from Encode matching.
func (v *Vocab) MarkSpecial(tokens ...string) error {
	for _, tok := range tokens {
		id, ok := v.ids[tok]
		if !ok {
			return fmt.Errorf("vocab: special token %q: %w", tok, ErrUnknownToken)
		}
		v.special[id] = true
	}
	return nil
}

func (v *Vocab) Encode(text string) ([]int, error) {
	out := make([]int, 0, len(text)/2+1)
	for i := 0; i < len(text); {
		n := min(v.maxLen, len(text)-i)
		matched := false
		for ; n > 0; n-- {
			id, ok := v.ids[text[i:i+n]]
			if ok && !v.special[id] {
				out = append(out, id)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("encode at byte %d: %w", i, ErrUnknownToken)
		}
	}
	return out, nil
}

func (v *Vocab) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(v.pieces) {
			return "", fmt.Errorf("decode id %d: %w", id, ErrUnknownToken)
		}
		if v.special[id] {
			continue
		}
		sb.WriteString(v.pieces[id])
	}
	return sb.String(), nil
}

func (v *Vocab) Vocabulary() map[string]int {
	return maps.Clone(v.ids)
}

func (v *Vocab) EOSTokenID() int { return v.eos }

func (v *Vocab) IsSpecial(id int) bool { return v.special[id] }

// Size returns the number of ids in the vocabulary.
func (v *Vocab) Size() int { return len(v.pieces) }
