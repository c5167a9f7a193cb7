// Package llamacpp wires regex constraints into llama.cpp's decode loop.
// Importing it registers the "llamacpp" processor builder.
package llamacpp

import (
	"fmt"
	"strings"

	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
)

func init() {
	processors.Register(model.KindLlamaCpp.String(), build)
}

func build(pattern string, native any) (processors.LogitsProcessor, error) {
	llm, ok := native.(model.LlamaCppHandle)
	if !ok || llm == nil {
		return nil, fmt.Errorf("llamacpp: native handle %T is not a llama.cpp model", native)
	}
	return NewRegexLogitsProcessor(pattern, llm)
}

// NewRegexLogitsProcessor compiles pattern against the vocabulary of llm.
func NewRegexLogitsProcessor(pattern string, llm model.LlamaCppHandle) (*processors.Regex, error) {
	return processors.NewRegex(pattern, NewTokenizer(llm))
}

// Tokenizer exposes a llama.cpp model's vocabulary through
// tokenizer.Tokenizer. Ids whose piece is empty, or repeats an earlier
// id's piece, are reported as special so guides skip them.
type Tokenizer struct {
	llm     model.LlamaCppHandle
	vocab   map[string]int
	special map[int]bool
}

func NewTokenizer(llm model.LlamaCppHandle) *Tokenizer {
	n := llm.NVocab()
	t := &Tokenizer{
		llm:     llm,
		vocab:   make(map[string]int, n),
		special: make(map[int]bool),
	}
	eos := llm.TokenEOS()
	for id := 0; id < n; id++ {
		piece := llm.TokenToPiece(id)
		if id == eos {
			t.vocab[piece] = id
			continue
		}
		if _, dup := t.vocab[piece]; piece == "" || dup {
			t.special[id] = true
			continue
		}
		t.vocab[piece] = id
	}
	return t
}

func (t *Tokenizer) Encode(text string) ([]int, error) {
	return t.llm.Tokenize(text, false), nil
}

func (t *Tokenizer) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id == t.llm.TokenEOS() {
			continue
		}
		sb.WriteString(t.llm.TokenToPiece(id))
	}
	return sb.String(), nil
}

func (t *Tokenizer) Vocabulary() map[string]int {
	out := make(map[string]int, len(t.vocab))
	for k, v := range t.vocab {
		out[k] = v
	}
	return out
}

func (t *Tokenizer) EOSTokenID() int { return t.llm.TokenEOS() }

func (t *Tokenizer) IsSpecial(id int) bool { return t.special[id] }
