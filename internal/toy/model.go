// Package toy provides a tiny deterministic language model for the default
// (generic loop) path. It is what the CLI runs when no real runtime is
// configured, and what the pipeline tests decode with.
package toy

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/tokenizer"
)

// LM is an embedding matrix, a recurrent mix of the previous hidden state and
// a projection back to vocabulary logits. Weights are derived from a seed.
type LM struct {
	Vocab  int
	Hidden int

	emb  []float32 // [Vocab x Hidden]
	w    []float32 // [Hidden x Vocab]
	bias []float32 // [Vocab]
	h    []float32 // [Hidden] carried between tokens
}

func NewLM(vocab, hidden int, seed int64) *LM {
	m := &LM{
		Vocab:  vocab,
		Hidden: hidden,
		emb:    make([]float32, vocab*hidden),
		w:      make([]float32, hidden*vocab),
		bias:   make([]float32, vocab),
		h:      make([]float32, hidden),
	}
	fillRand(m.emb, seed+11)
	fillRand(m.w, seed+23)
	return m
}

// ForwardToken mixes token id into the hidden state and returns a freshly
// allocated logits vector.
func (m *LM) ForwardToken(id int) ([]float32, error) {
	if id < 0 || id >= m.Vocab {
		return nil, fmt.Errorf("toy: token %d out of range [0,%d)", id, m.Vocab)
	}
	row := m.emb[id*m.Hidden : (id+1)*m.Hidden]
	for i := range m.h {
		m.h[i] = float32(math.Tanh(float64(row[i] + 0.5*m.h[i])))
	}
	logits := make([]float32, m.Vocab)
	for j := range logits {
		var sum float32
		for i, hv := range m.h {
			sum += hv * m.w[i*m.Vocab+j]
		}
		logits[j] = sum + m.bias[j]
	}
	return logits, nil
}

// Reset clears the carried hidden state.
func (m *LM) Reset() { clear(m.h) }

func fillRand(dst []float32, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = float32(r.NormFloat64())
	}
}

// NewLocal builds the default-path model variant over tokens.
func NewLocal(tokens []string, eos string, hidden int, seed int64) (*model.Local, error) {
	vocab, err := tokenizer.NewVocab(tokens, eos)
	if err != nil {
		return nil, err
	}
	return model.NewLocal(vocab, NewLM(vocab.Size(), hidden, seed), "cpu")
}

// NewLocalFromVocab builds the default-path model variant over an existing
// tokenizer, sizing the toy runtime to its vocabulary.
func NewLocalFromVocab(vocab tokenizer.Sized, hidden int, seed int64) (*model.Local, error) {
	return model.NewLocal(vocab, NewLM(vocab.Size(), hidden, seed), "cpu")
}

// DefaultTokens is a small mixed-script vocabulary for demos: ASCII letters,
// digits and punctuation, a few words, and common Hangul syllables.
func DefaultTokens() []string {
	tokens := []string{"</s>", " ", "\n"}
	for c := 'a'; c <= 'z'; c++ {
		tokens = append(tokens, string(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		tokens = append(tokens, string(c))
	}
	for c := '0'; c <= '9'; c++ {
		tokens = append(tokens, string(c))
	}
	tokens = append(tokens,
		".", ",", "!", "?", "-", "_", ":", "@", "/", "(", ")", "{", "}", "[", "]", "\"",
		"the", "and", "hello", "world", "yes", "no", "true", "false", "null",
		"안", "녕", "하", "세", "요", "감", "사", "합", "니", "다", "한", "국", "어",
	)
	return tokens
}
