// Package processors holds logits processors: per-step mutators that a
// backend's native decode loop calls to enforce a constraint, and the
// registry through which backend integrations make their processors available.
package processors

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samcharles93/boost/internal/fsm"
	"github.com/samcharles93/boost/internal/tokenizer"
)

// LogitsProcessor adjusts raw next-token scores in place. generated holds the
// ids emitted so far for the sequence being decoded, without the prompt.
type LogitsProcessor interface {
	Process(generated []int, logits []float32) error
}

// Resetter is implemented by processors that keep per-sequence state.
type Resetter interface {
	Reset()
}

var negInf = float32(math.Inf(-1))

// Regex masks every token the guide does not allow from the sequence's
// current automaton state. State is tracked per sequence, keyed by a hash of
// the generated ids, so one processor serves any number of sequences in a
// batch. Safe for concurrent use.
type Regex struct {
	pattern string
	guide   fsm.Guide

	mu     sync.Mutex
	states map[uint64]fsm.State
}

// NewRegex compiles pattern against tok. Compilation errors are returned
// as produced by fsm.
func NewRegex(pattern string, tok tokenizer.Tokenizer) (*Regex, error) {
	guide, err := fsm.NewRegexGuide(pattern, tok)
	if err != nil {
		return nil, err
	}
	return NewGuided(pattern, guide), nil
}

// NewGuided wraps an already built guide.
func NewGuided(pattern string, guide fsm.Guide) *Regex {
	return &Regex{
		pattern: pattern,
		guide:   guide,
		states:  make(map[uint64]fsm.State),
	}
}

func (p *Regex) Pattern() string { return p.pattern }

func (p *Regex) Guide() fsm.Guide { return p.guide }

func (p *Regex) Process(generated []int, logits []float32) error {
	state, err := p.state(generated)
	if err != nil {
		return err
	}
	allowed := p.guide.Instruction(state).Tokens

	kept := make([]float32, len(allowed))
	for i, id := range allowed {
		if id >= 0 && id < len(logits) {
			kept[i] = logits[id]
		}
	}
	for i := range logits {
		logits[i] = negInf
	}
	for i, id := range allowed {
		if id >= 0 && id < len(logits) {
			logits[id] = kept[i]
		}
	}
	return nil
}

// Reset forgets all tracked sequences.
func (p *Regex) Reset() {
	p.mu.Lock()
	clear(p.states)
	p.mu.Unlock()
}

func (p *Regex) state(generated []int) (fsm.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := hashIDs(generated)
	if s, ok := p.states[key]; ok {
		return s, nil
	}
	if len(generated) == 0 {
		s := p.guide.Initial()
		p.states[key] = s
		return s, nil
	}

	last := generated[len(generated)-1]
	prev, ok := p.states[hashIDs(generated[:len(generated)-1])]
	if !ok {
		// Unseen prefix: replay it from the start.
		prev = p.guide.Initial()
		for i, id := range generated[:len(generated)-1] {
			next, err := p.guide.Next(prev, id)
			if err != nil {
				return prev, fmt.Errorf("replay token %d at position %d: %w", id, i, err)
			}
			prev = next
		}
	}
	s, err := p.guide.Next(prev, last)
	if err != nil {
		return prev, err
	}
	p.states[key] = s
	return s, nil
}

func hashIDs(ids []int) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 8*len(ids)+8)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(ids)))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
	}
	_, _ = d.Write(buf)
	return d.Sum64()
}
