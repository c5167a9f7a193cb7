// Package fsm turns a regular expression into a token-level acceptor over a
// tokenizer vocabulary.
//
// A Guide is immutable once built. The automaton position of an in-progress
// sequence is a State value owned by whoever drives decoding; several
// sequences can share one Guide as long as each keeps its own State.
package fsm

import "errors"

// State is a position in a guide's token-level automaton.
type State int

// FinalState is entered once EOS has been emitted. Only EOS is allowed from it.
const FinalState State = -1

var (
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrUnsupportedPattern = errors.New("unsupported pattern construct")
	ErrUnsatisfiable      = errors.New("pattern unsatisfiable by vocabulary")
	ErrEmptyVocabulary    = errors.New("empty vocabulary")
	ErrTokenRejected      = errors.New("token rejected by guide")
)

// CompileError reports a pattern that could not be turned into a guide.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return "compile pattern " + quote(e.Pattern) + ": " + e.Err.Error()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Instruction lists the token ids permitted as the next token.
type Instruction struct {
	Tokens []int
}

// Allows reports whether id is in the instruction's token list.
func (in Instruction) Allows(id int) bool {
	// Tokens is sorted.
	lo, hi := 0, len(in.Tokens)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case in.Tokens[mid] == id:
			return true
		case in.Tokens[mid] < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Guide restricts next-token choice to continuations of an accepted language.
type Guide interface {
	Initial() State
	Instruction(s State) Instruction
	// Next advances s by token. A token outside Instruction(s) returns
	// ErrTokenRejected and leaves the caller's state untouched.
	Next(s State, token int) (State, error)
	IsFinal(s State) bool
}

func quote(s string) string {
	const limit = 64
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return "\"" + s + "\""
}
