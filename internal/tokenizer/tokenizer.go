package tokenizer

import "errors"

// ErrUnknownToken is returned when an id has no entry in the vocabulary or a
// piece of text cannot be covered by any vocabulary entry.
var ErrUnknownToken = errors.New("unknown token")

// Tokenizer maps text to token ids and back, and exposes the vocabulary the
// constraint guides are built over.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// Vocabulary maps every token's decoded text to its id. Special tokens
	// are included.
	Vocabulary() map[string]int
	EOSTokenID() int
}

// SpecialTokens is implemented by tokenizers that can tell which ids are
// control tokens. Guides never allow special tokens other than EOS.
type SpecialTokens interface {
	IsSpecial(id int) bool
}

// Sized is a Tokenizer whose ids are dense in [0, Size()).
type Sized interface {
	Tokenizer
	Size() int
}
