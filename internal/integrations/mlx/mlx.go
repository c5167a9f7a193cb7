// Package mlx wires regex constraints into MLX's decode loop. Importing it
// registers the "mlx" processor builder.
package mlx

import (
	"fmt"

	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/tokenizer"
)

func init() {
	processors.Register(model.KindMLX.String(), build)
}

// build receives the MLX model's tokenizer as its native handle.
func build(pattern string, native any) (processors.LogitsProcessor, error) {
	tok, ok := native.(tokenizer.Tokenizer)
	if !ok || tok == nil {
		return nil, fmt.Errorf("mlx: native handle %T is not a tokenizer", native)
	}
	return NewRegexLogitsProcessor(pattern, tok)
}

func NewRegexLogitsProcessor(pattern string, tok tokenizer.Tokenizer) (*processors.Regex, error) {
	return processors.NewRegex(pattern, tok)
}
