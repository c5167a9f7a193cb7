// Package vllm wires regex constraints into vLLM. Importing it registers the
// "vllm" processor builder. Server is a VLLMEngine backed by a vLLM
// OpenAI-compatible endpoint.
package vllm

import (
	"fmt"

	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
)

func init() {
	processors.Register(model.KindVLLM.String(), build)
}

func build(pattern string, native any) (processors.LogitsProcessor, error) {
	engine, ok := native.(model.VLLMEngine)
	if !ok || engine == nil {
		return nil, fmt.Errorf("vllm: native handle %T is not a vLLM engine", native)
	}
	return NewRegexLogitsProcessor(pattern, engine)
}

// NewRegexLogitsProcessor compiles pattern against the engine's tokenizer.
func NewRegexLogitsProcessor(pattern string, engine model.VLLMEngine) (*processors.Regex, error) {
	tok := engine.GetTokenizer()
	if tok == nil {
		return nil, fmt.Errorf("vllm: engine has no tokenizer")
	}
	return processors.NewRegex(pattern, tok)
}
