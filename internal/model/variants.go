package model

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/samcharles93/boost/internal/tokenizer"
)

// Local is the default variant: a locally loaded model exposing a tokenizer
// and a per-token forward pass.
type Local struct {
	Tok    tokenizer.Tokenizer
	Runner Runtime
	Device string
}

func NewLocal(tok tokenizer.Tokenizer, runner Runtime, device string) (*Local, error) {
	if tok == nil || runner == nil {
		return nil, fmt.Errorf("local model: %w", ErrNilHandle)
	}
	if device == "" {
		device = "cpu"
	}
	return &Local{Tok: tok, Runner: runner, Device: device}, nil
}

func (m *Local) Kind() Kind                     { return KindLocal }
func (m *Local) Tokenizer() tokenizer.Tokenizer { return m.Tok }
func (m *Local) Runtime() Runtime               { return m.Runner }
func (m *Local) DeviceName() string             { return m.Device }
func (*Local) variant()                         {}

// LlamaCppHandle is the slice of the llama.cpp model API the integration
// needs: vocabulary access plus the native decode loop.
type LlamaCppHandle interface {
	NativeGenerator
	Tokenize(text string, addSpecial bool) []int
	TokenToPiece(id int) string
	NVocab() int
	TokenEOS() int
}

// LlamaCpp is an accelerated local backend with its own decode loop.
type LlamaCpp struct {
	Model LlamaCppHandle
	tok   tokenizer.Tokenizer
}

// NewLlamaCpp wraps h. tok is the abstract tokenizer used by callers; the
// constraint processor is built from h directly.
func NewLlamaCpp(h LlamaCppHandle, tok tokenizer.Tokenizer) (*LlamaCpp, error) {
	if h == nil {
		return nil, fmt.Errorf("llamacpp model: %w", ErrNilHandle)
	}
	return &LlamaCpp{Model: h, tok: tok}, nil
}

func (m *LlamaCpp) Kind() Kind                     { return KindLlamaCpp }
func (m *LlamaCpp) Tokenizer() tokenizer.Tokenizer { return m.tok }
func (m *LlamaCpp) Generator() NativeGenerator     { return m.Model }
func (m *LlamaCpp) Native() any                    { return m.Model }
func (*LlamaCpp) variant()                         {}

// MLXHandle is an MLX model and its decode loop.
type MLXHandle interface {
	NativeGenerator
}

// MLX is an accelerated local backend. Its processor is built from the
// model's tokenizer.
type MLX struct {
	Model MLXHandle
	Tok   tokenizer.Tokenizer
}

func NewMLX(h MLXHandle, tok tokenizer.Tokenizer) (*MLX, error) {
	if h == nil || tok == nil {
		return nil, fmt.Errorf("mlx model: %w", ErrNilHandle)
	}
	return &MLX{Model: h, Tok: tok}, nil
}

func (m *MLX) Kind() Kind                     { return KindMLX }
func (m *MLX) Tokenizer() tokenizer.Tokenizer { return m.Tok }
func (m *MLX) Generator() NativeGenerator     { return m.Model }
func (m *MLX) Native() any                    { return m.Tok }
func (*MLX) variant()                         {}

// VLLMEngine is a distributed inference engine.
type VLLMEngine interface {
	NativeGenerator
	GetTokenizer() tokenizer.Tokenizer
}

// VLLM is a distributed inference backend.
type VLLM struct {
	Engine VLLMEngine
}

func NewVLLM(e VLLMEngine) (*VLLM, error) {
	if e == nil {
		return nil, fmt.Errorf("vllm model: %w", ErrNilHandle)
	}
	return &VLLM{Engine: e}, nil
}

func (m *VLLM) Kind() Kind                     { return KindVLLM }
func (m *VLLM) Tokenizer() tokenizer.Tokenizer { return m.Engine.GetTokenizer() }
func (m *VLLM) Generator() NativeGenerator     { return m.Engine }
func (m *VLLM) Native() any                    { return m.Engine }
func (*VLLM) variant()                         {}

// OpenAI is a remote hosted-API backend. Its API exposes no per-token
// logits hook, so no constraint can be enforced through it.
type OpenAI struct {
	Client openai.Client
	Name   string
	Tok    tokenizer.Tokenizer
}

func NewOpenAI(client openai.Client, name string, tok tokenizer.Tokenizer) *OpenAI {
	return &OpenAI{Client: client, Name: name, Tok: tok}
}

func (m *OpenAI) Kind() Kind                     { return KindOpenAI }
func (m *OpenAI) Tokenizer() tokenizer.Tokenizer { return m.Tok }
func (*OpenAI) variant()                         {}

// Accelerated is implemented by variants whose constraint is injected as a
// processor into their own decode loop. Native returns the handle their
// processor builder consumes.
type Accelerated interface {
	Variant
	Generator() NativeGenerator
	Native() any
}

var (
	_ LocalModel  = (*Local)(nil)
	_ Accelerated = (*LlamaCpp)(nil)
	_ Accelerated = (*MLX)(nil)
	_ Accelerated = (*VLLM)(nil)
	_ Variant     = (*OpenAI)(nil)
)
