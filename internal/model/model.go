// Package model defines the closed set of model variants the constraint
// factory dispatches on, and the handle contracts each variant carries.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/samcharles93/boost/internal/tokenizer"
)

var ErrNilHandle = errors.New("model handle is nil")

// Kind names a variant. Integrations register processors under Kind.String().
type Kind int

const (
	KindLocal Kind = iota
	KindLlamaCpp
	KindMLX
	KindVLLM
	KindOpenAI
)

var kindNames = [...]string{
	KindLocal:    "local",
	KindLlamaCpp: "llamacpp",
	KindMLX:      "mlx",
	KindVLLM:     "vllm",
	KindOpenAI:   "openai",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String, case-insensitive.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q (expected local, llamacpp, mlx, vllm, or openai)", s)
}

// Variant is a model handle of one of the known runtime identities. The set
// is closed: only types in this package implement it directly, though a
// struct embedding one of them also satisfies it.
type Variant interface {
	Kind() Kind
	Tokenizer() tokenizer.Tokenizer
	variant()
}

// Runtime is the inference handle the generic decode loop drives.
type Runtime interface {
	ForwardToken(id int) ([]float32, error)
	Reset()
}

// LocalModel is what the generic decode loop needs from a model.
type LocalModel interface {
	Tokenizer() tokenizer.Tokenizer
	Runtime() Runtime
	DeviceName() string
}

// NativeRequest is handed to a backend's own decode loop.
type NativeRequest struct {
	Prompts   []string
	MaxTokens int
	StopAt    []string
	Sampler   samplers.Config
	Processor processors.LogitsProcessor
}

// NativeGenerator runs a backend's optimised decode loop, calling the
// request's processor once per step on the raw scores.
type NativeGenerator interface {
	GenerateNative(ctx context.Context, req *NativeRequest) ([]string, error)
}
