// Package generate holds the generation pipelines the constraint factory
// returns: a generic token-by-token loop for local models, and an adapter
// that hands a logits processor to a backend's own decode loop.
package generate

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxTokens bounds a sequence when the request sets no limit.
const DefaultMaxTokens = 256

var ErrNoPrompts = errors.New("request has no prompts")

// StreamFunc receives decoded text as it is produced. seq indexes
// Result.Texts.
type StreamFunc func(seq int, text string)

// Pipeline produces constrained text for prompts. Implementations are
// uniform in contract regardless of which model variant built them.
type Pipeline interface {
	ID() string
	Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error)
}

type Request struct {
	Prompts   []string
	MaxTokens int
	StopAt    []string
	// Seed, when set, overrides the sampler configuration's seed for this call.
	Seed *int64
}

// Result holds one text per prompt and sample, prompt-major. Complete[i]
// reports whether sequence i ended by reaching the end of the constraint
// rather than by a token limit or stop string. Native backends only return
// text, so adapter pipelines report a sequence complete when no stop string
// cut it and the text is a full match of the processor's pattern.
type Result struct {
	Texts    []string
	Complete []bool
	Stats    Stats
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}

func validate(ctx context.Context, req *Request) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if req == nil {
		return errors.New("request is required")
	}
	if len(req.Prompts) == 0 {
		return ErrNoPrompts
	}
	return ctx.Err()
}
