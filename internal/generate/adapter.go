package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/samplers"
)

// SequenceGeneratorAdapter runs generation inside a backend's native decode
// loop, injecting the logits processor as the per-step constraint hook.
type SequenceGeneratorAdapter struct {
	id        string
	model     model.Accelerated
	processor processors.LogitsProcessor
	sampler   samplers.Config
	// full matches a whole output against the processor's pattern; nil when
	// the processor does not expose one.
	full *regexp.Regexp
}

type patterned interface {
	Pattern() string
}

func NewSequenceGeneratorAdapter(m model.Accelerated, processor processors.LogitsProcessor, sampler samplers.Config) *SequenceGeneratorAdapter {
	a := &SequenceGeneratorAdapter{
		id:        uuid.NewString(),
		model:     m,
		processor: processor,
		sampler:   sampler,
	}
	if p, ok := processor.(patterned); ok {
		if re, err := regexp.Compile(`\A(?:` + p.Pattern() + `)\z`); err == nil {
			a.full = re
		}
	}
	return a
}

func (a *SequenceGeneratorAdapter) ID() string                            { return a.id }
func (a *SequenceGeneratorAdapter) Model() model.Accelerated              { return a.model }
func (a *SequenceGeneratorAdapter) Processor() processors.LogitsProcessor { return a.processor }
func (a *SequenceGeneratorAdapter) Sampler() samplers.Config              { return a.sampler }

func (a *SequenceGeneratorAdapter) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if err := validate(ctx, req); err != nil {
		return nil, err
	}
	cfg := a.sampler
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	limit := req.MaxTokens
	if limit <= 0 {
		limit = DefaultMaxTokens
	}
	if r, ok := a.processor.(processors.Resetter); ok {
		r.Reset()
	}

	start := time.Now()
	texts, err := a.model.Generator().GenerateNative(ctx, &model.NativeRequest{
		Prompts:   append([]string(nil), req.Prompts...),
		MaxTokens: limit,
		StopAt:    append([]string(nil), req.StopAt...),
		Sampler:   cfg,
		Processor: a.processor,
	})
	if err != nil {
		return nil, fmt.Errorf("%s native generation: %w", a.model.Kind(), err)
	}

	res := &Result{Texts: texts, Complete: make([]bool, len(texts))}
	for i, text := range texts {
		cut, hit := cutAtStop(text, req.StopAt)
		res.Texts[i] = cut
		res.Complete[i] = !hit && (a.full == nil || a.full.MatchString(cut))
		res.Stats.TokensGenerated += approxTokens(cut)
		if stream != nil {
			stream(i, cut)
		}
	}
	res.Stats.finish(start)

	logger.FromContext(ctx).Debug("native generation finished",
		"pipeline", a.id,
		"backend", a.model.Kind().String(),
		"sequences", len(res.Texts),
	)
	return res, nil
}

// approxTokens estimates token counts for backends that only return text.
func approxTokens(s string) int {
	return max(len(strings.Fields(s)), len([]rune(s))/4)
}
