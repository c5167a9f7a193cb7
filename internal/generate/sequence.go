package generate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samcharles93/boost/internal/fsm"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/samplers"
)

// SequenceGenerator drives a local model one token at a time, consulting
// the guide at every step so that only tokens consistent with each
// sequence's automaton state can be sampled.
//
// Calls on one SequenceGenerator are serialised because the runtime is
// stateful. Separate generators over the same runtime are not coordinated.
type SequenceGenerator struct {
	id      string
	guide   fsm.Guide
	model   model.LocalModel
	sampler samplers.Config
	device  string

	mu sync.Mutex
}

func NewSequenceGenerator(guide fsm.Guide, m model.LocalModel, sampler samplers.Config, device string) *SequenceGenerator {
	return &SequenceGenerator{
		id:      uuid.NewString(),
		guide:   guide,
		model:   m,
		sampler: sampler,
		device:  device,
	}
}

func (g *SequenceGenerator) ID() string               { return g.id }
func (g *SequenceGenerator) Guide() fsm.Guide         { return g.guide }
func (g *SequenceGenerator) Model() model.LocalModel  { return g.model }
func (g *SequenceGenerator) Sampler() samplers.Config { return g.sampler }
func (g *SequenceGenerator) Device() string           { return g.device }

func (g *SequenceGenerator) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if err := validate(ctx, req); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg := g.sampler
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	samples := max(cfg.Samples, 1)
	smp := samplers.New(cfg)

	limit := req.MaxTokens
	if limit <= 0 {
		limit = DefaultMaxTokens
	}

	res := &Result{
		Texts:    make([]string, 0, len(req.Prompts)*samples),
		Complete: make([]bool, 0, len(req.Prompts)*samples),
	}
	start := time.Now()
	for _, prompt := range req.Prompts {
		for range samples {
			seq := len(res.Texts)
			var emit func(string)
			if stream != nil {
				emit = func(s string) { stream(seq, s) }
			}
			text, done, n, err := g.runSequence(ctx, smp, prompt, limit, req.StopAt, emit)
			res.Stats.TokensGenerated += n
			if err != nil {
				return nil, fmt.Errorf("sequence %d: %w", seq, err)
			}
			res.Texts = append(res.Texts, text)
			res.Complete = append(res.Complete, done)
		}
	}
	res.Stats.finish(start)

	logger.FromContext(ctx).Debug("generation finished",
		"pipeline", g.id,
		"sequences", len(res.Texts),
		"tokens", res.Stats.TokensGenerated,
		"tps", res.Stats.TPS,
	)
	return res, nil
}

// runSequence decodes one sequence. The guide state is local to the call, so
// every sequence starts from the automaton's initial state.
func (g *SequenceGenerator) runSequence(ctx context.Context, smp *samplers.Sampler, prompt string, limit int, stopAt []string, emit func(string)) (string, bool, int, error) {
	tok := g.model.Tokenizer()
	rt := g.model.Runtime()
	eos := tok.EOSTokenID()

	ids, err := safeEncode(tok, prompt)
	if err != nil {
		return "", false, 0, fmt.Errorf("encode prompt: %w", err)
	}
	if len(ids) == 0 {
		// The runtime needs one token to produce the first distribution.
		ids = []int{eos}
	}
	if err := safeReset(rt); err != nil {
		return "", false, 0, err
	}

	var logits []float32
	for _, id := range ids {
		logits, err = rt.ForwardToken(id)
		if err != nil {
			return "", false, 0, fmt.Errorf("forward error during prefill: %w", err)
		}
	}

	history := append([]int(nil), ids...)
	state := g.guide.Initial()
	var sb strings.Builder
	scores := make([]float32, 0, len(logits))
	generated := 0

	for step := 0; step < limit; step++ {
		if err := ctx.Err(); err != nil {
			return sb.String(), false, generated, err
		}
		if g.guide.IsFinal(state) {
			break
		}

		scores = maskScores(scores[:0], logits, g.guide.Instruction(state).Tokens)
		next, err := smp.Sample(scores, history)
		if err != nil {
			return sb.String(), false, generated, fmt.Errorf("step %d: %w", step, err)
		}
		state, err = g.guide.Next(state, next)
		if err != nil {
			return sb.String(), false, generated, fmt.Errorf("step %d: %w", step, err)
		}
		if next == eos {
			break
		}
		history = append(history, next)
		generated++

		piece, err := tok.Decode([]int{next})
		if err != nil {
			return sb.String(), false, generated, fmt.Errorf("decode token %d: %w", next, err)
		}
		sb.WriteString(piece)
		if emit != nil {
			emit(piece)
		}
		if text, hit := cutAtStop(sb.String(), stopAt); hit {
			return text, false, generated, nil
		}

		logits, err = rt.ForwardToken(next)
		if err != nil {
			return sb.String(), false, generated, fmt.Errorf("forward error during generation step %d: %w", step, err)
		}
	}
	return sb.String(), g.guide.IsFinal(state), generated, nil
}

// maskScores copies logits into dst with every id outside allowed at -Inf.
func maskScores(dst, logits []float32, allowed []int) []float32 {
	negInf := float32(math.Inf(-1))
	for range logits {
		dst = append(dst, negInf)
	}
	for _, id := range allowed {
		if id >= 0 && id < len(logits) {
			dst[id] = logits[id]
		}
	}
	return dst
}

func cutAtStop(text string, stopAt []string) (string, bool) {
	for _, stop := range stopAt {
		if stop == "" {
			continue
		}
		if i := strings.Index(text, stop); i >= 0 {
			return text[:i], true
		}
	}
	return text, false
}

func safeReset(rt model.Runtime) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Reset: %v", rec)
		}
	}()
	rt.Reset()
	return nil
}

func safeEncode(tok interface{ Encode(string) ([]int, error) }, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}
