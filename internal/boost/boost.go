// Package boost builds generation pipelines whose output is constrained to
// the language of a regular expression.
//
// Boost dispatches on the runtime type of the model variant:
//
//   - *model.Local takes the default path: a vocabulary guide is compiled
//     from the pattern and the model's tokenizer and driven by the generic
//     decode loop (generate.SequenceGenerator).
//   - *model.LlamaCpp, *model.MLX and *model.VLLM get a backend logits
//     processor built from the pattern and the backend's native handle,
//     injected into the backend's own decode loop
//     (generate.SequenceGeneratorAdapter). Processors come from the
//     integration registered for the backend, so the integration package
//     must be linked (usually with a blank import).
//   - *model.OpenAI always fails with ErrUnsupportedBackend.
//
// Any other type satisfying model.Variant falls back to the default path if
// it also satisfies model.LocalModel, unless the factory is strict.
//
// Every call compiles a fresh constraint object; nothing is cached.
package boost

import (
	"fmt"

	"github.com/samcharles93/boost/internal/fsm"
	"github.com/samcharles93/boost/internal/generate"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/samcharles93/boost/internal/tokenizer"
)

const openAIReason = "the OpenAI API offers no way to inject token-level logits control"

// GuideBuilder compiles the vocabulary guide for the default path.
type GuideBuilder func(pattern string, tok tokenizer.Tokenizer) (fsm.Guide, error)

// Factory holds the resolved options for Boost. It has no mutable state and
// is safe for concurrent use.
type Factory struct {
	sampler  samplers.Config
	log      logger.Logger
	strict   bool
	guides   GuideBuilder
	registry *processors.Registry
}

type Option func(*Factory)

// WithSampler sets the sampling strategy. The default is samplers.Multinomial().
func WithSampler(cfg samplers.Config) Option {
	return func(f *Factory) { f.sampler = cfg }
}

func WithLogger(l logger.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithStrict makes unrecognised variants fail with ErrInvalidVariant instead
// of falling back to the default path.
func WithStrict(strict bool) Option {
	return func(f *Factory) { f.strict = strict }
}

func WithGuideBuilder(b GuideBuilder) Option {
	return func(f *Factory) {
		if b != nil {
			f.guides = b
		}
	}
}

// WithRegistry replaces the process-wide processor registry.
func WithRegistry(r *processors.Registry) Option {
	return func(f *Factory) {
		if r != nil {
			f.registry = r
		}
	}
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		sampler:  samplers.Default(),
		log:      logger.Default(),
		guides:   regexGuide,
		registry: processors.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func regexGuide(pattern string, tok tokenizer.Tokenizer) (fsm.Guide, error) {
	return fsm.NewRegexGuide(pattern, tok)
}

// Boost is NewFactory(opts...).Boost(m, pattern).
func Boost(m model.Variant, pattern string, opts ...Option) (generate.Pipeline, error) {
	return NewFactory(opts...).Boost(m, pattern)
}

// Boost returns a pipeline whose every generated sequence is drawn from the
// strings pattern accepts, as expressible by the model's tokenizer.
// Constraint compilation errors are returned as the guide or processor
// produced them.
func (f *Factory) Boost(m model.Variant, pattern string) (generate.Pipeline, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	switch v := m.(type) {
	case *model.OpenAI:
		return nil, &UnsupportedBackendError{Backend: model.KindOpenAI.String(), Reason: openAIReason}
	case *model.Local:
		if v == nil {
			return nil, ErrNilModel
		}
		return f.boostLocal(v, pattern)
	case *model.LlamaCpp:
		if v == nil {
			return nil, ErrNilModel
		}
		return f.boostAccelerated(v, pattern)
	case *model.MLX:
		if v == nil {
			return nil, ErrNilModel
		}
		return f.boostAccelerated(v, pattern)
	case *model.VLLM:
		if v == nil {
			return nil, ErrNilModel
		}
		return f.boostAccelerated(v, pattern)
	default:
		return f.boostUnknown(m, pattern)
	}
}

func (f *Factory) boostLocal(m model.LocalModel, pattern string) (generate.Pipeline, error) {
	if err := f.sampler.Validate(); err != nil {
		return nil, err
	}
	guide, err := f.guides(pattern, m.Tokenizer())
	if err != nil {
		return nil, err
	}
	p := generate.NewSequenceGenerator(guide, m, f.sampler, m.DeviceName())
	f.log.Debug("boost", "path", "generic", "device", m.DeviceName(), "sampler", string(f.sampler.Name), "pipeline", p.ID())
	return p, nil
}

func (f *Factory) boostAccelerated(m model.Accelerated, pattern string) (generate.Pipeline, error) {
	if err := f.sampler.Validate(); err != nil {
		return nil, err
	}
	name := m.Kind().String()
	build, err := f.registry.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w; import the %s integration to enable it", err, name)
	}
	proc, err := build(pattern, m.Native())
	if err != nil {
		return nil, err
	}
	p := generate.NewSequenceGeneratorAdapter(m, proc, f.sampler)
	f.log.Debug("boost", "path", "adapter", "backend", name, "sampler", string(f.sampler.Name), "pipeline", p.ID())
	return p, nil
}

func (f *Factory) boostUnknown(m model.Variant, pattern string) (generate.Pipeline, error) {
	typ := fmt.Sprintf("%T", m)
	if f.strict {
		return nil, &InvalidVariantError{Type: typ, Reason: "not a known variant"}
	}
	local, ok := m.(model.LocalModel)
	if !ok {
		return nil, &InvalidVariantError{Type: typ, Reason: "not a known variant and has no local runtime for the default path"}
	}
	f.log.Warn("unrecognised model variant, using default path", "type", typ, "kind", m.Kind().String())
	return f.boostLocal(local, pattern)
}
