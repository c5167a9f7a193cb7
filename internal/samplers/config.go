package samplers

import (
	"errors"
	"fmt"
)

// Name identifies a sampling algorithm.
type Name string

const (
	NameMultinomial Name = "multinomial"
	NameGreedy      Name = "greedy"
)

var ErrInvalidConfig = errors.New("invalid sampler config")

// RandomSeed asks for a fresh seed on every run. Any negative seed does.
const RandomSeed int64 = -1

// Config describes how a token is chosen among the ones a constraint permits.
// It is a plain value: pipelines copy it, and nothing in this module mutates
// a Config after construction.
type Config struct {
	Name          Name
	Samples       int
	Seed          int64 // negative draws a fresh seed per run
	Temperature   float32
	TopK          int
	TopP          float32
	MinP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

// Option adjusts a Config under construction.
type Option func(*Config)

func WithSeed(seed int64) Option         { return func(c *Config) { c.Seed = seed } }
func WithTemperature(t float32) Option   { return func(c *Config) { c.Temperature = t } }
func WithTopK(k int) Option              { return func(c *Config) { c.TopK = k } }
func WithTopP(p float32) Option          { return func(c *Config) { c.TopP = p } }
func WithMinP(p float32) Option          { return func(c *Config) { c.MinP = p } }
func WithSamples(n int) Option           { return func(c *Config) { c.Samples = n } }
func WithRepeatPenalty(p float32) Option { return func(c *Config) { c.RepeatPenalty = p } }

// Multinomial is the default strategy: sample from the temperature-scaled
// distribution, optionally truncated by top-k, top-p and min-p.
func Multinomial(opts ...Option) Config {
	cfg := Config{
		Name:        NameMultinomial,
		Samples:     1,
		Seed:        RandomSeed,
		Temperature: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Greedy always takes the highest scoring permitted token.
func Greedy() Config {
	return Config{Name: NameGreedy, Samples: 1, Seed: RandomSeed}
}

// Seeded reports whether runs with c are reproducible.
func (c Config) Seeded() bool { return c.Seed >= 0 }

// Default returns the configuration used when a caller supplies none.
func Default() Config { return Multinomial() }

// Parse builds a Config from a strategy name, as used by the CLI and config file.
func Parse(name string, opts ...Option) (Config, error) {
	switch Name(name) {
	case "", NameMultinomial:
		return Multinomial(opts...), nil
	case NameGreedy:
		cfg := Greedy()
		for _, opt := range opts {
			opt(&cfg)
		}
		cfg.Temperature = 0
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("%w: unknown sampler %q (expected multinomial or greedy)", ErrInvalidConfig, name)
	}
}

func (c Config) Validate() error {
	switch c.Name {
	case NameMultinomial, NameGreedy:
	default:
		return fmt.Errorf("%w: unknown sampler %q", ErrInvalidConfig, c.Name)
	}
	if c.Samples < 1 {
		return fmt.Errorf("%w: samples must be >= 1, got %d", ErrInvalidConfig, c.Samples)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: temperature must be >= 0, got %g", ErrInvalidConfig, c.Temperature)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top-k must be >= 0, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top-p must be in [0,1], got %g", ErrInvalidConfig, c.TopP)
	}
	if c.MinP < 0 || c.MinP > 1 {
		return fmt.Errorf("%w: min-p must be in [0,1], got %g", ErrInvalidConfig, c.MinP)
	}
	return nil
}
