package samplers

import (
	"errors"
	"math"
	"slices"
	"testing"
)

var negInf = float32(math.Inf(-1))

// TestSamplerDeterminism ensures that two samplers configured identically
// produce identical results when sampling the same logits vector.
func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	cfg := Multinomial(WithSeed(42), WithTemperature(0.9), WithTopK(4), WithTopP(0.95))
	s1 := New(cfg)
	s2 := New(cfg)
	for i := 0; i < 20; i++ {
		a, err := s1.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		if err != nil {
			t.Fatal(err)
		}
		b, err := s2.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if a != b {
			t.Fatalf("step %d: expected deterministic sample, got %d vs %d", i, a, b)
		}
	}
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()
	s := New(Greedy())
	idx, err := s.Sample([]float32{-1, 5, 3, 7, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 3 {
		t.Fatalf("expected greedy index 3, got %d", idx)
	}
}

// TestSamplerTopP checks that a dominant logit is the only candidate left
// once the top-p cut is applied.
func TestSamplerTopP(t *testing.T) {
	t.Parallel()
	s := New(Multinomial(WithSeed(7), WithTopK(5), WithTopP(0.5)))
	for i := 0; i < 10; i++ {
		idx, err := s.Sample([]float32{10, 0, 0, 0, 0}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if idx != 0 {
			t.Fatalf("top-p sampling returned unexpected index %d", idx)
		}
	}
}

func TestSamplerNeverPicksMasked(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"greedy", Greedy()},
		{"multinomial", Multinomial(WithSeed(3))},
		{"multinomial hot", Multinomial(WithSeed(3), WithTemperature(5))},
		{"multinomial top-k", Multinomial(WithSeed(3), WithTopK(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.cfg)
			for i := 0; i < 200; i++ {
				logits := []float32{100, negInf, 0.5, negInf, 0.1}
				idx, err := s.Sample(logits, nil)
				if err != nil {
					t.Fatal(err)
				}
				if idx == 1 || idx == 3 {
					t.Fatalf("sampled masked index %d", idx)
				}
			}
		})
	}
}

func TestSamplerRandomSeed(t *testing.T) {
	t.Parallel()
	logits := make([]float32, 16)
	draw := func(cfg Config) []int {
		s := New(cfg)
		out := make([]int, 64)
		for i := range out {
			idx, err := s.Sample(append([]float32(nil), logits...), nil)
			if err != nil {
				t.Fatal(err)
			}
			out[i] = idx
		}
		return out
	}
	if a, b := draw(Default()), draw(Default()); slices.Equal(a, b) {
		t.Fatalf("unseeded samplers drew the same sequence: %v", a)
	}
	if a, b := draw(Multinomial(WithSeed(0))), draw(Multinomial(WithSeed(0))); !slices.Equal(a, b) {
		t.Fatalf("seed 0 is not reproducible: %v vs %v", a, b)
	}
}

func TestSamplerLargeVocabSortPath(t *testing.T) {
	t.Parallel()
	logits := make([]float32, 500)
	for i := range logits {
		logits[i] = negInf
	}
	logits[321] = 1
	logits[7] = 0.5
	s := New(Multinomial(WithSeed(1), WithTopP(0.3)))
	for i := 0; i < 20; i++ {
		idx, err := s.Sample(append([]float32(nil), logits...), nil)
		if err != nil {
			t.Fatal(err)
		}
		if idx != 321 {
			t.Fatalf("expected index 321, got %d", idx)
		}
	}
}

func TestSamplerAllMasked(t *testing.T) {
	t.Parallel()
	for _, cfg := range []Config{Greedy(), Multinomial()} {
		_, err := New(cfg).Sample([]float32{negInf, negInf}, nil)
		if !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("%s: expected ErrNoCandidates, got %v", cfg.Name, err)
		}
	}
}

func TestSamplerRepeatPenalty(t *testing.T) {
	t.Parallel()
	cfg := Greedy()
	cfg.RepeatPenalty = 4
	s := New(cfg)
	idx, err := s.Sample([]float32{3, 2}, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("expected penalised token 0 to lose, got %d", idx)
	}
}
