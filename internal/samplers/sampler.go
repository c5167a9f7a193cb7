package samplers

import (
	"cmp"
	"errors"
	"math"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"
)

// autoSeeds separates random seeds drawn within the same clock tick.
var autoSeeds atomic.Int64

// Above this k the insertion shortlist is replaced by a full sort.
const insertionLimit = 64

// ErrNoCandidates is returned when every score is masked out.
var ErrNoCandidates = errors.New("no candidate tokens")

// Sampler is the per-generation runtime for a Config. It owns its random
// source and scratch buffers, so each pipeline run builds its own.
type Sampler struct {
	rng       *rand.Rand
	cfg       Config
	greedy    bool
	topIdx    []int
	topVal    []float32
	prob      []float64
	seenMark  []uint32
	seenEpoch uint32
	seenList  []int
}

// New returns a sampler for cfg. Zero knobs fall back to neutral values:
// temperature 1, no top-k cut, no top-p cut. A negative seed is replaced by
// one taken from the clock.
func New(cfg Config) *Sampler {
	greedy := cfg.Name == NameGreedy || cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1.0
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano() + autoSeeds.Add(1)<<20
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws one index from logits. Entries set to -Inf by a constraint are
// never returned.
//
//  1. Apply repetition penalty over the recent window if configured.
//  2. Greedy configs return the argmax.
//  3. Otherwise logits are scaled by 1/temperature, the top k finite values
//     kept, softmaxed, filtered by min-p and truncated at top-p.
//  4. A uniform draw selects from the remaining distribution.
func (s *Sampler) Sample(logits []float32, recent []int) (int, error) {
	if s.cfg.RepeatPenalty > 1.0 && len(recent) > 0 {
		s.penalize(logits, recent)
	}

	if s.greedy {
		idx := argmax(logits)
		if idx < 0 {
			return 0, ErrNoCandidates
		}
		return idx, nil
	}

	k := len(logits)
	if s.cfg.TopK > 0 {
		k = min(s.cfg.TopK, len(logits))
	}
	topIdx, topVal := s.topK(logits, k, 1/s.cfg.Temperature)
	if len(topVal) == 0 {
		return 0, ErrNoCandidates
	}

	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0], nil
	}
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}

	if s.cfg.MinP > 0 {
		threshold := prob[0] * float64(s.cfg.MinP)
		newLen := 0
		var newSum float64
		for i := range prob {
			if prob[i] >= threshold {
				prob[newLen] = prob[i]
				topIdx[newLen] = topIdx[i]
				newSum += prob[i]
				newLen++
			}
		}
		if newLen < len(prob) {
			prob = prob[:newLen]
			if newSum > 0 {
				scale := 1.0 / newSum
				for i := range prob {
					prob[i] *= scale
				}
			}
		}
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return topIdx[i], nil
		}
	}
	return topIdx[cut-1], nil
}

func (s *Sampler) penalize(logits []float32, recent []int) {
	start := max(len(recent)-s.cfg.RepeatLastN, 0)
	window := recent[start:]

	if len(s.seenMark) < len(logits) {
		s.seenMark = make([]uint32, len(logits))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		clear(s.seenMark)
		s.seenEpoch = 1
	}
	s.seenList = s.seenList[:0]

	for _, id := range window {
		if id >= 0 && id < len(logits) && s.seenMark[id] != s.seenEpoch {
			s.seenMark[id] = s.seenEpoch
			s.seenList = append(s.seenList, id)
		}
	}
	for _, id := range s.seenList {
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}

// argmax returns the index of the largest finite value, or -1 if all are masked.
func argmax(x []float32) int {
	bestI := -1
	var bestV float32
	for i, v := range x {
		if math.IsInf(float64(v), -1) || math.IsNaN(float64(v)) {
			continue
		}
		if bestI < 0 || v > bestV {
			bestV = v
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest finite elements of
// logits scaled by invTemp, ordered from largest to smallest. O(V*K).
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]
	if k > insertionLimit {
		return s.topKSorted(logits, k, invTemp)
	}

	for i, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		v := l * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}

func (s *Sampler) topKSorted(logits []float32, k int, invTemp float32) ([]int, []float32) {
	idx := s.topIdx[:0]
	for i, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		idx = append(idx, i)
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(logits[b], logits[a]) })
	if len(idx) > k {
		idx = idx[:k]
	}
	val := s.topVal[:0]
	for _, i := range idx {
		val = append(val, logits[i]*invTemp)
	}
	s.topIdx = idx
	s.topVal = val
	return idx, val
}
