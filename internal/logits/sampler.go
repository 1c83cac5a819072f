package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

var (
	// ErrEmptyLogits is returned when a score vector has no entries.
	ErrEmptyLogits = errors.New("logits: empty score vector")
	// ErrInvalidDistribution is returned when the softmax mass is zero or not finite.
	ErrInvalidDistribution = errors.New("logits: invalid probability distribution")
)

// pcgStream derives the second PCG word from the seed.
const pcgStream = 0x9e3779b97f4a7c15

// Processor draws token ids from score vectors using a fixed Sampling
// strategy. Draws are reproducible for a given seed.
type Processor struct {
	rng      *rand.Rand
	sampling Sampling

	topIdx []int
	topVal []float32
	prob   []float64
	order  []int
}

// NewProcessor returns a processor seeded with seed.
func NewProcessor(seed uint64, s Sampling) *Processor {
	if s == nil {
		s = ArgMax{}
	}
	return &Processor{
		rng:      rand.New(rand.NewPCG(seed, seed^pcgStream)),
		sampling: s,
	}
}

// Sampling reports the strategy the processor was built with.
func (p *Processor) Sampling() Sampling { return p.sampling }

// Sample selects one id from scores. scores is not modified.
func (p *Processor) Sample(scores []float32) (int, error) {
	if len(scores) == 0 {
		return 0, ErrEmptyLogits
	}
	switch s := p.sampling.(type) {
	case ArgMax:
		return argmax(scores), nil
	case All:
		return p.sampleAll(scores, s.Temperature)
	case TopK:
		return p.sampleTopK(scores, s.K, s.Temperature)
	case TopP:
		return p.sampleTopP(scores, s.P, s.Temperature)
	case TopKThenTopP:
		return p.sampleTopKThenTopP(scores, s.K, s.P, s.Temperature)
	default:
		return 0, fmt.Errorf("logits: unsupported sampling %T", s)
	}
}

func (p *Processor) sampleAll(scores []float32, temp float64) (int, error) {
	idx := p.identity(len(scores))
	prob, err := p.softmax(scores, idx, temp)
	if err != nil {
		return 0, err
	}
	return p.draw(idx, prob, len(prob))
}

func (p *Processor) sampleTopK(scores []float32, k int, temp float64) (int, error) {
	if k <= 0 || k >= len(scores) {
		return p.sampleAll(scores, temp)
	}
	idx := p.topK(scores, k)
	prob, err := p.softmax(scores, idx, temp)
	if err != nil {
		return 0, err
	}
	return p.draw(idx, prob, len(prob))
}

func (p *Processor) sampleTopP(scores []float32, top float64, temp float64) (int, error) {
	idx := p.identity(len(scores))
	prob, err := p.softmax(scores, idx, temp)
	if err != nil {
		return 0, err
	}
	if top <= 0 || top >= 1 {
		return p.draw(idx, prob, len(prob))
	}
	idx, prob = p.sortDesc(idx, prob)
	return p.draw(idx, prob, nucleus(prob, top))
}

func (p *Processor) sampleTopKThenTopP(scores []float32, k int, top float64, temp float64) (int, error) {
	var idx []int
	if k <= 0 || k >= len(scores) {
		idx = p.identity(len(scores))
	} else {
		idx = p.topK(scores, k)
	}
	prob, err := p.softmax(scores, idx, temp)
	if err != nil {
		return 0, err
	}
	if top <= 0 || top >= 1 {
		return p.draw(idx, prob, len(prob))
	}
	idx, prob = p.sortDesc(idx, prob)
	return p.draw(idx, prob, nucleus(prob, top))
}

// nucleus returns the number of leading entries of a descending
// distribution needed for the cumulative mass to reach top.
func nucleus(prob []float64, top float64) int {
	var c float64
	for i, v := range prob {
		c += v
		if c >= top {
			return i + 1
		}
	}
	return len(prob)
}

// softmax computes exp((s-max)/t) over the selected indices in float64 and
// normalizes. The returned slice aliases internal scratch space.
func (p *Processor) softmax(scores []float32, idx []int, temp float64) ([]float64, error) {
	if temp <= 0 {
		temp = 1
	}
	maxv := math.Inf(-1)
	for _, i := range idx {
		if v := float64(scores[i]); v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, 0) || math.IsNaN(maxv) {
		return nil, ErrInvalidDistribution
	}
	if cap(p.prob) < len(idx) {
		p.prob = make([]float64, len(idx))
	}
	prob := p.prob[:len(idx)]
	var sum float64
	for j, i := range idx {
		e := math.Exp((float64(scores[i]) - maxv) / temp)
		prob[j] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrInvalidDistribution
	}
	inv := 1.0 / sum
	for j := range prob {
		prob[j] *= inv
	}
	return prob, nil
}

// draw picks from the first cut entries, renormalizing over them.
func (p *Processor) draw(idx []int, prob []float64, cut int) (int, error) {
	if cut <= 0 {
		return 0, ErrInvalidDistribution
	}
	var mass float64
	for _, v := range prob[:cut] {
		mass += v
	}
	if mass <= 0 {
		return 0, ErrInvalidDistribution
	}
	r := p.rng.Float64() * mass
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r < c {
			return idx[i], nil
		}
	}
	return idx[cut-1], nil
}

func (p *Processor) identity(n int) []int {
	if cap(p.order) < n {
		p.order = make([]int, n)
	}
	idx := p.order[:n]
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// sortDesc orders idx and prob together by descending probability. Ties
// keep the lower token id first.
func (p *Processor) sortDesc(idx []int, prob []float64) ([]int, []float64) {
	type pair struct {
		id int
		p  float64
	}
	pairs := make([]pair, len(idx))
	for i := range idx {
		pairs[i] = pair{idx[i], prob[i]}
	}
	slices.SortStableFunc(pairs, func(a, b pair) int {
		switch {
		case a.p > b.p:
			return -1
		case a.p < b.p:
			return 1
		default:
			return a.id - b.id
		}
	})
	for i, pr := range pairs {
		idx[i] = pr.id
		prob[i] = pr.p
	}
	return idx, prob
}

// argmax returns the index of the maximum value. Ties resolve to the lowest index.
func argmax(x []float32) int {
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices of the k largest scores, ordered from largest to
// smallest. This is an O(V*K) insertion shortlist suitable for small K.
func (p *Processor) topK(scores []float32, k int) []int {
	if cap(p.topIdx) < k+1 {
		p.topIdx = make([]int, 0, k+1)
		p.topVal = make([]float32, 0, k+1)
	}
	topIdx := p.topIdx[:0]
	topVal := p.topVal[:0]

	for i, v := range scores {
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
	p.topIdx = topIdx
	p.topVal = topVal
	return topIdx
}
