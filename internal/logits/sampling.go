package logits

import "fmt"

// Sampling is one of ArgMax, All, TopK, TopP or TopKThenTopP.
type Sampling interface {
	fmt.Stringer
	isSampling()
}

// ArgMax always selects the highest score.
type ArgMax struct{}

// All draws from the full temperature-scaled distribution.
type All struct {
	Temperature float64
}

// TopK draws from the K highest scores.
type TopK struct {
	K           int
	Temperature float64
}

// TopP draws from the smallest prefix whose cumulative mass reaches P.
type TopP struct {
	P           float64
	Temperature float64
}

// TopKThenTopP applies TopK and then TopP inside the shortlist.
type TopKThenTopP struct {
	K           int
	P           float64
	Temperature float64
}

func (ArgMax) isSampling()       {}
func (All) isSampling()          {}
func (TopK) isSampling()         {}
func (TopP) isSampling()         {}
func (TopKThenTopP) isSampling() {}

func (ArgMax) String() string { return "argmax" }

func (s All) String() string { return fmt.Sprintf("all(temperature=%g)", s.Temperature) }

func (s TopK) String() string {
	return fmt.Sprintf("top_k(k=%d, temperature=%g)", s.K, s.Temperature)
}

func (s TopP) String() string {
	return fmt.Sprintf("top_p(p=%g, temperature=%g)", s.P, s.Temperature)
}

func (s TopKThenTopP) String() string {
	return fmt.Sprintf("top_k_then_top_p(k=%d, p=%g, temperature=%g)", s.K, s.P, s.Temperature)
}
