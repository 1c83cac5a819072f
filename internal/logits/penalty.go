package logits

// ApplyRepeatPenalty returns a copy of scores where every distinct in-range
// id in context is penalized once: non-negative scores are divided by
// penalty, negative scores multiplied by it.
func ApplyRepeatPenalty(scores []float32, penalty float32, context []int) []float32 {
	out := make([]float32, len(scores))
	copy(out, scores)
	if len(context) == 0 {
		return out
	}
	seen := make(map[int]struct{}, len(context))
	for _, id := range context {
		if id < 0 || id >= len(out) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if out[id] >= 0 {
			out[id] /= penalty
		} else {
			out[id] *= penalty
		}
	}
	return out
}
