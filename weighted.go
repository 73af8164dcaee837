package grammar

import (
	"math/rand"
)

// weightedChoice is the append/sample/choose primitive shared by Choice and
// RepeatSample generation: a running total over parallel value/weight
// slices, drawn from with a uniform draw over [0, total).
type weightedChoice[T any] struct {
	values  []T
	weights []float64
	total   float64
}

func (w *weightedChoice[T]) append(value T, weight float64) {
	w.values = append(w.values, value)
	w.weights = append(w.weights, weight)
	w.total += weight
}

func (w *weightedChoice[T]) len() int { return len(w.values) }

// choose draws uniformly over [0,total) and walks alternatives subtracting
// weights until the running sum goes negative, returning that alternative.
func (w *weightedChoice[T]) choose(rng *rand.Rand) (T, error) {
	var zero T
	if w.total <= 0 || len(w.values) == 0 {
		return zero, errNoWeight
	}
	target := rng.Float64() * w.total
	for i, weight := range w.weights {
		target -= weight
		if target < 0 {
			return w.values[i], nil
		}
	}
	// Floating point rounding can leave a residue; fall back to the last
	// non-zero-weight alternative rather than erroring spuriously.
	for i := len(w.values) - 1; i >= 0; i-- {
		if w.weights[i] > 0 {
			return w.values[i], nil
		}
	}
	return zero, errNoWeight
}

// sample draws k alternatives without replacement, weighted at each step by
// the remaining pool. It errors if k exceeds the number of alternatives
// with nonzero weight.
func (w *weightedChoice[T]) sample(rng *rand.Rand, k int) ([]T, error) {
	values := append([]T(nil), w.values...)
	weights := append([]float64(nil), w.weights...)
	total := w.total

	var result []T
	for k > 0 && total > 0 {
		target := rng.Float64() * total
		picked := -1
		for i, weight := range weights {
			target -= weight
			if target < 0 {
				picked = i
				break
			}
		}
		if picked == -1 {
			for i := len(values) - 1; i >= 0; i-- {
				if weights[i] > 0 {
					picked = i
					break
				}
			}
		}
		if picked == -1 {
			break
		}
		result = append(result, values[picked])
		total -= weights[picked]
		values = append(values[:picked], values[picked+1:]...)
		weights = append(weights[:picked], weights[picked+1:]...)
		k--
	}
	if k > 0 {
		return nil, errSampleExhausted
	}
	return result, nil
}

var (
	errNoWeight        = simpleErr("no alternatives with positive weight")
	errSampleExhausted = simpleErr("sample size exceeds available alternatives")
)

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
