package pipeline

import (
	"iter"
	"math/rand/v2"
)

// shuffle returns the examples in a random order, drawn from a buffer of at most window examples:
// an example can only move up to window positions earlier than its original position.
//
// The order is a deterministic function of (seed, epoch). Errors are passed through immediately.
func shuffle(examples iter.Seq2[Example, error], window int, seed, epoch uint64) iter.Seq2[Example, error] {
	if window <= 1 {
		return examples
	}
	return func(yield func(Example, error) bool) {
		rng := rand.New(rand.NewPCG(seed, epoch))
		buffer := make([]Example, 0, window)
		for example, err := range examples {
			if err != nil {
				yield(Example{}, err)
				return
			}
			if len(buffer) < window {
				buffer = append(buffer, example)
				continue
			}
			// Buffer full: emit a random element and take its place.
			ii := rng.IntN(window)
			out := buffer[ii]
			buffer[ii] = example
			if !yield(out, nil) {
				return
			}
		}
		// Drain.
		for len(buffer) > 0 {
			ii := rng.IntN(len(buffer))
			out := buffer[ii]
			last := len(buffer) - 1
			buffer[ii] = buffer[last]
			buffer = buffer[:last]
			if !yield(out, nil) {
				return
			}
		}
	}
}
