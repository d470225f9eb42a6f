package train

import "math/rand/v2"

// Permutation is a reordering of [0, n). Element i of a permuted slice is
// element p[i] of the original.
type Permutation []int

// NewPermutation draws a uniform permutation of n elements from rng.
func NewPermutation(n int, rng *rand.Rand) Permutation {
	return Permutation(rng.Perm(n))
}

// Apply returns xs reordered by p.
func Apply[T any](p Permutation, xs []T) []T {
	out := make([]T, len(p))
	for i, j := range p {
		out[i] = xs[j]
	}
	return out
}

// Invert undoes Apply: Invert(p, Apply(p, xs)) equals xs.
func Invert[T any](p Permutation, ys []T) []T {
	out := make([]T, len(p))
	for i, j := range p {
		out[j] = ys[i]
	}
	return out
}
