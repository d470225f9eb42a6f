package rnn

import (
	"math"
	"math/rand/v2"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/optim"
)

// Dummy emits uniformly random labels. It is used to smoke-test the
// training loop without a network.
type Dummy struct {
	numClasses int
	rng        *rand.Rand
	rate       *optim.Rate
}

// NewDummy creates a Dummy over numClasses classes.
func NewDummy(numClasses int, rng *rand.Rand) *Dummy {
	return &Dummy{numClasses: numClasses, rng: rng, rate: optim.NewRate(0)}
}

// Train is Predict; nothing is learned.
func (d *Dummy) Train(b *batch.Batch) (Output, error) {
	return d.Predict(b)
}

// Predict returns random labels with a uniform distribution.
func (d *Dummy) Predict(b *batch.Batch) (Output, error) {
	uniform := -math.Log(float64(d.numClasses))
	out := Output{
		Labels:   make([][]int, b.Size),
		LogProbs: make([][][]float64, b.Size),
	}
	for i, n := range b.Lengths {
		out.Labels[i] = make([]int, n)
		out.LogProbs[i] = make([][]float64, n)
		for t := range n {
			c := d.rng.IntN(d.numClasses)
			row := make([]float64, d.numClasses)
			for j := range row {
				row[j] = uniform
			}
			row[c] += 1e-3
			out.Labels[i][t] = c
			out.LogProbs[i][t] = row
		}
	}
	return out, nil
}

// LearningRate returns a rate nothing reads.
func (d *Dummy) LearningRate() *optim.Rate {
	return d.rate
}

// ParameterValues returns nil.
func (d *Dummy) ParameterValues() [][]float64 {
	return nil
}
