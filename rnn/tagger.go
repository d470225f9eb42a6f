// Package rnn implements a stacked bidirectional recurrent tagger over
// masked character batches.
package rnn

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/optim"
)

// reluGain is the Glorot gain used for vanilla input weights.
var reluGain = math.Sqrt2

// Output is the result of a Train or Predict call on one batch.
// Labels and LogProbs are truncated to each sentence's length.
type Output struct {
	Cost     float64
	Labels   [][]int
	LogProbs [][][]float64
}

// Tagger is a bidirectional recurrent network producing per-character
// log-probabilities over tag classes.
type Tagger struct {
	cfg         Config
	numClasses  int
	numFeatures int

	stack  []layer
	out    layer
	params []*Param
	opt    *optim.Optimizer
}

// New builds a tagger. rng seeds weight initialization and dropout.
func New(numClasses, numFeatures int, cfg Config, rng *rand.Rand) (*Tagger, error) {
	if numClasses < 1 || numFeatures < 1 {
		return nil, errors.Errorf("need at least one class and one feature, got %d and %d", numClasses, numFeatures)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	opt, err := optim.New(cfg.Optimizer, optim.NewRate(cfg.LearningRate), cfg.NormThreshold)
	if err != nil {
		return nil, err
	}

	m := &Tagger{cfg: cfg, numClasses: numClasses, numFeatures: numFeatures, opt: opt}
	width := numFeatures
	if cfg.Embedding > 0 {
		m.stack = append(m.stack, newDense("emb", width, cfg.Embedding, Linear, rng))
		width = cfg.Embedding
	}
	if p := cfg.dropout(0); p > 0 {
		m.stack = append(m.stack, &dropout{p: p, rng: rng})
	}
	for i, act := range cfg.Layers {
		name := fmt.Sprintf("l%d", i+1)
		level := &bidir{
			fw:    &recurrent{cell: newCell(name+".fw", width, cfg.Hidden[i], act, cfg, rng)},
			bw:    &recurrent{cell: newCell(name+".bw", width, cfg.Hidden[i], act, cfg, rng), backwards: true},
			merge: cfg.Merge,
		}
		m.stack = append(m.stack, level)
		width = level.width()
		if cfg.BatchNorm {
			m.stack = append(m.stack, newBatchNorm(name+".bn", width))
		}
		if p := cfg.dropout(i + 1); p > 0 {
			m.stack = append(m.stack, &dropout{p: p, rng: rng})
		}
	}
	if cfg.InputToOutput {
		width += numFeatures
	}
	if cfg.RecurrentOutput {
		m.out = &recurrent{cell: newVanillaCell("out", width, numClasses, LogSoftmax, 1, 0, rng)}
	} else {
		m.out = newDense("out", width, numClasses, LogSoftmax, rng)
	}

	for _, l := range m.stack {
		m.params = append(m.params, l.params()...)
	}
	m.params = append(m.params, m.out.params()...)

	slog.Debug("Built tagger", "levels", len(cfg.Layers), "params", len(m.params), "classes", numClasses, "features", numFeatures)
	return m, nil
}

func newCell(name string, in, units int, act Activation, cfg Config, rng *rand.Rand) cell {
	switch act.Cell {
	case LSTM:
		return newLSTMCell(name, in, units, cfg.ForgetBias, cfg.GradClip, rng)
	case GRU:
		return newGRUCell(name, in, units, cfg.GradClip, rng)
	default:
		return newVanillaCell(name, in, units, act.Nonlinearity, reluGain, cfg.GradClip, rng)
	}
}

// Config returns the configuration the tagger was built with.
func (m *Tagger) Config() Config {
	return m.cfg
}

// LearningRate returns the rate read by the optimizer on every step.
func (m *Tagger) LearningRate() *optim.Rate {
	return m.opt.Rate()
}

// Train runs one forward and backward pass and applies one optimizer step.
// The returned labels come from the training-mode forward pass.
func (m *Tagger) Train(b *batch.Batch) (Output, error) {
	if err := m.check(b); err != nil {
		return Output{}, err
	}
	cost, logp := m.computeGradients(b)

	var values, grads [][]float64
	for _, p := range m.params {
		if p.Trainable {
			values = append(values, p.Value)
			grads = append(grads, p.Grad)
		}
	}
	stats, err := m.opt.Step(values, grads)
	if err != nil {
		return Output{}, err
	}
	if stats.Damped {
		slog.Debug("Damped update", "cost", cost)
	}
	return m.output(b, logp, cost), nil
}

// Predict runs a deterministic forward pass without touching parameters.
func (m *Tagger) Predict(b *batch.Batch) (Output, error) {
	if err := m.check(b); err != nil {
		return Output{}, err
	}
	logp := m.forward(b, false)
	cost, _ := m.loss(b, logp)
	return m.output(b, logp, cost), nil
}

func (m *Tagger) check(b *batch.Batch) error {
	if b.NumFeatures != m.numFeatures || b.NumClasses != m.numClasses {
		return errors.Errorf("batch has %d features and %d classes, tagger expects %d and %d",
			b.NumFeatures, b.NumClasses, m.numFeatures, m.numClasses)
	}
	if b.Size == 0 || b.MaxLen == 0 {
		return errors.New("empty batch")
	}
	return nil
}

// computeGradients fills every Param.Grad for the training-mode loss of b.
func (m *Tagger) computeGradients(b *batch.Batch) (float64, []*mat.Dense) {
	for _, p := range m.params {
		p.zeroGrad()
	}
	logp := m.forward(b, true)
	cost, dlogp := m.loss(b, logp)
	m.backward(dlogp)
	return cost, logp
}

func (m *Tagger) forward(b *batch.Batch, train bool) []*mat.Dense {
	xs := make([]*mat.Dense, b.MaxLen)
	masks := make([][]bool, b.MaxLen)
	for t := range b.MaxLen {
		xs[t] = b.Step(t)
		masks[t] = b.Present(t)
	}

	h := xs
	for _, l := range m.stack {
		h = l.forward(h, masks, train)
	}
	if m.cfg.InputToOutput {
		joined := make([]*mat.Dense, len(h))
		for t := range h {
			joined[t] = hconcat(h[t], xs[t])
		}
		h = joined
	}
	return m.out.forward(h, masks, train)
}

func (m *Tagger) backward(dlogp []*mat.Dense) {
	dh := m.out.backward(dlogp)
	if m.cfg.InputToOutput {
		for t := range dh {
			_, c := dh[t].Dims()
			dh[t] = hsplit(dh[t], c-m.numFeatures, m.numFeatures)[0]
		}
	}
	for i := len(m.stack) - 1; i >= 0; i-- {
		dh = m.stack[i].backward(dh)
	}
}

// loss returns the negative log-likelihood averaged over real characters
// and its gradient with respect to the log-probabilities.
func (m *Tagger) loss(b *batch.Batch, logp []*mat.Dense) (float64, []*mat.Dense) {
	n := float64(b.Real())
	var cost float64
	dlogp := make([]*mat.Dense, b.MaxLen)
	for t := range b.MaxLen {
		d := zeros(b.Size, b.NumClasses)
		for i := range b.Size {
			if !b.Mask[i*b.MaxLen+t] {
				continue
			}
			target := b.Target(i, t)
			for c, y := range target {
				if y == 0 {
					continue
				}
				cost -= y * logp[t].At(i, c)
				d.Set(i, c, -y/n)
			}
		}
		dlogp[t] = d
	}
	return cost / n, dlogp
}

func (m *Tagger) output(b *batch.Batch, logp []*mat.Dense, cost float64) Output {
	out := Output{
		Cost:     cost,
		Labels:   make([][]int, b.Size),
		LogProbs: make([][][]float64, b.Size),
	}
	for i := range b.Size {
		n := b.Lengths[i]
		out.Labels[i] = make([]int, n)
		out.LogProbs[i] = make([][]float64, n)
		for t := range n {
			row := mat.Row(nil, i, logp[t])
			out.LogProbs[i][t] = row
			out.Labels[i][t] = argmax(row)
		}
	}
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

// ParameterValues returns a copy of every parameter, in construction order.
func (m *Tagger) ParameterValues() [][]float64 {
	values := make([][]float64, len(m.params))
	for i, p := range m.params {
		values[i] = append([]float64(nil), p.Value...)
	}
	return values
}

// SetParameterValues overwrites every parameter. Count and sizes must match exactly.
func (m *Tagger) SetParameterValues(values [][]float64) error {
	if len(values) != len(m.params) {
		return errors.Errorf("got %d parameter values, tagger has %d", len(values), len(m.params))
	}
	for i, p := range m.params {
		if len(values[i]) != len(p.Value) {
			return errors.Errorf("parameter %d (%s): got %d values, want %d", i, p.Name, len(values[i]), len(p.Value))
		}
	}
	for i, p := range m.params {
		copy(p.Value, values[i])
	}
	return nil
}

// ParameterNames returns parameter names in construction order.
func (m *Tagger) ParameterNames() []string {
	names := make([]string, len(m.params))
	for i, p := range m.params {
		names[i] = p.Name
	}
	return names
}

// ParameterShapes returns the (rows, cols) of every parameter in construction order.
func (m *Tagger) ParameterShapes() [][2]int {
	shapes := make([][2]int, len(m.params))
	for i, p := range m.params {
		shapes[i] = [2]int{p.Rows, p.Cols}
	}
	return shapes
}
