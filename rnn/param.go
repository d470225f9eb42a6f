package rnn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Param is a named weight tensor and its gradient.
// Value and Grad are row-major [Rows x Cols].
type Param struct {
	Name      string
	Rows      int
	Cols      int
	Value     []float64
	Grad      []float64
	Trainable bool
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:      name,
		Rows:      rows,
		Cols:      cols,
		Value:     make([]float64, rows*cols),
		Grad:      make([]float64, rows*cols),
		Trainable: true,
	}
}

// Mat returns a matrix view sharing Value.
func (p *Param) Mat() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Value)
}

// GradMat returns a matrix view sharing Grad.
func (p *Param) GradMat() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.Grad)
}

func (p *Param) zeroGrad() {
	clear(p.Grad)
}

// glorotUniform fills p from U(-a, a) with a = gain * sqrt(6 / (fanIn + fanOut)).
func (p *Param) glorotUniform(rng *rand.Rand, gain float64) *Param {
	a := gain * math.Sqrt(6/float64(p.Rows+p.Cols))
	for i := range p.Value {
		p.Value[i] = (rng.Float64()*2 - 1) * a
	}
	return p
}

func (p *Param) normal(rng *rand.Rand, std float64) *Param {
	for i := range p.Value {
		p.Value[i] = rng.NormFloat64() * std
	}
	return p
}

func (p *Param) identity() *Param {
	clear(p.Value)
	for i := range min(p.Rows, p.Cols) {
		p.Value[i*p.Cols+i] = 1
	}
	return p
}

func (p *Param) fill(v float64) *Param {
	for i := range p.Value {
		p.Value[i] = v
	}
	return p
}

func (p *Param) frozen() *Param {
	p.Trainable = false
	return p
}
