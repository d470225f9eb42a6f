package rnn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// apply computes the nonlinearity of a in place.
func (n Nonlinearity) apply(a *mat.Dense) {
	if n == LogSoftmax {
		logSoftmaxRows(a)
		return
	}
	a.Apply(func(_, _ int, v float64) float64 {
		switch n {
		case Tanh:
			return math.Tanh(v)
		case ReLU:
			return math.Max(0, v)
		case Sigmoid:
			return sigmoid(v)
		}
		return v
	}, a)
}

// backward returns the gradient at the pre-activation given the output h and its gradient dh.
func (n Nonlinearity) backward(h, dh *mat.Dense) *mat.Dense {
	r, c := h.Dims()
	da := zeros(r, c)
	if n == LogSoftmax {
		for i := range r {
			var sum float64
			for j := range c {
				sum += dh.At(i, j)
			}
			for j := range c {
				da.Set(i, j, dh.At(i, j)-math.Exp(h.At(i, j))*sum)
			}
		}
		return da
	}
	da.Apply(func(i, j int, _ float64) float64 {
		y, g := h.At(i, j), dh.At(i, j)
		switch n {
		case Tanh:
			return g * (1 - y*y)
		case ReLU:
			if y > 0 {
				return g
			}
			return 0
		case Sigmoid:
			return g * y * (1 - y)
		}
		return g
	}, da)
	return da
}

func logSoftmaxRows(a *mat.Dense) {
	raw := a.RawMatrix()
	for i := range raw.Rows {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		m := math.Inf(-1)
		for _, v := range row {
			m = math.Max(m, v)
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - m)
		}
		lse := m + math.Log(sum)
		for j := range row {
			row[j] -= lse
		}
	}
}
