package rnn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// layer is one stage of the tagger applied to a whole time-major sequence.
type layer interface {
	forward(xs []*mat.Dense, masks [][]bool, train bool) []*mat.Dense
	backward(dys []*mat.Dense) []*mat.Dense
	params() []*Param
}

// bidir runs a forward and a backward recurrent layer over the same input.
type bidir struct {
	fw, bw *recurrent
	merge  Merge
}

func (l *bidir) width() int {
	if l.merge == Sum {
		return l.fw.cell.units()
	}
	return l.fw.cell.units() + l.bw.cell.units()
}

func (l *bidir) forward(xs []*mat.Dense, masks [][]bool, train bool) []*mat.Dense {
	f := l.fw.forward(xs, masks, train)
	b := l.bw.forward(xs, masks, train)
	out := make([]*mat.Dense, len(xs))
	for t := range xs {
		if l.merge == Sum {
			var s mat.Dense
			s.Add(f[t], b[t])
			out[t] = &s
		} else {
			out[t] = hconcat(f[t], b[t])
		}
	}
	return out
}

func (l *bidir) backward(dys []*mat.Dense) []*mat.Dense {
	df := make([]*mat.Dense, len(dys))
	db := make([]*mat.Dense, len(dys))
	for t, dy := range dys {
		if l.merge == Sum {
			df[t], db[t] = dy, dy
		} else {
			parts := hsplit(dy, l.fw.cell.units(), l.bw.cell.units())
			df[t], db[t] = parts[0], parts[1]
		}
	}
	dxf := l.fw.backward(df)
	dxb := l.bw.backward(db)
	for t := range dxf {
		dxf[t].Add(dxf[t], dxb[t])
	}
	return dxf
}

func (l *bidir) params() []*Param {
	return append(l.fw.params(), l.bw.params()...)
}

// dense is a position-wise affine map followed by a nonlinearity.
type dense struct {
	w, b   *Param
	nonlin Nonlinearity

	xs, ys []*mat.Dense
}

func newDense(name string, in, out int, nonlin Nonlinearity, rng *rand.Rand) *dense {
	return &dense{
		w:      newParam(name+".W", in, out).glorotUniform(rng, 1),
		b:      newParam(name+".b", 1, out),
		nonlin: nonlin,
	}
}

func (l *dense) forward(xs []*mat.Dense, _ [][]bool, _ bool) []*mat.Dense {
	l.xs = xs
	l.ys = make([]*mat.Dense, len(xs))
	for t, x := range xs {
		y := affine(x, l.w, l.b)
		l.nonlin.apply(y)
		l.ys[t] = y
	}
	return l.ys
}

func (l *dense) backward(dys []*mat.Dense) []*mat.Dense {
	dxs := make([]*mat.Dense, len(dys))
	for t, dy := range dys {
		da := l.nonlin.backward(l.ys[t], dy)
		accumGrads(l.xs[t], da, l.w, l.b)
		dxs[t] = mul(da, l.w.Mat().T())
	}
	return dxs
}

func (l *dense) params() []*Param { return []*Param{l.w, l.b} }

// dropout zeroes entries with probability p during training and rescales the rest.
type dropout struct {
	p   float64
	rng *rand.Rand

	masks []*mat.Dense
}

func (l *dropout) forward(xs []*mat.Dense, _ [][]bool, train bool) []*mat.Dense {
	l.masks = nil
	if !train || l.p == 0 {
		return xs
	}
	keep := 1 / (1 - l.p)
	out := make([]*mat.Dense, len(xs))
	l.masks = make([]*mat.Dense, len(xs))
	for t, x := range xs {
		r, c := x.Dims()
		m := zeros(r, c)
		m.Apply(func(_, _ int, _ float64) float64 {
			if l.rng.Float64() < l.p {
				return 0
			}
			return keep
		}, m)
		var y mat.Dense
		y.MulElem(x, m)
		out[t] = &y
		l.masks[t] = m
	}
	return out
}

func (l *dropout) backward(dys []*mat.Dense) []*mat.Dense {
	if l.masks == nil {
		return dys
	}
	dxs := make([]*mat.Dense, len(dys))
	for t, dy := range dys {
		var dx mat.Dense
		dx.MulElem(dy, l.masks[t])
		dxs[t] = &dx
	}
	return dxs
}

func (l *dropout) params() []*Param { return nil }

const (
	bnEpsilon  = 1e-4
	bnMomentum = 0.1
)

// batchNorm normalizes each feature over the real positions of a batch.
// Running statistics are kept as non-trainable parameters and used at prediction time.
type batchNorm struct {
	gamma, beta    *Param
	mean, variance *Param

	masks  [][]bool
	xhat   []*mat.Dense
	invStd []float64
	n      int
}

func newBatchNorm(name string, width int) *batchNorm {
	return &batchNorm{
		gamma:    newParam(name+".gamma", 1, width).fill(1),
		beta:     newParam(name+".beta", 1, width),
		mean:     newParam(name+".mean", 1, width).frozen(),
		variance: newParam(name+".var", 1, width).fill(1).frozen(),
	}
}

func (l *batchNorm) forward(xs []*mat.Dense, masks [][]bool, train bool) []*mat.Dense {
	width := l.gamma.Cols
	mean, variance := l.mean.Value, l.variance.Value
	if train {
		mean, variance = l.batchStats(xs, masks)
		if l.n > 0 {
			for j := range width {
				l.mean.Value[j] = (1-bnMomentum)*l.mean.Value[j] + bnMomentum*mean[j]
				l.variance.Value[j] = (1-bnMomentum)*l.variance.Value[j] + bnMomentum*variance[j]
			}
		}
	}

	l.masks = masks
	l.invStd = make([]float64, width)
	for j := range width {
		l.invStd[j] = 1 / math.Sqrt(variance[j]+bnEpsilon)
	}
	l.xhat = make([]*mat.Dense, len(xs))
	out := make([]*mat.Dense, len(xs))
	for t, x := range xs {
		r, c := x.Dims()
		xhat, y := zeros(r, c), zeros(r, c)
		for i := range r {
			if !masks[t][i] {
				continue
			}
			for j := range c {
				v := (x.At(i, j) - mean[j]) * l.invStd[j]
				xhat.Set(i, j, v)
				y.Set(i, j, l.gamma.Value[j]*v+l.beta.Value[j])
			}
		}
		l.xhat[t], out[t] = xhat, y
	}
	return out
}

func (l *batchNorm) batchStats(xs []*mat.Dense, masks [][]bool) (mean, variance []float64) {
	width := l.gamma.Cols
	mean = make([]float64, width)
	variance = make([]float64, width)
	l.n = 0
	for t, x := range xs {
		r, _ := x.Dims()
		for i := range r {
			if !masks[t][i] {
				continue
			}
			l.n++
			for j := range width {
				mean[j] += x.At(i, j)
			}
		}
	}
	if l.n == 0 {
		return l.mean.Value, l.variance.Value
	}
	for j := range mean {
		mean[j] /= float64(l.n)
	}
	for t, x := range xs {
		r, _ := x.Dims()
		for i := range r {
			if !masks[t][i] {
				continue
			}
			for j := range width {
				d := x.At(i, j) - mean[j]
				variance[j] += d * d
			}
		}
	}
	for j := range variance {
		variance[j] /= float64(l.n)
	}
	return mean, variance
}

func (l *batchNorm) backward(dys []*mat.Dense) []*mat.Dense {
	width := l.gamma.Cols
	sumD := make([]float64, width)
	sumDX := make([]float64, width)
	for t, dy := range dys {
		r, _ := dy.Dims()
		for i := range r {
			if !l.masks[t][i] {
				continue
			}
			for j := range width {
				g := dy.At(i, j)
				xh := l.xhat[t].At(i, j)
				l.gamma.Grad[j] += g * xh
				l.beta.Grad[j] += g
				sumD[j] += g * l.gamma.Value[j]
				sumDX[j] += g * l.gamma.Value[j] * xh
			}
		}
	}

	n := float64(l.n)
	dxs := make([]*mat.Dense, len(dys))
	for t, dy := range dys {
		r, c := dy.Dims()
		dx := zeros(r, c)
		for i := range r {
			if !l.masks[t][i] || l.n == 0 {
				continue
			}
			for j := range c {
				dxhat := dy.At(i, j) * l.gamma.Value[j]
				xh := l.xhat[t].At(i, j)
				dx.Set(i, j, l.invStd[j]/n*(n*dxhat-sumD[j]-xh*sumDX[j]))
			}
		}
		dxs[t] = dx
	}
	return dxs
}

func (l *batchNorm) params() []*Param {
	return []*Param{l.gamma, l.beta, l.mean, l.variance}
}
