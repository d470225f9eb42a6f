package rnn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// mul returns a*b.
func mul(a, b mat.Matrix) *mat.Dense {
	var c mat.Dense
	c.Mul(a, b)
	return &c
}

// affine returns x*w + b, with b broadcast over rows.
func affine(x mat.Matrix, w *Param, b *Param) *mat.Dense {
	out := mul(x, w.Mat())
	addRow(out, b.Value)
	return out
}

func addRow(m *mat.Dense, row []float64) {
	raw := m.RawMatrix()
	for i := range raw.Rows {
		r := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range r {
			r[j] += row[j]
		}
	}
}

// accumGrads adds x^T*d to w.Grad and the column sums of d to b.Grad.
func accumGrads(x, d mat.Matrix, w, b *Param) {
	accumMulT(w, x, d)
	if b != nil {
		addColSums(b.Grad, d)
	}
}

// accumMulT adds a^T*d to p.Grad.
func accumMulT(p *Param, a, d mat.Matrix) {
	g := p.GradMat()
	var t mat.Dense
	t.Mul(a.T(), d)
	g.Add(g, &t)
}

func addColSums(dst []float64, d mat.Matrix) {
	r, c := d.Dims()
	for i := range r {
		for j := range c {
			dst[j] += d.At(i, j)
		}
	}
}

// zeros returns an r x c zero matrix.
func zeros(r, c int) *mat.Dense {
	return mat.NewDense(r, c, nil)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// clipInPlace bounds every entry of m to [-c, c] when c > 0.
func clipInPlace(m *mat.Dense, c float64) {
	if c <= 0 {
		return
	}
	m.Apply(func(_, _ int, v float64) float64 {
		return math.Max(-c, math.Min(c, v))
	}, m)
}

// zeroRows sets the rows whose keep flag is false to zero.
func zeroRows(m *mat.Dense, keep []bool) {
	raw := m.RawMatrix()
	for i, k := range keep {
		if !k {
			clear(raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols])
		}
	}
}

// copyRows copies src rows into dst where keep is false.
func copyRows(dst, src *mat.Dense, keep []bool) {
	for i, k := range keep {
		if !k {
			dst.SetRow(i, src.RawRowView(i))
		}
	}
}

// hconcat joins matrices side by side.
func hconcat(ms ...*mat.Dense) *mat.Dense {
	rows, cols := 0, 0
	for _, m := range ms {
		r, c := m.Dims()
		rows = r
		cols += c
	}
	out := zeros(rows, cols)
	off := 0
	for _, m := range ms {
		_, c := m.Dims()
		out.Slice(0, rows, off, off+c).(*mat.Dense).Copy(m)
		off += c
	}
	return out
}

// hsplit cuts m into column blocks of the given widths.
func hsplit(m *mat.Dense, widths ...int) []*mat.Dense {
	rows, _ := m.Dims()
	out := make([]*mat.Dense, len(widths))
	off := 0
	for i, w := range widths {
		out[i] = mat.DenseCopyOf(m.Slice(0, rows, off, off+w))
		off += w
	}
	return out
}
