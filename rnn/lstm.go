package rnn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// lstmCell is an LSTM without peepholes. Gate columns are ordered
// input, forget, cell, output.
type lstmCell struct {
	wIn, wHid, b *Param
	n            int
	clip         float64
}

type lstmCache struct {
	x, hPrev, cPrev *mat.Dense
	i, f, g, o, tc  *mat.Dense
}

func newLSTMCell(name string, in, units int, forgetBias, clip float64, rng *rand.Rand) *lstmCell {
	c := &lstmCell{
		wIn:  newParam(name+".W_in", in, 4*units).normal(rng, 0.1),
		wHid: newParam(name+".W_hid", units, 4*units).normal(rng, 0.1),
		b:    newParam(name+".b", 1, 4*units),
		n:    units,
		clip: clip,
	}
	for j := units; j < 2*units; j++ {
		c.b.Value[j] = forgetBias
	}
	return c
}

func (c *lstmCell) params() []*Param { return []*Param{c.wIn, c.wHid, c.b} }
func (c *lstmCell) units() int       { return c.n }
func (c *lstmCell) hasMemory() bool  { return true }

func (c *lstmCell) step(x *mat.Dense, prev state) (state, any) {
	z := affine(x, c.wIn, c.b)
	z.Add(z, mul(prev.h, c.wHid.Mat()))
	gates := hsplit(z, c.n, c.n, c.n, c.n)
	i, f, g, o := gates[0], gates[1], gates[2], gates[3]
	for _, m := range []*mat.Dense{i, f, o} {
		Sigmoid.apply(m)
	}
	Tanh.apply(g)

	rows, _ := x.Dims()
	cell := zeros(rows, c.n)
	tc := zeros(rows, c.n)
	h := zeros(rows, c.n)
	for r := range rows {
		for j := range c.n {
			v := f.At(r, j)*prev.c.At(r, j) + i.At(r, j)*g.At(r, j)
			cell.Set(r, j, v)
			tc.Set(r, j, math.Tanh(v))
			h.Set(r, j, o.At(r, j)*tc.At(r, j))
		}
	}
	cache := &lstmCache{x: x, hPrev: prev.h, cPrev: prev.c, i: i, f: f, g: g, o: o, tc: tc}
	return state{h: h, c: cell}, cache
}

func (c *lstmCell) backStep(dh, dc *mat.Dense, cache any) (dx, dhPrev, dcPrev *mat.Dense) {
	cc := cache.(*lstmCache)
	rows, _ := dh.Dims()
	dzi, dzf := zeros(rows, c.n), zeros(rows, c.n)
	dzg, dzo := zeros(rows, c.n), zeros(rows, c.n)
	dcPrev = zeros(rows, c.n)
	for r := range rows {
		for j := range c.n {
			i, f, g, o := cc.i.At(r, j), cc.f.At(r, j), cc.g.At(r, j), cc.o.At(r, j)
			tc := cc.tc.At(r, j)
			dct := dc.At(r, j) + dh.At(r, j)*o*(1-tc*tc)
			dzi.Set(r, j, dct*g*i*(1-i))
			dzf.Set(r, j, dct*cc.cPrev.At(r, j)*f*(1-f))
			dzg.Set(r, j, dct*i*(1-g*g))
			dzo.Set(r, j, dh.At(r, j)*tc*o*(1-o))
			dcPrev.Set(r, j, dct*f)
		}
	}
	dz := hconcat(dzi, dzf, dzg, dzo)
	clipInPlace(dz, c.clip)

	accumGrads(cc.x, dz, c.wIn, c.b)
	accumMulT(c.wHid, cc.hPrev, dz)
	return mul(dz, c.wIn.Mat().T()), mul(dz, c.wHid.Mat().T()), dcPrev
}
