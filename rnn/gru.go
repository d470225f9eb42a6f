package rnn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// gruCell follows the reset-after-product form:
//
//	r = σ(x W_r + h W_hr + b_r)
//	u = σ(x W_u + h W_hu + b_u)
//	c = tanh(x W_c + r ⊙ (h W_hc) + b_c)
//	h' = (1-u) ⊙ h + u ⊙ c
type gruCell struct {
	wIn, wHid, b *Param
	n            int
	clip         float64
}

type gruCache struct {
	x, hPrev      *mat.Dense
	r, u, c, hidC *mat.Dense
}

func newGRUCell(name string, in, units int, clip float64, rng *rand.Rand) *gruCell {
	return &gruCell{
		wIn:  newParam(name+".W_in", in, 3*units).normal(rng, 0.1),
		wHid: newParam(name+".W_hid", units, 3*units).normal(rng, 0.1),
		b:    newParam(name+".b", 1, 3*units),
		n:    units,
		clip: clip,
	}
}

func (c *gruCell) params() []*Param { return []*Param{c.wIn, c.wHid, c.b} }
func (c *gruCell) units() int       { return c.n }
func (c *gruCell) hasMemory() bool  { return false }

func (c *gruCell) step(x *mat.Dense, prev state) (state, any) {
	xz := hsplit(affine(x, c.wIn, c.b), c.n, c.n, c.n)
	hz := hsplit(mul(prev.h, c.wHid.Mat()), c.n, c.n, c.n)

	r, u, cand := xz[0], xz[1], xz[2]
	r.Add(r, hz[0])
	u.Add(u, hz[1])
	Sigmoid.apply(r)
	Sigmoid.apply(u)

	var gated mat.Dense
	gated.MulElem(r, hz[2])
	cand.Add(cand, &gated)
	Tanh.apply(cand)

	rows, _ := x.Dims()
	h := zeros(rows, c.n)
	h.Apply(func(i, j int, _ float64) float64 {
		uv := u.At(i, j)
		return (1-uv)*prev.h.At(i, j) + uv*cand.At(i, j)
	}, h)
	return state{h: h}, &gruCache{x: x, hPrev: prev.h, r: r, u: u, c: cand, hidC: hz[2]}
}

func (c *gruCell) backStep(dh, _ *mat.Dense, cache any) (dx, dhPrev, dcPrev *mat.Dense) {
	cc := cache.(*gruCache)
	rows, _ := dh.Dims()
	dar, dau, dac := zeros(rows, c.n), zeros(rows, c.n), zeros(rows, c.n)
	direct := zeros(rows, c.n)
	for i := range rows {
		for j := range c.n {
			g := dh.At(i, j)
			r, u, cand := cc.r.At(i, j), cc.u.At(i, j), cc.c.At(i, j)
			ac := g * u * (1 - cand*cand)
			dac.Set(i, j, ac)
			dar.Set(i, j, ac*cc.hidC.At(i, j)*r*(1-r))
			dau.Set(i, j, g*(cand-cc.hPrev.At(i, j))*u*(1-u))
			direct.Set(i, j, g*(1-u))
		}
	}
	clipInPlace(dar, c.clip)
	clipInPlace(dau, c.clip)
	clipInPlace(dac, c.clip)

	var dacHid mat.Dense
	dacHid.MulElem(dac, cc.r)
	dxz := hconcat(dar, dau, dac)
	dhz := hconcat(dar, dau, &dacHid)

	accumGrads(cc.x, dxz, c.wIn, c.b)
	accumMulT(c.wHid, cc.hPrev, dhz)
	dhPrev = mul(dhz, c.wHid.Mat().T())
	dhPrev.Add(dhPrev, direct)
	return mul(dxz, c.wIn.Mat().T()), dhPrev, nil
}
