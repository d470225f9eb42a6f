package rnn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// state is the recurrent state of a batch. c is nil for cells without a memory cell.
type state struct {
	h, c *mat.Dense
}

// cell is one recurrent update over all rows of a batch.
type cell interface {
	params() []*Param
	units() int
	hasMemory() bool
	step(x *mat.Dense, prev state) (state, any)
	// backStep maps the gradients at the new state to the input and the previous state.
	backStep(dh, dc *mat.Dense, cache any) (dx, dhPrev, dcPrev *mat.Dense)
}

// recurrent runs a cell over a masked sequence in one direction.
// At a masked step a row keeps its previous state.
type recurrent struct {
	cell      cell
	backwards bool

	masks  [][]bool
	caches []any
}

func (l *recurrent) at(k, steps int) int {
	if l.backwards {
		return steps - 1 - k
	}
	return k
}

func (l *recurrent) zeroState(rows int) state {
	s := state{h: zeros(rows, l.cell.units())}
	if l.cell.hasMemory() {
		s.c = zeros(rows, l.cell.units())
	}
	return s
}

func (l *recurrent) forward(xs []*mat.Dense, masks [][]bool, _ bool) []*mat.Dense {
	steps := len(xs)
	rows, _ := xs[0].Dims()
	outs := make([]*mat.Dense, steps)
	l.caches = make([]any, steps)
	l.masks = masks

	prev := l.zeroState(rows)
	for k := range steps {
		t := l.at(k, steps)
		next, cache := l.cell.step(xs[t], prev)
		copyRows(next.h, prev.h, masks[t])
		if next.c != nil {
			copyRows(next.c, prev.c, masks[t])
		}
		outs[t] = next.h
		l.caches[t] = cache
		prev = next
	}
	return outs
}

func (l *recurrent) backward(dys []*mat.Dense) []*mat.Dense {
	steps := len(dys)
	rows, _ := dys[0].Dims()
	dxs := make([]*mat.Dense, steps)

	carry := l.zeroState(rows)
	dh, dc := carry.h, carry.c
	for k := steps - 1; k >= 0; k-- {
		t := l.at(k, steps)
		keep := l.masks[t]
		dh.Add(dh, dys[t])

		heldH := mat.DenseCopyOf(dh)
		zeroRows(dh, keep)
		var heldC *mat.Dense
		if dc != nil {
			heldC = mat.DenseCopyOf(dc)
			zeroRows(dc, keep)
		}

		dx, dhPrev, dcPrev := l.cell.backStep(dh, dc, l.caches[t])
		copyRows(dhPrev, heldH, keep)
		if dcPrev != nil {
			copyRows(dcPrev, heldC, keep)
		}
		dxs[t] = dx
		dh, dc = dhPrev, dcPrev
	}
	return dxs
}

func (l *recurrent) params() []*Param {
	return l.cell.params()
}

// vanillaCell computes h = f(x*W_in + h_prev*W_hid + b).
type vanillaCell struct {
	wIn, wHid, b *Param
	nonlin       Nonlinearity
	clip         float64
}

type vanillaCache struct {
	x, hPrev, h *mat.Dense
}

func newVanillaCell(name string, in, units int, nonlin Nonlinearity, gain, clip float64, rng *rand.Rand) *vanillaCell {
	return &vanillaCell{
		wIn:    newParam(name+".W_in", in, units).glorotUniform(rng, gain),
		wHid:   newParam(name+".W_hid", units, units).identity(),
		b:      newParam(name+".b", 1, units),
		nonlin: nonlin,
		clip:   clip,
	}
}

func (c *vanillaCell) params() []*Param { return []*Param{c.wIn, c.wHid, c.b} }
func (c *vanillaCell) units() int       { return c.wHid.Rows }
func (c *vanillaCell) hasMemory() bool  { return false }

func (c *vanillaCell) step(x *mat.Dense, prev state) (state, any) {
	a := affine(x, c.wIn, c.b)
	a.Add(a, mul(prev.h, c.wHid.Mat()))
	c.nonlin.apply(a)
	return state{h: a}, &vanillaCache{x: x, hPrev: prev.h, h: a}
}

func (c *vanillaCell) backStep(dh, _ *mat.Dense, cache any) (dx, dhPrev, dcPrev *mat.Dense) {
	cc := cache.(*vanillaCache)
	da := c.nonlin.backward(cc.h, dh)
	clipInPlace(da, c.clip)
	accumGrads(cc.x, da, c.wIn, c.b)
	accumMulT(c.wHid, cc.hPrev, da)
	return mul(da, c.wIn.Mat().T()), mul(da, c.wHid.Mat().T()), nil
}
