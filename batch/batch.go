// Package batch groups sentences into padded, masked tensors.
package batch

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/chartag/corpus"
)

// Featurizer supplies per-character features and one-hot targets.
type Featurizer interface {
	NumFeatures() int
	NumClasses() int
	Transform(s corpus.Sentence) (features, targets [][]float64, err error)
}

// Batch is a group of sentences padded to the longest one.
//
// Tensors are flat and row-major: Inputs is [Size][MaxLen][NumFeatures],
// Mask is [Size][MaxLen], Targets and TargetMask are [Size][MaxLen][NumClasses].
type Batch struct {
	Size        int
	MaxLen      int
	NumFeatures int
	NumClasses  int
	Lengths     []int
	Inputs      []float64
	Mask        []bool
	Targets     []float64
	TargetMask  []bool
}

// Step returns the [Size x NumFeatures] input matrix of timestep t.
func (b *Batch) Step(t int) *mat.Dense {
	data := make([]float64, b.Size*b.NumFeatures)
	for i := range b.Size {
		off := (i*b.MaxLen + t) * b.NumFeatures
		copy(data[i*b.NumFeatures:(i+1)*b.NumFeatures], b.Inputs[off:off+b.NumFeatures])
	}
	return mat.NewDense(b.Size, b.NumFeatures, data)
}

// Present returns which rows hold real data at timestep t.
func (b *Batch) Present(t int) []bool {
	p := make([]bool, b.Size)
	for i := range b.Size {
		p[i] = b.Mask[i*b.MaxLen+t]
	}
	return p
}

// Target returns the one-hot target row of sentence i at timestep t.
func (b *Batch) Target(i, t int) []float64 {
	off := (i*b.MaxLen + t) * b.NumClasses
	return b.Targets[off : off+b.NumClasses]
}

// Real returns the number of unpadded positions.
func (b *Batch) Real() int {
	n := 0
	for _, l := range b.Lengths {
		n += l
	}
	return n
}

// Batcher splits sentence lists into batches of at most Size sentences.
type Batcher struct {
	size int
	enc  Featurizer
}

// NewBatcher creates a Batcher.
func NewBatcher(size int, enc Featurizer) (*Batcher, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	if enc.NumFeatures() < 1 || enc.NumClasses() < 1 {
		return nil, fmt.Errorf("encoder is not fitted: %d features, %d classes", enc.NumFeatures(), enc.NumClasses())
	}
	return &Batcher{size: size, enc: enc}, nil
}

// Batches groups consecutive sentences, keeping their order.
// A zero-length sentence is an error.
func (bt *Batcher) Batches(sents []corpus.Sentence) ([]*Batch, error) {
	var batches []*Batch
	for lo := 0; lo < len(sents); lo += bt.size {
		hi := min(lo+bt.size, len(sents))
		b, err := bt.build(sents[lo:hi], lo)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (bt *Batcher) build(group []corpus.Sentence, offset int) (*Batch, error) {
	nf, nc := bt.enc.NumFeatures(), bt.enc.NumClasses()

	maxLen := 0
	for i, s := range group {
		if s.Len() == 0 {
			return nil, fmt.Errorf("sentence %d: zero-length sentence", offset+i)
		}
		maxLen = max(maxLen, s.Len())
	}

	b := &Batch{
		Size:        len(group),
		MaxLen:      maxLen,
		NumFeatures: nf,
		NumClasses:  nc,
		Lengths:     make([]int, len(group)),
		Inputs:      make([]float64, len(group)*maxLen*nf),
		Mask:        make([]bool, len(group)*maxLen),
		Targets:     make([]float64, len(group)*maxLen*nc),
		TargetMask:  make([]bool, len(group)*maxLen*nc),
	}

	for i, s := range group {
		feats, targets, err := bt.enc.Transform(s)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", offset+i, err)
		}
		if len(feats) != s.Len() || len(targets) != s.Len() {
			return nil, fmt.Errorf("sentence %d: encoder returned %d feature and %d target rows for %d characters",
				offset+i, len(feats), len(targets), s.Len())
		}
		b.Lengths[i] = s.Len()
		for t := range s.Len() {
			if len(feats[t]) != nf || len(targets[t]) != nc {
				return nil, fmt.Errorf("sentence %d: row %d has %d features and %d classes, want %d and %d",
					offset+i, t, len(feats[t]), len(targets[t]), nf, nc)
			}
			pos := i*maxLen + t
			copy(b.Inputs[pos*nf:(pos+1)*nf], feats[t])
			copy(b.Targets[pos*nc:(pos+1)*nc], targets[t])
			b.Mask[pos] = true
			for c := range nc {
				b.TargetMask[pos*nc+c] = true
			}
		}
	}
	return b, nil
}
