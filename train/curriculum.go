package train

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/chartag/corpus"
)

// Partition splits [0, n) into parts contiguous ranges of n/parts elements,
// the last one absorbing the remainder, and appends the full range.
func Partition(n, parts int) ([][2]int, error) {
	if parts < 1 {
		return nil, fmt.Errorf("curriculum needs at least one part, got %d", parts)
	}
	if parts > n {
		return nil, fmt.Errorf("curriculum has %d parts for %d sentences", parts, n)
	}
	size := n / parts
	ranges := make([][2]int, 0, parts+1)
	for i := range parts {
		lo, hi := i*size, (i+1)*size
		if i == parts-1 {
			hi = n
		}
		ranges = append(ranges, [2]int{lo, hi})
	}
	return append(ranges, [2]int{0, n}), nil
}

// Curriculum trains one model on growing stages of the training set: each
// part in turn, then all of it. Every stage starts with fresh best scores.
type Curriculum struct {
	parts   [][]corpus.Sentence
	dev     *Split
	tst     *Split
	batcher Batcher
	cfg     Config
}

// NewCurriculum creates a curriculum over trn. tst may be nil.
func NewCurriculum(trn []corpus.Sentence, dev, tst *Split, b Batcher, parts int, cfg Config) (*Curriculum, error) {
	ranges, err := Partition(len(trn), parts)
	if err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	c := &Curriculum{dev: dev, tst: tst, batcher: b, cfg: cfg}
	for _, r := range ranges {
		c.parts = append(c.parts, trn[r[0]:r[1]])
	}
	return c, nil
}

// Parts returns the training sentences of every stage.
func (c *Curriculum) Parts() [][]corpus.Sentence {
	return c.parts
}

// Validate runs a Validator per stage with the same model and returns the
// best dev F1 of the last stage.
func (c *Curriculum) Validate(m Model) (float64, error) {
	var f1 float64
	for i, part := range c.parts {
		slog.Info("Learning part", "part", i+1, "of", len(c.parts), "sentences", len(part))
		trn, err := NewSplit(Trn, part, c.batcher)
		if err != nil {
			return 0, err
		}
		v, err := NewValidator(trn, c.dev, c.tst, c.cfg)
		if err != nil {
			return 0, err
		}
		if f1, err = v.Validate(m); err != nil {
			return 0, fmt.Errorf("part %d: %w", i+1, err)
		}
	}
	return f1, nil
}
