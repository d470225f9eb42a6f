// Package train runs the epoch loop: training, scoring dev and test splits,
// best-score tracking, patience-driven learning-rate decay and curriculum
// stages.
package train

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/decode"
	"github.com/happyhackingspace/chartag/eval"
	"github.com/happyhackingspace/chartag/optim"
	"github.com/happyhackingspace/chartag/rnn"
)

// Split names.
const (
	Trn = "trn"
	Dev = "dev"
	Tst = "tst"
)

// DecayFactor scales the learning rate when patience runs out.
const DecayFactor = 0.95

// Model is a tagger the loop can train and query.
type Model interface {
	Train(b *batch.Batch) (rnn.Output, error)
	Predict(b *batch.Batch) (rnn.Output, error)
	LearningRate() *optim.Rate
	ParameterValues() [][]float64
}

// Batcher groups sentences into batches.
type Batcher interface {
	Batches(sents []corpus.Sentence) ([]*batch.Batch, error)
}

// Scorer scores predicted class sequences against their sentences.
type Scorer interface {
	Evaluate(sents []corpus.Sentence, pred [][]int) (eval.Result, error)
}

// Checkpointer persists a parameter snapshot when dev reaches a new best.
type Checkpointer interface {
	Save(epoch int, f1 float64, params [][]float64) error
}

// Score is a best F1 and the epoch that reached it.
type Score struct {
	Epoch int
	F1    float64
}

// Scores holds the best score of each split.
type Scores map[string]Score

func newScores() Scores {
	return Scores{Trn: {1, 0}, Dev: {1, 0}, Tst: {1, 0}}
}

// Split is a named set of sentences and their batches, in sentence order.
type Split struct {
	Name      string
	Sentences []corpus.Sentence
	Batches   []*batch.Batch
}

// NewSplit batches sents.
func NewSplit(name string, sents []corpus.Sentence, b Batcher) (*Split, error) {
	batches, err := b.Batches(sents)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Split{Name: name, Sentences: sents, Batches: batches}, nil
}

// Config controls the epoch loop.
type Config struct {
	Epochs   int
	Patience int
	Shuffle  bool

	Decoder     decode.Decoder
	Transitions *decode.Transitions
	Rand        *rand.Rand

	Scorer       Scorer
	Reporter     Reporter
	Checkpointer Checkpointer
}

func (c *Config) check() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.Scorer == nil {
		return fmt.Errorf("no scorer configured")
	}
	if c.Shuffle && c.Rand == nil {
		return fmt.Errorf("shuffling needs a random source")
	}
	if c.Decoder == nil {
		c.Decoder = decode.MaxDecoder{}
	}
	if c.Reporter == nil {
		c.Reporter = LogReporter{}
	}
	return nil
}

// Validator trains a model for a fixed number of epochs, scoring dev every
// epoch and test whenever dev reaches a new best.
type Validator struct {
	trn, dev, tst *Split
	cfg           Config
	best          Scores
}

// NewValidator creates a validator. tst may be nil.
func NewValidator(trn, dev, tst *Split, cfg Config) (*Validator, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if trn == nil || len(trn.Batches) == 0 {
		return nil, fmt.Errorf("empty training split")
	}
	if dev == nil || len(dev.Batches) == 0 {
		return nil, fmt.Errorf("empty dev split")
	}
	return &Validator{trn: trn, dev: dev, tst: tst, cfg: cfg, best: newScores()}, nil
}

// Best returns the best score of every split so far.
func (v *Validator) Best() Scores {
	out := make(Scores, len(v.best))
	for k, s := range v.best {
		out[k] = s
	}
	return out
}

// Validate runs every epoch and returns the best dev F1.
func (v *Validator) Validate(m Model) (float64, error) {
	slog.Info("Training the model", "epochs", v.cfg.Epochs, "patience", v.cfg.Patience, "batches", len(v.trn.Batches))
	impatience := 0
	for e := 1; e <= v.cfg.Epochs; e++ {
		for _, split := range []*Split{v.trn, v.dev, v.tst} {
			if split == nil {
				continue
			}
			if split == v.tst && v.best[Dev].Epoch != e {
				continue
			}
			if err := v.epoch(m, split, e); err != nil {
				return 0, fmt.Errorf("epoch %d %s: %w", e, split.Name, err)
			}
		}

		if e == v.best[Dev].Epoch {
			impatience = 0
		} else {
			impatience++
		}
		if v.cfg.Patience > 0 && impatience > v.cfg.Patience {
			rate := m.LearningRate()
			old := rate.Get()
			rate.Scale(DecayFactor)
			slog.Info("Decayed learning rate", "old", old, "new", rate.Get())
			impatience = 0
		}
	}
	return v.best[Dev].F1, nil
}

func (v *Validator) epoch(m Model, split *Split, e int) error {
	training := split == v.trn
	batches := split.Batches
	var perm Permutation
	if training && v.cfg.Shuffle {
		slog.Debug("Shuffling training batches")
		perm = NewPermutation(len(batches), v.cfg.Rand)
		batches = Apply(perm, batches)
	}

	start := time.Now()
	cost, labels, err := v.run(m, batches, training)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	if perm != nil {
		labels = Invert(perm, labels)
	}

	var pred [][]int
	for _, b := range labels {
		pred = append(pred, b...)
	}
	res, err := v.cfg.Scorer.Evaluate(split.Sentences, pred)
	if err != nil {
		return err
	}

	name := v.splitName(split)
	if res.F1 > v.best[name].F1 {
		v.best[name] = Score{Epoch: e, F1: res.F1}
		if name == Dev && v.cfg.Checkpointer != nil {
			if err := v.cfg.Checkpointer.Save(e, res.F1, m.ParameterValues()); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
		}
	}
	v.cfg.Reporter.Report(Report{
		Split:   name,
		Epoch:   e,
		Cost:    cost,
		Elapsed: elapsed,
		Result:  res,
		Best:    v.best[name],
	})
	return nil
}

func (v *Validator) splitName(s *Split) string {
	switch s {
	case v.trn:
		return Trn
	case v.dev:
		return Dev
	}
	return Tst
}

// run returns the mean batch cost and the labels of each batch, in the
// order the batches were given.
func (v *Validator) run(m Model, batches []*batch.Batch, training bool) (float64, [][][]int, error) {
	var total float64
	labels := make([][][]int, len(batches))
	for i, b := range batches {
		var out rnn.Output
		var err error
		if training {
			out, err = m.Train(b)
		} else {
			out, err = m.Predict(b)
		}
		if err != nil {
			return 0, nil, err
		}
		total += out.Cost
		if training {
			labels[i] = out.Labels
			continue
		}
		labels[i] = make([][]int, len(out.LogProbs))
		for j, lp := range out.LogProbs {
			labels[i][j] = v.cfg.Decoder.Decode(lp, v.cfg.Transitions)
		}
	}
	return total / float64(len(batches)), labels, nil
}
