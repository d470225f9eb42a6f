// Package chartag trains bidirectional recurrent taggers that label text one
// character at a time, such as named-entity recognizers over character
// streams.
//
//	cfg := chartag.DefaultConfig()
//	cfg.Lang = "tur"
//	raw, _ := chartag.LoadDataset(cfg.DataFolder, cfg.Lang)
//	x, _ := chartag.NewExperiment(cfg, raw)
//	f1, _ := x.Run() // best dev F1
package chartag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/checkpoint"
	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/decode"
	"github.com/happyhackingspace/chartag/eval"
	"github.com/happyhackingspace/chartag/internal/storage"
	"github.com/happyhackingspace/chartag/internal/textutil"
	"github.com/happyhackingspace/chartag/rnn"
	"github.com/happyhackingspace/chartag/train"
)

// Experiment is one fully assembled training run.
type Experiment struct {
	RunID       string
	Config      Config
	Data        Dataset
	Encoder     *corpus.Encoder
	Transitions *decode.Transitions
	Model       train.Model

	rng     *rand.Rand
	batcher *batch.Batcher
	writer  *checkpoint.Writer
}

// LoadDataset reads the word-level splits of lang from a data folder.
func LoadDataset(folder, lang string) (Dataset, error) {
	trn, dev, tst, err := storage.NewStorage(folder).Splits(lang)
	if err != nil {
		return Dataset{}, fmt.Errorf("chartag: %w", err)
	}
	return Dataset{Trn: trn, Dev: dev, Tst: tst}, nil
}

// NewRand returns the run's random source.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewExperiment prepares raw, fits the encoder over every split and builds
// the model, transitions and checkpoint writer.
func NewExperiment(cfg Config, raw Dataset) (*Experiment, error) {
	return newExperiment(cfg, raw, nil)
}

// newExperiment builds an experiment. A non-nil base encoder keeps its
// feature columns and is extended with the characters of raw.
func newExperiment(cfg Config, raw Dataset, base *corpus.Encoder) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	x := &Experiment{
		RunID:  uuid.NewString(),
		Config: cfg,
		rng:    NewRand(cfg.Seed),
	}
	slog.Info("New experiment", "run", x.RunID, "lang", cfg.Lang, "model", cfg.Model)

	var err error
	if x.Data, err = Prepare(raw, cfg, x.rng); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	if cfg.Curriculum > 1 {
		if _, err := train.Partition(len(x.Data.Trn), cfg.Curriculum); err != nil {
			return nil, fmt.Errorf("chartag: %w", err)
		}
	}

	if base != nil {
		x.Encoder = base
		x.Encoder.Extend(x.Data.Trn, x.Data.Dev, x.Data.Tst)
	} else {
		x.Encoder = corpus.NewEncoder()
		x.Encoder.Fit(x.Data.Trn, x.Data.Dev, x.Data.Tst)
	}
	slog.Info("Fitted encoder", "features", x.Encoder.NumFeatures(), "classes", x.Encoder.NumClasses())

	if x.batcher, err = batch.NewBatcher(cfg.BatchSize, x.Encoder); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	seqs, err := x.Encoder.ClassSequences(x.Data.Trn)
	if err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	if x.Transitions, err = decode.NewTransitions(seqs, x.Encoder.NumClasses()); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	if x.Model, err = newModel(cfg, x.Encoder, x.rng); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	if cfg.Save {
		if x.writer, err = x.newWriter(); err != nil {
			return nil, fmt.Errorf("chartag: %w", err)
		}
	}
	return x, nil
}

func newModel(cfg Config, enc *corpus.Encoder, rng *rand.Rand) (train.Model, error) {
	if cfg.Model == ModelDummy {
		return rnn.NewDummy(enc.NumClasses(), rng), nil
	}
	rc, err := cfg.RNNConfig()
	if err != nil {
		return nil, err
	}
	return rnn.New(enc.NumClasses(), enc.NumFeatures(), rc, rng)
}

func (x *Experiment) newWriter() (*checkpoint.Writer, error) {
	name, err := x.Config.Name()
	if err != nil {
		return nil, err
	}
	cfgJSON, err := json.Marshal(x.Config)
	if err != nil {
		return nil, err
	}
	encJSON, err := json.Marshal(x.Encoder)
	if err != nil {
		return nil, err
	}
	base := checkpoint.Bundle{
		RunID:       x.RunID,
		Name:        name,
		Config:      cfgJSON,
		Encoder:     encJSON,
		Transitions: x.Transitions.Matrix(),
	}
	if t, ok := x.Model.(*rnn.Tagger); ok {
		base.Shapes = t.ParameterShapes()
	}
	return &checkpoint.Writer{Dir: x.Config.ModelDir, Base: base}, nil
}

// Checkpoint returns the path of the last saved checkpoint, or "".
func (x *Experiment) Checkpoint() string {
	if x.writer == nil {
		return ""
	}
	return x.writer.Last()
}

// Evaluator returns a scorer over the experiment's tag alphabets.
func (x *Experiment) Evaluator() *eval.Evaluator {
	return eval.NewEvaluator(x.Encoder.Labels(), x.Encoder.WordLabels(), textutil.WordTags)
}

// Run trains the model and returns the best dev F1. With more than one
// curriculum part the last stage's best is returned.
func (x *Experiment) Run() (float64, error) {
	dev, err := train.NewSplit(train.Dev, x.Data.Dev, x.batcher)
	if err != nil {
		return 0, fmt.Errorf("chartag: %w", err)
	}
	var tst *train.Split
	if len(x.Data.Tst) > 0 {
		if tst, err = train.NewSplit(train.Tst, x.Data.Tst, x.batcher); err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
	}

	tc := train.Config{
		Epochs:      x.Config.Epochs,
		Patience:    x.Config.Patience,
		Shuffle:     x.Config.Shuffle,
		Decoder:     decode.New(x.Config.DecodeMode()),
		Transitions: x.Transitions,
		Rand:        x.rng,
		Scorer:      x.Evaluator(),
		Reporter:    train.LogReporter{},
	}
	if x.writer != nil {
		tc.Checkpointer = x.writer
	}

	var f1 float64
	if x.Config.Curriculum > 1 {
		c, err := train.NewCurriculum(x.Data.Trn, dev, tst, x.batcher, x.Config.Curriculum, tc)
		if err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
		f1, err = c.Validate(x.Model)
		if err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
	} else {
		trn, err := train.NewSplit(train.Trn, x.Data.Trn, x.batcher)
		if err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
		v, err := train.NewValidator(trn, dev, tst, tc)
		if err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
		f1, err = v.Validate(x.Model)
		if err != nil {
			return 0, fmt.Errorf("chartag: %w", err)
		}
	}
	slog.Info("Finished", "run", x.RunID, "best_dev_f1", f1)
	return f1, nil
}
