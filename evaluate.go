package chartag

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/checkpoint"
	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/decode"
	"github.com/happyhackingspace/chartag/eval"
	"github.com/happyhackingspace/chartag/internal/textutil"
	"github.com/happyhackingspace/chartag/rnn"
)

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	// DataFolder overrides the folder stored in the checkpoint.
	DataFolder string
	// Decoder overrides the stored decoder ("max" or "viterbi").
	Decoder string
}

// SplitResult is the evaluation of one split.
type SplitResult struct {
	Split  string
	Result eval.Result
}

// EvalResult holds the scores of a saved checkpoint.
type EvalResult struct {
	Name   string
	Epoch  int
	F1     float64
	Splits []SplitResult
}

// Restored is a model rebuilt from a checkpoint.
type Restored struct {
	Config      Config
	Encoder     *corpus.Encoder
	Tagger      *rnn.Tagger
	Transitions *decode.Transitions
	Bundle      *checkpoint.Bundle
}

// Restore rebuilds the tagger saved at path.
func Restore(path string) (*Restored, error) {
	b, err := checkpoint.Load(path)
	if err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(b.Config, &cfg); err != nil {
		return nil, fmt.Errorf("chartag: checkpoint config: %w", err)
	}
	enc := corpus.NewEncoder()
	if err := json.Unmarshal(b.Encoder, enc); err != nil {
		return nil, fmt.Errorf("chartag: checkpoint encoder: %w", err)
	}
	rc, err := cfg.RNNConfig()
	if err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	tagger, err := rnn.New(enc.NumClasses(), enc.NumFeatures(), rc, NewRand(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	if err := tagger.SetParameterValues(b.Params); err != nil {
		return nil, fmt.Errorf("chartag: %w", err)
	}
	r := &Restored{Config: cfg, Encoder: enc, Tagger: tagger, Bundle: b}
	if len(b.Transitions) > 0 {
		if r.Transitions, err = decode.TransitionsFromMatrix(b.Transitions); err != nil {
			return nil, fmt.Errorf("chartag: %w", err)
		}
	}
	return r, nil
}

// Predict decodes one class sequence per sentence, in input order.
func (r *Restored) Predict(sents []corpus.Sentence, dec decode.Decoder) ([][]int, error) {
	bt, err := batch.NewBatcher(r.Config.BatchSize, r.Encoder)
	if err != nil {
		return nil, err
	}
	batches, err := bt.Batches(sents)
	if err != nil {
		return nil, err
	}
	var pred [][]int
	for _, b := range batches {
		out, err := r.Tagger.Predict(b)
		if err != nil {
			return nil, err
		}
		for _, lp := range out.LogProbs {
			pred = append(pred, dec.Decode(lp, r.Transitions))
		}
	}
	return pred, nil
}

// Evaluate scores the checkpoint at path on the dev and test splits of its
// language.
func Evaluate(path string, config *EvalConfig) (*EvalResult, error) {
	r, err := Restore(path)
	if err != nil {
		return nil, err
	}
	folder := r.Config.DataFolder
	mode := r.Config.DecodeMode()
	if config != nil {
		if config.DataFolder != "" {
			folder = config.DataFolder
		}
		if config.Decoder != "" {
			if mode, err = decode.ParseMode(config.Decoder); err != nil {
				return nil, fmt.Errorf("chartag: %w", err)
			}
		}
	}
	raw, err := LoadDataset(folder, r.Config.Lang)
	if err != nil {
		return nil, err
	}

	ev := eval.NewEvaluator(r.Encoder.Labels(), r.Encoder.WordLabels(), textutil.WordTags)
	dec := decode.New(mode)
	result := &EvalResult{Name: r.Bundle.Name, Epoch: r.Bundle.Epoch, F1: r.Bundle.F1}
	for _, split := range []struct {
		name  string
		sents []corpus.Sentence
	}{{"dev", raw.Dev}, {"tst", raw.Tst}} {
		if len(split.sents) == 0 {
			continue
		}
		sents, err := PrepareSentences(split.sents, r.Config.Tagging, r.Config.Rep)
		if err != nil {
			return nil, fmt.Errorf("chartag: %s: %w", split.name, err)
		}
		pred, err := r.Predict(sents, dec)
		if err != nil {
			return nil, fmt.Errorf("chartag: %s: %w", split.name, err)
		}
		res, err := ev.Evaluate(sents, pred)
		if err != nil {
			return nil, fmt.Errorf("chartag: %s: %w", split.name, err)
		}
		slog.Debug("Evaluated split", "split", split.name, "f1", res.F1)
		result.Splits = append(result.Splits, SplitResult{Split: split.name, Result: res})
	}
	return result, nil
}

// Transfer builds an experiment for the data options of cfg with the
// network, optimizer and training options saved at path, then copies every
// saved parameter that still fits. The saved encoder is extended with the new
// corpus so the trained input weights keep their feature columns. It returns
// the experiment ready to Run and the number of copied parameters.
func Transfer(path string, cfg Config) (*Experiment, int, error) {
	b, err := checkpoint.Load(path)
	if err != nil {
		return nil, 0, fmt.Errorf("chartag: %w", err)
	}
	merged := DefaultConfig()
	if err := json.Unmarshal(b.Config, &merged); err != nil {
		return nil, 0, fmt.Errorf("chartag: checkpoint config: %w", err)
	}
	merged.DataFolder = cfg.DataFolder
	merged.Lang = cfg.Lang
	merged.Tagging = cfg.Tagging
	merged.Sorted = cfg.Sorted
	merged.Rep = cfg.Rep
	merged.BreakTrain = cfg.BreakTrain
	merged.CapTrain = cfg.CapTrain
	merged.Sample = cfg.Sample
	merged.Shuffle = cfg.Shuffle
	merged.Save = cfg.Save
	merged.ModelDir = cfg.ModelDir
	merged.Seed = cfg.Seed

	enc := corpus.NewEncoder()
	if err := json.Unmarshal(b.Encoder, enc); err != nil {
		return nil, 0, fmt.Errorf("chartag: checkpoint encoder: %w", err)
	}

	raw, err := LoadDataset(merged.DataFolder, merged.Lang)
	if err != nil {
		return nil, 0, err
	}
	x, err := newExperiment(merged, raw, enc)
	if err != nil {
		return nil, 0, err
	}
	target, ok := x.Model.(checkpoint.Target)
	if !ok {
		return nil, 0, fmt.Errorf("chartag: model %q has no parameters to transfer", merged.Model)
	}
	copied, err := checkpoint.Transfer(target, b.Params, b.Shapes)
	if err != nil {
		return nil, 0, fmt.Errorf("chartag: %w", err)
	}
	return x, copied, nil
}
