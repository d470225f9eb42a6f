package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/happyhackingspace/chartag"
)

// configFlags copies a flag's value from src to dst, keyed by flag name.
var configFlags = map[string]func(dst, src *chartag.Config){
	"data-folder": func(d, s *chartag.Config) { d.DataFolder = s.DataFolder },
	"lang":        func(d, s *chartag.Config) { d.Lang = s.Lang },
	"tagging":     func(d, s *chartag.Config) { d.Tagging = s.Tagging },
	"sorted":      func(d, s *chartag.Config) { d.Sorted = s.Sorted },
	"captrn":      func(d, s *chartag.Config) { d.CapTrain = s.CapTrain },
	"sample":      func(d, s *chartag.Config) { d.Sample = s.Sample },
	"reverse":     func(d, s *chartag.Config) { d.Reverse = s.Reverse },
	"breaktrn":    func(d, s *chartag.Config) { d.BreakTrain = s.BreakTrain },
	"rep":         func(d, s *chartag.Config) { d.Rep = s.Rep },
	"rnn":         func(d, s *chartag.Config) { d.Model = s.Model },
	"activation":  func(d, s *chartag.Config) { d.Activation = s.Activation },
	"n-hidden":    func(d, s *chartag.Config) { d.Hidden = s.Hidden },
	"fbmerge":     func(d, s *chartag.Config) { d.FBMerge = s.FBMerge },
	"recout":      func(d, s *chartag.Config) { d.RecOut = s.RecOut },
	"batch-norm":  func(d, s *chartag.Config) { d.BatchNorm = s.BatchNorm },
	"drates":      func(d, s *chartag.Config) { d.Dropout = s.Dropout },
	"emb":         func(d, s *chartag.Config) { d.Embedding = s.Embedding },
	"gclip":       func(d, s *chartag.Config) { d.GradClip = s.GradClip },
	"in2out":      func(d, s *chartag.Config) { d.InToOut = s.InToOut },
	"fbias":       func(d, s *chartag.Config) { d.ForgetBias = s.ForgetBias },
	"opt":         func(d, s *chartag.Config) { d.Optimizer = s.Optimizer },
	"lr":          func(d, s *chartag.Config) { d.LearningRate = s.LearningRate },
	"norm":        func(d, s *chartag.Config) { d.Norm = s.Norm },
	"n-batch":     func(d, s *chartag.Config) { d.BatchSize = s.BatchSize },
	"fepoch":      func(d, s *chartag.Config) { d.Epochs = s.Epochs },
	"patience":    func(d, s *chartag.Config) { d.Patience = s.Patience },
	"shuf":        func(d, s *chartag.Config) { d.Shuffle = s.Shuffle },
	"curriculum":  func(d, s *chartag.Config) { d.Curriculum = s.Curriculum },
	"decoder":     func(d, s *chartag.Config) { d.Decoder = s.Decoder },
	"save":        func(d, s *chartag.Config) { d.Save = s.Save },
	"model-dir":   func(d, s *chartag.Config) { d.ModelDir = s.ModelDir },
	"seed":        func(d, s *chartag.Config) { d.Seed = s.Seed },
}

func addDataFlags(fs *pflag.FlagSet, cfg *chartag.Config) {
	fs.StringVar(&cfg.DataFolder, "data-folder", cfg.DataFolder, "Path to the corpus folder (<folder>/<lang>/{trn,dev,tst})")
	fs.StringVar(&cfg.Tagging, "tagging", cfg.Tagging, "Tag scheme: io or bio")
	fs.BoolVar(&cfg.Sorted, "sorted", cfg.Sorted, "Sort splits by length before batching")
	fs.StringVar(&cfg.Rep, "rep", cfg.Rep, "Character layout: std, nospace or spec")
	fs.BoolVar(&cfg.BreakTrain, "breaktrn", cfg.BreakTrain, "Break training sentences after sentence-final punctuation")
	fs.IntVar(&cfg.CapTrain, "captrn", cfg.CapTrain, "Keep training sentences with fewer words than this (0 keeps all)")
	fs.IntVar(&cfg.Sample, "sample", cfg.Sample, "Thousands of training sentences to sample (0 keeps all)")
	fs.BoolVar(&cfg.Shuffle, "shuf", cfg.Shuffle, "Shuffle training batches every epoch")
	fs.BoolVar(&cfg.Save, "save", cfg.Save, "Save a checkpoint whenever dev F1 improves")
	fs.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Checkpoint folder")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
}

func addModelFlags(fs *pflag.FlagSet, cfg *chartag.Config) {
	fs.StringVar(&cfg.Lang, "lang", cfg.Lang, "Corpus language")
	fs.BoolVar(&cfg.Reverse, "reverse", cfg.Reverse, "Add reversed training sentences")
	fs.StringVar(&cfg.Model, "rnn", cfg.Model, "Model: rnn or dummy")
	fs.StringVar(&cfg.Activation, "activation", cfg.Activation, "Hidden levels: bi-lstm, bi-gru, bi-relu, bi-tanh, bi-sigmoid, bi-linear")
	fs.IntSliceVar(&cfg.Hidden, "n-hidden", cfg.Hidden, "Units of each hidden level")
	fs.StringVar(&cfg.FBMerge, "fbmerge", cfg.FBMerge, "Merge of forward and backward outputs: concat or sum")
	fs.BoolVar(&cfg.RecOut, "recout", cfg.RecOut, "Use a recurrent output layer")
	fs.BoolVar(&cfg.BatchNorm, "batch-norm", cfg.BatchNorm, "Batch normalization after each level")
	fs.Float64SliceVar(&cfg.Dropout, "drates", cfg.Dropout, "Dropout rates: input, then one per level")
	fs.IntVar(&cfg.Embedding, "emb", cfg.Embedding, "Embedding size (0 disables)")
	fs.Float64Var(&cfg.GradClip, "gclip", cfg.GradClip, "Clip recurrent gradient messages above this value (0 disables)")
	fs.BoolVar(&cfg.InToOut, "in2out", cfg.InToOut, "Connect the input to the output layer")
	fs.Float64Var(&cfg.ForgetBias, "fbias", cfg.ForgetBias, "LSTM forget gate bias")
	fs.StringVar(&cfg.Optimizer, "opt", cfg.Optimizer, "Optimizer: sgd, adam, rmsprop, adagrad")
	fs.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Learning rate")
	fs.Float64Var(&cfg.Norm, "norm", cfg.Norm, "Global gradient norm threshold (0 disables)")
	fs.IntVar(&cfg.BatchSize, "n-batch", cfg.BatchSize, "Batch size")
	fs.IntVar(&cfg.Epochs, "fepoch", cfg.Epochs, "Number of epochs")
	fs.IntVar(&cfg.Patience, "patience", cfg.Patience, "Epochs without dev improvement before decaying the learning rate (<= 0 disables)")
	fs.IntVar(&cfg.Curriculum, "curriculum", cfg.Curriculum, "Curriculum parts (1 disables)")
	fs.StringVar(&cfg.Decoder, "decoder", cfg.Decoder, "Decoder: max or viterbi")
}

// resolveConfig returns the config file at path with every flag the user set
// applied on top. Without a file the flag values are used as they are.
func resolveConfig(fs *pflag.FlagSet, path string, flagged chartag.Config) (chartag.Config, error) {
	if path == "" {
		return flagged, nil
	}
	cfg, err := chartag.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := configFlags[f.Name]; ok {
			apply(&cfg, &flagged)
		}
	})
	return cfg, nil
}

func (c *CLI) newTrainCommand() *cobra.Command {
	cfg := chartag.DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a character tagger and report scores every epoch",
		Args:  cobra.NoArgs,
		Example: `  chartag train --lang eng --data-folder data
  chartag train --config run.yaml --lr 0.01 --save
  chartag train --lang tur --activation bi-gru --n-hidden 64,64 --drates 0.2,0.5,0.5 --decoder viterbi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := resolveConfig(cmd.Flags(), configPath, cfg)
			if err != nil {
				return err
			}
			slog.Info("Training tagger", "lang", run.Lang, "data-folder", run.DataFolder, "model", run.Model)
			start := time.Now()

			raw, err := chartag.LoadDataset(run.DataFolder, run.Lang)
			if err != nil {
				return err
			}
			x, err := chartag.NewExperiment(run, raw)
			if err != nil {
				return err
			}
			f1, err := x.Run()
			if err != nil {
				return err
			}
			slog.Info("Training completed", "best_dev_f1", f1, "duration", time.Since(start))
			if path := x.Checkpoint(); path != "" {
				slog.Info("Model saved", "path", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration; flags override its values")
	addDataFlags(cmd.Flags(), &cfg)
	addModelFlags(cmd.Flags(), &cfg)
	return cmd
}
