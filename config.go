package chartag

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/chartag/checkpoint"
	"github.com/happyhackingspace/chartag/decode"
	"github.com/happyhackingspace/chartag/internal/textutil"
	"github.com/happyhackingspace/chartag/optim"
	"github.com/happyhackingspace/chartag/rnn"
)

// Model kinds.
const (
	ModelRNN   = "rnn"
	ModelDummy = "dummy"
)

// Tagging schemes.
const (
	TaggingIO  = "io"
	TaggingBIO = "bio"
)

// Config is the full run configuration. Field names follow the command-line flags.
type Config struct {
	// Data
	DataFolder string `json:"data_folder" yaml:"data_folder"`
	Lang       string `json:"lang" yaml:"lang"`
	Tagging    string `json:"tagging" yaml:"tagging"`
	Sorted     bool   `json:"sorted" yaml:"sorted"`
	CapTrain   int    `json:"captrn" yaml:"captrn"`
	Sample     int    `json:"sample" yaml:"sample"`
	Reverse    bool   `json:"reverse" yaml:"reverse"`
	BreakTrain bool   `json:"breaktrn" yaml:"breaktrn"`
	Rep        string `json:"rep" yaml:"rep"`

	// Network
	Model      string    `json:"rnn" yaml:"rnn"`
	Activation string    `json:"activation" yaml:"activation"`
	Hidden     []int     `json:"n_hidden" yaml:"n_hidden"`
	FBMerge    string    `json:"fbmerge" yaml:"fbmerge"`
	RecOut     bool      `json:"recout" yaml:"recout"`
	BatchNorm  bool      `json:"batch_norm" yaml:"batch_norm"`
	Dropout    []float64 `json:"drates" yaml:"drates"`
	Embedding  int       `json:"emb" yaml:"emb"`
	GradClip   float64   `json:"gclip" yaml:"gclip"`
	InToOut    bool      `json:"in2out" yaml:"in2out"`
	ForgetBias float64   `json:"fbias" yaml:"fbias"`

	// Optimizer
	Optimizer    string  `json:"opt" yaml:"opt"`
	LearningRate float64 `json:"lr" yaml:"lr"`
	Norm         float64 `json:"norm" yaml:"norm"`

	// Training
	BatchSize  int    `json:"n_batch" yaml:"n_batch"`
	Epochs     int    `json:"fepoch" yaml:"fepoch"`
	Patience   int    `json:"patience" yaml:"patience"`
	Shuffle    bool   `json:"shuf" yaml:"shuf"`
	Curriculum int    `json:"curriculum" yaml:"curriculum"`
	Decoder    string `json:"decoder" yaml:"decoder"`

	// Persistence
	Save     bool   `json:"save" yaml:"save"`
	ModelDir string `json:"model_dir" yaml:"model_dir"`
	Seed     uint64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the defaults of the command line.
func DefaultConfig() Config {
	return Config{
		DataFolder:   "data",
		Lang:         "eng",
		Tagging:      TaggingIO,
		Rep:          string(textutil.RepStd),
		Sorted:       true,
		Model:        ModelRNN,
		Activation:   "bi-lstm",
		Hidden:       []int{128},
		FBMerge:      "concat",
		RecOut:       true,
		Dropout:      []float64{0, 0},
		Optimizer:    "adam",
		LearningRate: 0.001,
		Norm:         5,
		BatchSize:    32,
		Epochs:       50,
		Patience:     -1,
		Shuffle:      true,
		Curriculum:   1,
		Decoder:      decode.Max.String(),
		ModelDir:     "models",
		Seed:         1234567,
	}
}

// LoadConfig reads a YAML run configuration. Keys missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("chartag: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("chartag: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every option that does not depend on the data.
func (c Config) Validate() error {
	if c.Lang == "" {
		return fmt.Errorf("no language given")
	}
	if c.Tagging != TaggingIO && c.Tagging != TaggingBIO {
		return fmt.Errorf("unknown tagging scheme %q", c.Tagging)
	}
	if _, err := textutil.ParseRep(c.Rep); err != nil {
		return err
	}
	if c.Model != ModelRNN && c.Model != ModelDummy {
		return fmt.Errorf("unknown model %q", c.Model)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.Curriculum < 1 {
		return fmt.Errorf("curriculum needs at least one part, got %d", c.Curriculum)
	}
	if c.Sample < 0 || c.CapTrain < 0 {
		return fmt.Errorf("sample and captrn must not be negative")
	}
	if _, err := decode.ParseMode(c.Decoder); err != nil {
		return err
	}
	if c.Model == ModelRNN {
		if _, err := c.RNNConfig(); err != nil {
			return err
		}
	}
	return nil
}

// RNNConfig translates the network and optimizer options. A single
// activation applies to every level; all-zero dropout rates disable dropout.
func (c Config) RNNConfig() (rnn.Config, error) {
	act, err := rnn.ParseActivation(c.Activation)
	if err != nil {
		return rnn.Config{}, err
	}
	merge, err := rnn.ParseMerge(c.FBMerge)
	if err != nil {
		return rnn.Config{}, err
	}
	method, err := optim.ParseMethod(c.Optimizer)
	if err != nil {
		return rnn.Config{}, err
	}

	layers := make([]rnn.Activation, len(c.Hidden))
	for i := range layers {
		layers[i] = act
	}
	var dropout []float64
	for _, p := range c.Dropout {
		if p != 0 {
			dropout = c.Dropout
			break
		}
	}

	cfg := rnn.Config{
		Layers:          layers,
		Hidden:          c.Hidden,
		Merge:           merge,
		Dropout:         dropout,
		BatchNorm:       c.BatchNorm,
		Embedding:       c.Embedding,
		InputToOutput:   c.InToOut,
		RecurrentOutput: c.RecOut,
		GradClip:        c.GradClip,
		ForgetBias:      c.ForgetBias,
		Optimizer:       method,
		LearningRate:    c.LearningRate,
		NormThreshold:   c.Norm,
	}
	return cfg, cfg.Validate()
}

// DecodeMode returns the configured decoder.
func (c Config) DecodeMode() decode.Mode {
	m, _ := decode.ParseMode(c.Decoder)
	return m
}

// Name returns the checkpoint name of the run, built from the options that
// identify a trained model.
func (c Config) Name() (string, error) {
	return checkpoint.Name(map[string]any{
		"activation": c.Activation,
		"n_hidden":   c.Hidden,
		"fbmerge":    c.FBMerge,
		"drates":     c.Dropout,
		"recout":     c.RecOut,
		"decoder":    c.Decoder,
		"opt":        c.Optimizer,
		"lr":         c.LearningRate,
		"norm":       c.Norm,
		"gclip":      c.GradClip,
		"n_batch":    c.BatchSize,
		"shuf":       c.Shuffle,
		"breaktrn":   c.BreakTrain,
		"captrn":     c.CapTrain,
		"emb":        c.Embedding,
		"lang":       c.Lang,
		"reverse":    c.Reverse,
		"rep":        c.Rep,
		"tagging":    c.Tagging,
		"fbias":      c.ForgetBias,
	})
}
