package rnn

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/happyhackingspace/chartag/optim"
)

// CellType is the recurrent cell used by a depth level.
type CellType int

const (
	Vanilla CellType = iota
	LSTM
	GRU
)

func (c CellType) String() string {
	switch c {
	case Vanilla:
		return "vanilla"
	case LSTM:
		return "lstm"
	case GRU:
		return "gru"
	}
	return "unknown"
}

// Nonlinearity is the activation of a vanilla recurrent cell.
type Nonlinearity int

const (
	Tanh Nonlinearity = iota
	ReLU
	Sigmoid
	Linear
	LogSoftmax
)

func (n Nonlinearity) String() string {
	switch n {
	case Tanh:
		return "tanh"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	case Linear:
		return "linear"
	case LogSoftmax:
		return "logsoftmax"
	}
	return "unknown"
}

// Merge combines the forward and backward outputs of a level.
type Merge int

const (
	Concat Merge = iota
	Sum
)

// ParseMerge parses "concat" or "sum".
func ParseMerge(s string) (Merge, error) {
	switch strings.ToLower(s) {
	case "concat":
		return Concat, nil
	case "sum":
		return Sum, nil
	}
	return 0, errors.Errorf("unknown merge %q", s)
}

func (m Merge) String() string {
	if m == Sum {
		return "sum"
	}
	return "concat"
}

// Activation describes one bidirectional level.
type Activation struct {
	Cell         CellType
	Nonlinearity Nonlinearity
}

// ParseActivation parses level names such as "bi-lstm", "bi-gru", "bi-relu" or "bi-tanh".
// Gated cells always use tanh.
func ParseActivation(s string) (Activation, error) {
	name, ok := strings.CutPrefix(strings.ToLower(s), "bi-")
	if !ok {
		return Activation{}, errors.Errorf("activation %q: only bidirectional levels are supported", s)
	}
	switch name {
	case "lstm":
		return Activation{Cell: LSTM, Nonlinearity: Tanh}, nil
	case "gru":
		return Activation{Cell: GRU, Nonlinearity: Tanh}, nil
	case "tanh":
		return Activation{Cell: Vanilla, Nonlinearity: Tanh}, nil
	case "relu", "rectify":
		return Activation{Cell: Vanilla, Nonlinearity: ReLU}, nil
	case "sigmoid":
		return Activation{Cell: Vanilla, Nonlinearity: Sigmoid}, nil
	case "linear":
		return Activation{Cell: Vanilla, Nonlinearity: Linear}, nil
	}
	return Activation{}, errors.Errorf("unknown activation %q", s)
}

func (a Activation) String() string {
	if a.Cell == Vanilla {
		return "bi-" + a.Nonlinearity.String()
	}
	return "bi-" + a.Cell.String()
}

// Config describes the network and its optimizer.
type Config struct {
	Layers          []Activation
	Hidden          []int
	Merge           Merge
	Dropout         []float64 // one rate for the input plus one per level; empty disables
	BatchNorm       bool
	Embedding       int // 0 disables
	InputToOutput   bool
	RecurrentOutput bool
	GradClip        float64 // per-step clipping in recurrent layers; <= 0 disables
	ForgetBias      float64

	Optimizer     optim.Method
	LearningRate  float64
	NormThreshold float64 // global gradient norm bound; <= 0 disables
}

// DefaultConfig returns a single bi-LSTM level of 128 units with a recurrent output.
func DefaultConfig() Config {
	return Config{
		Layers:          []Activation{{Cell: LSTM, Nonlinearity: Tanh}},
		Hidden:          []int{128},
		Merge:           Concat,
		RecurrentOutput: true,
		Optimizer:       optim.Adam,
		LearningRate:    0.001,
		NormThreshold:   5,
	}
}

// Validate checks the config once, before any parameter is allocated.
func (c Config) Validate() error {
	if len(c.Hidden) == 0 {
		return errors.New("at least one hidden level is required")
	}
	if len(c.Layers) != len(c.Hidden) {
		return errors.Errorf("%d activations for %d hidden levels", len(c.Layers), len(c.Hidden))
	}
	for i, h := range c.Hidden {
		if h < 1 {
			return errors.Errorf("level %d: hidden size must be positive, got %d", i, h)
		}
	}
	for i, a := range c.Layers {
		if a.Cell < Vanilla || a.Cell > GRU {
			return errors.Errorf("level %d: unknown cell type %d", i, int(a.Cell))
		}
		if a.Nonlinearity < Tanh || a.Nonlinearity > Linear {
			return errors.Errorf("level %d: unsupported nonlinearity %v", i, a.Nonlinearity)
		}
	}
	if c.Merge != Concat && c.Merge != Sum {
		return errors.Errorf("unknown merge %d", int(c.Merge))
	}
	if len(c.Dropout) != 0 && len(c.Dropout) != len(c.Hidden)+1 {
		return errors.Errorf("%d dropout rates for %d levels, want %d", len(c.Dropout), len(c.Hidden), len(c.Hidden)+1)
	}
	for i, p := range c.Dropout {
		if p < 0 || p >= 1 {
			return errors.Errorf("dropout rate %d out of range [0, 1): %v", i, p)
		}
	}
	if c.Embedding < 0 {
		return errors.Errorf("negative embedding size %d", c.Embedding)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	if _, err := c.Optimizer.MarshalText(); err != nil {
		return err
	}
	return nil
}

func (c Config) dropout(i int) float64 {
	if i < len(c.Dropout) {
		return c.Dropout[i]
	}
	return 0
}
