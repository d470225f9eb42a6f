// Package decode turns per-character log-probabilities into tag sequences.
package decode

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Transitions records which class may follow which, as observed in training data.
type Transitions struct {
	allowed [][]bool
}

// NewTransitions builds the adjacency of consecutive classes in seqs.
// It fails when a class is out of range or when no transition is observed at all.
func NewTransitions(seqs [][]int, numClasses int) (*Transitions, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("need at least one class, got %d", numClasses)
	}
	allowed := make([][]bool, numClasses)
	for i := range allowed {
		allowed[i] = make([]bool, numClasses)
	}
	observed := 0
	for si, seq := range seqs {
		for t, c := range seq {
			if c < 0 || c >= numClasses {
				return nil, fmt.Errorf("sequence %d position %d: class %d out of range", si, t, c)
			}
			if t == 0 {
				continue
			}
			if !allowed[seq[t-1]][c] {
				allowed[seq[t-1]][c] = true
				observed++
			}
		}
	}
	if observed == 0 {
		return nil, fmt.Errorf("no tag transitions observed")
	}
	return &Transitions{allowed: allowed}, nil
}

// TransitionsFromMatrix restores transitions saved with Matrix.
func TransitionsFromMatrix(m [][]bool) (*Transitions, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("empty transition matrix")
	}
	allowed := make([][]bool, len(m))
	for i, row := range m {
		if len(row) != len(m) {
			return nil, fmt.Errorf("transition matrix row %d has %d entries, want %d", i, len(row), len(m))
		}
		allowed[i] = append([]bool(nil), row...)
	}
	return &Transitions{allowed: allowed}, nil
}

// Matrix returns a copy of the adjacency matrix.
func (tr *Transitions) Matrix() [][]bool {
	out := make([][]bool, len(tr.allowed))
	for i, row := range tr.allowed {
		out[i] = append([]bool(nil), row...)
	}
	return out
}

// NumClasses returns the matrix dimension.
func (tr *Transitions) NumClasses() int {
	return len(tr.allowed)
}

// Allowed reports whether class j may follow class i.
func (tr *Transitions) Allowed(i, j int) bool {
	return tr.allowed[i][j]
}

// LogScores returns the transition matrix in log space: 0 where allowed, -Inf elsewhere.
func (tr *Transitions) LogScores() [][]float64 {
	n := len(tr.allowed)
	scores := make([][]float64, n)
	for i := range n {
		scores[i] = make([]float64, n)
		for j := range n {
			if !tr.allowed[i][j] {
				scores[i][j] = math.Inf(-1)
			}
		}
	}
	return scores
}

// Decoder picks one class per position.
type Decoder interface {
	Decode(logProbs [][]float64, tr *Transitions) []int
}

// Mode selects a decoder.
type Mode int

const (
	Max Mode = iota
	Viterbi
)

// ParseMode parses "max" or "viterbi".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "max", "predict", "argmax":
		return Max, nil
	case "viterbi":
		return Viterbi, nil
	}
	return 0, fmt.Errorf("unknown decoder %q", s)
}

func (m Mode) String() string {
	if m == Viterbi {
		return "viterbi"
	}
	return "max"
}

// New returns the decoder for a mode.
func New(m Mode) Decoder {
	if m == Viterbi {
		return ViterbiDecoder{}
	}
	return MaxDecoder{}
}

// MaxDecoder takes the most probable class at every position independently.
type MaxDecoder struct{}

// Decode ignores tr.
func (MaxDecoder) Decode(logProbs [][]float64, _ *Transitions) []int {
	path := make([]int, len(logProbs))
	for t, row := range logProbs {
		path[t] = argmax(row)
	}
	return path
}

// ViterbiDecoder finds the best path that uses only allowed transitions.
// A sentence with no allowed path falls back to MaxDecoder.
type ViterbiDecoder struct{}

// Decode runs Viterbi in log space. Ties go to the lowest class index.
func (ViterbiDecoder) Decode(logProbs [][]float64, tr *Transitions) []int {
	if tr == nil {
		return MaxDecoder{}.Decode(logProbs, nil)
	}
	path, score := viterbi(logProbs, tr.LogScores())
	if len(logProbs) > 0 && math.IsInf(score, -1) {
		slog.Debug("No allowed tag path, falling back to argmax", "length", len(logProbs))
		return MaxDecoder{}.Decode(logProbs, nil)
	}
	return path
}

func viterbi(stateScores, transScores [][]float64) ([]int, float64) {
	T := len(stateScores)
	if T == 0 {
		return nil, math.Inf(-1)
	}
	L := len(stateScores[0])

	// delta[t][y] = best score ending at time t with label y
	delta := make([][]float64, T)
	// psi[t][y] = best previous label for backtracking
	psi := make([][]int, T)

	delta[0] = make([]float64, L)
	psi[0] = make([]int, L)
	copy(delta[0], stateScores[0])

	for t := 1; t < T; t++ {
		delta[t] = make([]float64, L)
		psi[t] = make([]int, L)
		for y := range L {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := range L {
				score := delta[t-1][yp] + transScores[yp][y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			delta[t][y] = bestScore + stateScores[t][y]
			psi[t][y] = bestPrev
		}
	}

	bestScore := math.Inf(-1)
	bestLabel := 0
	for y := range L {
		if delta[T-1][y] > bestScore {
			bestScore = delta[T-1][y]
			bestLabel = y
		}
	}

	path := make([]int, T)
	path[T-1] = bestLabel
	for t := T - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}
	return path, bestScore
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}
