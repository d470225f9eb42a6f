package train

import (
	"math"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"github.com/happyhackingspace/chartag/batch"
	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/eval"
	"github.com/happyhackingspace/chartag/optim"
	"github.com/happyhackingspace/chartag/rnn"
)

// lengthModel labels every character with its sentence length.
type lengthModel struct {
	rate    *optim.Rate
	trained int
}

func newLengthModel() *lengthModel {
	return &lengthModel{rate: optim.NewRate(1)}
}

func (m *lengthModel) Train(b *batch.Batch) (rnn.Output, error) {
	m.trained += b.Size
	out := rnn.Output{Cost: 1, Labels: make([][]int, b.Size)}
	for i, n := range b.Lengths {
		out.Labels[i] = make([]int, n)
		for t := range n {
			out.Labels[i][t] = n
		}
	}
	return out, nil
}

func (m *lengthModel) Predict(b *batch.Batch) (rnn.Output, error) {
	out := rnn.Output{Cost: 2, LogProbs: make([][][]float64, b.Size)}
	for i, n := range b.Lengths {
		out.LogProbs[i] = make([][]float64, n)
		for t := range n {
			out.LogProbs[i][t] = []float64{-1, 0}
		}
	}
	return out, nil
}

func (m *lengthModel) LearningRate() *optim.Rate { return m.rate }
func (m *lengthModel) ParameterValues() [][]float64 { return [][]float64{{m.rate.Get()}} }

// groupBatcher builds shape-only batches.
type groupBatcher struct{ size int }

func (g groupBatcher) Batches(sents []corpus.Sentence) ([]*batch.Batch, error) {
	var out []*batch.Batch
	for i := 0; i < len(sents); i += g.size {
		group := sents[i:min(i+g.size, len(sents))]
		b := &batch.Batch{Size: len(group)}
		for _, s := range group {
			b.Lengths = append(b.Lengths, s.Len())
			b.MaxLen = max(b.MaxLen, s.Len())
		}
		out = append(out, b)
	}
	return out, nil
}

// scriptedScorer returns scripted F1 values per split, keyed by the first
// word of the split's first sentence.
type scriptedScorer struct {
	t      *testing.T
	f1     map[string][]float64
	calls  map[string]int
	checks map[string]func([]corpus.Sentence, [][]int)
}

func newScriptedScorer(t *testing.T, f1 map[string][]float64) *scriptedScorer {
	return &scriptedScorer{t: t, f1: f1, calls: map[string]int{}, checks: map[string]func([]corpus.Sentence, [][]int){}}
}

func (s *scriptedScorer) Evaluate(sents []corpus.Sentence, pred [][]int) (eval.Result, error) {
	name := sents[0].Words[0]
	if len(pred) != len(sents) {
		s.t.Errorf("%s: got %d predictions for %d sentences", name, len(pred), len(sents))
	}
	if check := s.checks[name]; check != nil {
		check(sents, pred)
	}
	script := s.f1[name]
	i := min(s.calls[name], len(script)-1)
	s.calls[name]++
	return eval.Result{F1: script[i]}, nil
}

type recordingCheckpointer struct{ epochs []int }

func (r *recordingCheckpointer) Save(epoch int, _ float64, _ [][]float64) error {
	r.epochs = append(r.epochs, epoch)
	return nil
}

type discardReporter struct{ reports []Report }

func (d *discardReporter) Report(r Report) { d.reports = append(d.reports, r) }

func splitOf(t *testing.T, name string, lengths ...int) *Split {
	t.Helper()
	sents := make([]corpus.Sentence, len(lengths))
	for i, n := range lengths {
		chars := []rune(strings.Repeat("a", n))
		sents[i] = corpus.Sentence{
			Words:     []string{name},
			Tags:      []string{"O"},
			Chars:     chars,
			WordIndex: make([]int, n),
			CharTags:  strings.Split(strings.Repeat("O", n), ""),
		}
	}
	s, err := NewSplit(name, sents, groupBatcher{size: 2})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPatienceDecay(t *testing.T) {
	scorer := newScriptedScorer(t, map[string][]float64{
		Trn: {1},
		Dev: {10, 5, 5, 5, 5, 5},
		Tst: {1},
	})
	m := newLengthModel()
	v, err := NewValidator(splitOf(t, Trn, 3, 4), splitOf(t, Dev, 2), splitOf(t, Tst, 2), Config{
		Epochs:   6,
		Patience: 2,
		Scorer:   scorer,
		Reporter: &discardReporter{},
	})
	if err != nil {
		t.Fatal(err)
	}
	f1, err := v.Validate(m)
	if err != nil {
		t.Fatal(err)
	}
	if f1 != 10 {
		t.Errorf("Validate() = %v, want 10", f1)
	}
	// impatience exceeds 2 once, at epoch 4
	if got := m.rate.Get(); math.Abs(got-0.95) > 1e-12 {
		t.Errorf("rate = %v, want 0.95", got)
	}
	if got := v.Best()[Dev]; got != (Score{Epoch: 1, F1: 10}) {
		t.Errorf("Best()[dev] = %+v, want {1 10}", got)
	}
}

func TestNoDecayWithoutPatience(t *testing.T) {
	scorer := newScriptedScorer(t, map[string][]float64{Trn: {1}, Dev: {10, 5}, Tst: {1}})
	m := newLengthModel()
	v, err := NewValidator(splitOf(t, Trn, 3), splitOf(t, Dev, 2), nil, Config{
		Epochs:   8,
		Patience: -1,
		Scorer:   scorer,
		Reporter: &discardReporter{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(m); err != nil {
		t.Fatal(err)
	}
	if got := m.rate.Get(); got != 1 {
		t.Errorf("rate = %v, want 1", got)
	}
}

func TestTestScoredOnlyOnDevBest(t *testing.T) {
	scorer := newScriptedScorer(t, map[string][]float64{
		Trn: {1},
		Dev: {10, 5, 20, 15},
		Tst: {7},
	})
	ckpt := &recordingCheckpointer{}
	rep := &discardReporter{}
	v, err := NewValidator(splitOf(t, Trn, 3), splitOf(t, Dev, 2), splitOf(t, Tst, 2), Config{
		Epochs:       4,
		Scorer:       scorer,
		Reporter:     rep,
		Checkpointer: ckpt,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(newLengthModel()); err != nil {
		t.Fatal(err)
	}
	if got := scorer.calls[Tst]; got != 2 {
		t.Errorf("test scored %d times, want 2", got)
	}
	if !reflect.DeepEqual(ckpt.epochs, []int{1, 3}) {
		t.Errorf("checkpoints at epochs %v, want [1 3]", ckpt.epochs)
	}
	var tstEpochs []int
	for _, r := range rep.reports {
		if r.Split == Tst {
			tstEpochs = append(tstEpochs, r.Epoch)
		}
	}
	if !reflect.DeepEqual(tstEpochs, []int{1, 3}) {
		t.Errorf("test reports at epochs %v, want [1 3]", tstEpochs)
	}
}

func TestShuffleRestoresOrder(t *testing.T) {
	scorer := newScriptedScorer(t, map[string][]float64{Trn: {1}, Dev: {1}})
	scorer.checks[Trn] = func(sents []corpus.Sentence, pred [][]int) {
		for i, s := range sents {
			if len(pred[i]) != s.Len() || pred[i][0] != s.Len() {
				t.Errorf("prediction %d = %v, want length-%d labels", i, pred[i], s.Len())
			}
		}
	}
	scorer.checks[Dev] = func(sents []corpus.Sentence, pred [][]int) {
		for i := range pred {
			for _, c := range pred[i] {
				if c != 1 {
					t.Errorf("dev prediction %d = %v, want all 1", i, pred[i])
				}
			}
		}
	}
	v, err := NewValidator(splitOf(t, Trn, 1, 2, 3, 4, 5, 6, 7, 8, 9), splitOf(t, Dev, 2, 3), nil, Config{
		Epochs:   5,
		Shuffle:  true,
		Rand:     rand.New(rand.NewPCG(1, 2)),
		Scorer:   scorer,
		Reporter: &discardReporter{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(newLengthModel()); err != nil {
		t.Fatal(err)
	}
}

func TestNewValidatorErrors(t *testing.T) {
	scorer := newScriptedScorer(t, nil)
	trn, dev := splitOf(t, Trn, 2), splitOf(t, Dev, 2)
	tests := []struct {
		name string
		trn  *Split
		dev  *Split
		cfg  Config
	}{
		{"no epochs", trn, dev, Config{Scorer: scorer}},
		{"no scorer", trn, dev, Config{Epochs: 1}},
		{"shuffle without rand", trn, dev, Config{Epochs: 1, Scorer: scorer, Shuffle: true}},
		{"no dev", trn, nil, Config{Epochs: 1, Scorer: scorer}},
		{"empty trn", &Split{Name: Trn}, dev, Config{Epochs: 1, Scorer: scorer}},
	}
	for _, tt := range tests {
		if _, err := NewValidator(tt.trn, tt.dev, nil, tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestPartition(t *testing.T) {
	got, err := Partition(100, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int{{0, 25}, {25, 50}, {50, 75}, {75, 100}, {0, 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Partition(100, 4) = %v, want %v", got, want)
	}

	got, _ = Partition(10, 3)
	want = [][2]int{{0, 3}, {3, 6}, {6, 10}, {0, 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Partition(10, 3) = %v, want %v", got, want)
	}

	for _, parts := range []int{0, -1, 11} {
		if _, err := Partition(10, parts); err == nil {
			t.Errorf("Partition(10, %d): expected error", parts)
		}
	}
}

func TestCurriculum(t *testing.T) {
	trn := splitOf(t, Trn, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	scorer := newScriptedScorer(t, map[string][]float64{Trn: {1}, Dev: {10, 20, 30, 5}})
	c, err := NewCurriculum(trn.Sentences, splitOf(t, Dev, 2), nil, groupBatcher{size: 2}, 3, Config{
		Epochs:   1,
		Scorer:   scorer,
		Reporter: &discardReporter{},
	})
	if err != nil {
		t.Fatal(err)
	}
	var sizes []int
	for _, p := range c.Parts() {
		sizes = append(sizes, len(p))
	}
	if !reflect.DeepEqual(sizes, []int{3, 3, 4, 10}) {
		t.Errorf("part sizes = %v, want [3 3 4 10]", sizes)
	}

	m := newLengthModel()
	f1, err := c.Validate(m)
	if err != nil {
		t.Fatal(err)
	}
	// every stage starts from fresh best scores
	if f1 != 5 {
		t.Errorf("Validate() = %v, want 5", f1)
	}
	if m.trained != 20 {
		t.Errorf("trained on %d sentences, want 20", m.trained)
	}

	if _, err := NewCurriculum(trn.Sentences, splitOf(t, Dev, 2), nil, groupBatcher{size: 2}, 11, Config{Epochs: 1, Scorer: scorer}); err == nil {
		t.Error("expected error for more parts than sentences")
	}
}

func TestCurriculumScoresTestOnDevBest(t *testing.T) {
	trn := splitOf(t, Trn, 1, 2, 3, 4)
	scorer := newScriptedScorer(t, map[string][]float64{
		Trn: {1},
		Dev: {10, 5, 10, 20, 30, 5},
		Tst: {7},
	})
	rep := &discardReporter{}
	c, err := NewCurriculum(trn.Sentences, splitOf(t, Dev, 2), splitOf(t, Tst, 2), groupBatcher{size: 2}, 2, Config{
		Epochs:   2,
		Scorer:   scorer,
		Reporter: rep,
	})
	if err != nil {
		t.Fatal(err)
	}
	f1, err := c.Validate(newLengthModel())
	if err != nil {
		t.Fatal(err)
	}
	if f1 != 30 {
		t.Errorf("Validate() = %v, want 30", f1)
	}
	// stage 1 epoch 1, stage 2 epochs 1 and 2, stage 3 epoch 1
	if got := scorer.calls[Tst]; got != 4 {
		t.Errorf("test scored %d times, want 4", got)
	}
}

func TestPermutation(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	xs := []string{"a", "b", "c", "d", "e"}
	p := NewPermutation(len(xs), rng)
	if got := Invert(p, Apply(p, xs)); !reflect.DeepEqual(got, xs) {
		t.Errorf("Invert(Apply(xs)) = %v, want %v", got, xs)
	}
}
