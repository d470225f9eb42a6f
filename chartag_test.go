package chartag

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/rnn"
)

const trnConll = `Ali B-PER
geldi O
. O

Ankara B-LOC
güzel O

Veli B-PER
Ankara B-LOC
'ya O
gitti O

Ayşe B-PER
Can I-PER
uyudu O
`

const devConll = `Veli B-PER
geldi O

Ankara B-LOC
uzak O
`

const tstConll = `Can B-PER
gitti O
`

func writeCorpus(t *testing.T) string {
	t.Helper()
	folder := t.TempDir()
	dir := filepath.Join(folder, "tur")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"trn": trnConll, "dev": devConll, "tst": tstConll} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return folder
}

func smallConfig(folder string) Config {
	cfg := DefaultConfig()
	cfg.DataFolder = folder
	cfg.Lang = "tur"
	cfg.Hidden = []int{4}
	cfg.BatchSize = 2
	cfg.Epochs = 2
	cfg.LearningRate = 0.01
	cfg.ModelDir = filepath.Join(folder, "models")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	rc, err := cfg.RNNConfig()
	if err != nil {
		t.Fatal(err)
	}
	if rc.Dropout != nil {
		t.Errorf("all-zero dropout should disable dropout, got %v", rc.Dropout)
	}
	if !rc.RecurrentOutput || rc.Layers[0].Cell != rnn.LSTM || rc.Hidden[0] != 128 {
		t.Errorf("RNNConfig() = %+v", rc)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yml := "lang: tur\nn_hidden: [8, 8]\nactivation: bi-gru\nopt: sgd\ndrates: [0.1, 0.2, 0.3]\ndecoder: viterbi\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Lang != "tur" || !reflect.DeepEqual(cfg.Hidden, []int{8, 8}) || cfg.Optimizer != "sgd" {
		t.Errorf("LoadConfig() = %+v", cfg)
	}
	if cfg.Epochs != 50 || cfg.BatchSize != 32 {
		t.Errorf("defaults lost: fepoch=%d n_batch=%d", cfg.Epochs, cfg.BatchSize)
	}
	rc, err := cfg.RNNConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(rc.Layers) != 2 || rc.Layers[1].Cell != rnn.GRU {
		t.Errorf("Layers = %v, want two GRU levels", rc.Layers)
	}
	if !reflect.DeepEqual(rc.Dropout, []float64{0.1, 0.2, 0.3}) {
		t.Errorf("Dropout = %v", rc.Dropout)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"tagging", func(c *Config) { c.Tagging = "bilou" }},
		{"model", func(c *Config) { c.Model = "transformer" }},
		{"batch", func(c *Config) { c.BatchSize = 0 }},
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"curriculum", func(c *Config) { c.Curriculum = 0 }},
		{"decoder", func(c *Config) { c.Decoder = "beam" }},
		{"activation", func(c *Config) { c.Activation = "lstm" }},
		{"optimizer", func(c *Config) { c.Optimizer = "lbfgs" }},
		{"dropout length", func(c *Config) { c.Dropout = []float64{0.5} }},
		{"merge", func(c *Config) { c.FBMerge = "avg" }},
		{"rep", func(c *Config) { c.Rep = "bytes" }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	cfg := DefaultConfig()
	cfg.Model = ModelDummy
	cfg.Activation = "anything"
	if err := cfg.Validate(); err != nil {
		t.Errorf("dummy model should skip network options: %v", err)
	}
}

func TestConfigName(t *testing.T) {
	cfg := DefaultConfig()
	a, err := cfg.Name()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := cfg.Name()
	if a != b {
		t.Errorf("Name() not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "activation:bi-lstm,breaktrn:false,captrn:0,") || !strings.Contains(a, ",lang:eng,") || !strings.Contains(a, ",rep:std,") {
		t.Errorf("Name() = %q", a)
	}
	cfg.Seed = 99
	if c, _ := cfg.Name(); c != a {
		t.Errorf("seed should not change the name: %q", c)
	}
	cfg.LearningRate = 0.1
	if c, _ := cfg.Name(); c == a {
		t.Error("learning rate should change the name")
	}
	b, _ = cfg.Name()
	cfg.BreakTrain = true
	if c, _ := cfg.Name(); c == b {
		t.Error("breaktrn should change the name")
	}
	b, _ = cfg.Name()
	cfg.Rep = "nospace"
	if c, _ := cfg.Name(); c == b {
		t.Error("rep should change the name")
	}
}

func raw(words ...string) corpus.Sentence {
	s := corpus.Sentence{}
	for _, w := range words {
		word, tag, _ := strings.Cut(w, "/")
		s.Words = append(s.Words, word)
		s.Tags = append(s.Tags, tag)
	}
	return s
}

func TestPrepare(t *testing.T) {
	ds := Dataset{
		Trn: []corpus.Sentence{
			raw("Ali/B-PER", "Veli/B-PER", "geldi/O"),
			raw("Ankara/B-LOC"),
		},
		Dev: []corpus.Sentence{raw("Can/B-PER", "gitti/O")},
	}

	cfg := DefaultConfig()
	got, err := Prepare(ds, cfg, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	// sorted by character length
	if got.Trn[0].Words[0] != "Ankara" {
		t.Errorf("Trn[0] = %v, want the shortest sentence first", got.Trn[0].Words)
	}
	if !reflect.DeepEqual(got.Trn[1].Tags, []string{"I-PER", "I-PER", "O"}) {
		t.Errorf("io tags = %v", got.Trn[1].Tags)
	}
	// a space inside a PER chunk takes the chunk's tag
	if got.Trn[1].CharTags[3] != "I-PER" || got.Trn[1].WordIndex[3] != -1 {
		t.Errorf("space between Ali and Veli: tag %q index %d", got.Trn[1].CharTags[3], got.Trn[1].WordIndex[3])
	}

	cfg.Tagging = TaggingBIO
	cfg.Reverse = true
	cfg.CapTrain = 3
	got, err = Prepare(ds, cfg, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	// captrn keeps sentences with fewer than 3 words; reverse doubles them
	if len(got.Trn) != 2 {
		t.Fatalf("len(Trn) = %d, want 2", len(got.Trn))
	}
	if string(got.Trn[1].Chars) != "araknA" && string(got.Trn[0].Chars) != "araknA" {
		t.Errorf("reversed copy missing: %q %q", string(got.Trn[0].Chars), string(got.Trn[1].Chars))
	}
	if got.Dev[0].CharTags[0] != "B-PER" || got.Dev[0].CharTags[1] != "I-PER" {
		t.Errorf("bio char tags = %v", got.Dev[0].CharTags)
	}

	cfg = DefaultConfig()
	cfg.CapTrain = 1
	if _, err := Prepare(ds, cfg, NewRand(1)); err == nil {
		t.Error("expected error when no training sentence is left")
	}
}

func TestPrepareSentencesErrors(t *testing.T) {
	if _, err := PrepareSentences([]corpus.Sentence{{}}, TaggingIO, "std"); err == nil {
		t.Error("expected error for sentence without words")
	}
	if _, err := PrepareSentences([]corpus.Sentence{raw("/O")}, TaggingIO, "std"); err == nil {
		t.Error("expected error for zero-length sentence")
	}
	if _, err := PrepareSentences([]corpus.Sentence{raw("a/O")}, TaggingIO, "bytes"); err == nil {
		t.Error("expected error for unknown representation")
	}
}

func TestPrepareBreakAndRep(t *testing.T) {
	ds := Dataset{
		Trn: []corpus.Sentence{raw("Ali/B-PER", "geldi/O", "./O", "Can/B-PER", "gitti/O", "!/O")},
		Dev: []corpus.Sentence{raw("Ali/B-PER", "Can/I-PER")},
	}

	cfg := DefaultConfig()
	cfg.Sorted = false
	cfg.BreakTrain = true
	got, err := Prepare(ds, cfg, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Trn) != 2 {
		t.Fatalf("len(Trn) = %d, want 2", len(got.Trn))
	}
	if string(got.Trn[0].Chars) != "Ali geldi ." || string(got.Trn[1].Chars) != "Can gitti !" {
		t.Errorf("broken sentences = %q, %q", string(got.Trn[0].Chars), string(got.Trn[1].Chars))
	}
	if len(got.Dev) != 1 {
		t.Errorf("len(Dev) = %d, want dev left whole", len(got.Dev))
	}

	cfg = DefaultConfig()
	cfg.Rep = "nospace"
	got, err = Prepare(ds, cfg, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Dev[0].Chars) != "AliCan" {
		t.Errorf("nospace chars = %q, want %q", string(got.Dev[0].Chars), "AliCan")
	}
	for i, wi := range got.Dev[0].WordIndex {
		if wi < 0 {
			t.Errorf("nospace word index %d = %d, want no separators", i, wi)
		}
	}

	cfg.Rep = "spec"
	got, err = Prepare(ds, cfg, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	// the separator stays outside the chunk
	if got.Dev[0].CharTags[3] != "O" || got.Dev[0].WordIndex[3] != -1 {
		t.Errorf("spec separator: tag %q index %d", got.Dev[0].CharTags[3], got.Dev[0].WordIndex[3])
	}
}

func TestSample(t *testing.T) {
	sents := make([]corpus.Sentence, 10)
	for i := range sents {
		sents[i] = raw(strings.Repeat("a", i+1) + "/O")
	}
	got := sample(sents, 4, NewRand(7))
	if len(got) != 4 {
		t.Fatalf("len(sample) = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if len(got[i].Words[0]) <= len(got[i-1].Words[0]) {
			t.Errorf("sample should keep corpus order: %v", got)
		}
	}
	if got := sample(sents, 20, NewRand(7)); len(got) != 10 {
		t.Errorf("oversized sample = %d sentences, want 10", len(got))
	}
}

func TestExperimentRun(t *testing.T) {
	folder := writeCorpus(t)
	rawData, err := LoadDataset(folder, "tur")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"rnn", func(c *Config) {}},
		{"viterbi gru", func(c *Config) { c.Activation = "bi-gru"; c.Decoder = "viterbi"; c.Patience = 1 }},
		{"dummy curriculum", func(c *Config) { c.Model = ModelDummy; c.Curriculum = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig(folder)
			tt.modify(&cfg)
			x, err := NewExperiment(cfg, rawData)
			if err != nil {
				t.Fatal(err)
			}
			if x.RunID == "" {
				t.Error("RunID is empty")
			}
			f1, err := x.Run()
			if err != nil {
				t.Fatal(err)
			}
			if f1 < 0 || f1 > 100 {
				t.Errorf("Run() = %v, want a percentage", f1)
			}
		})
	}
}

func TestCurriculumLargerThanTraining(t *testing.T) {
	folder := writeCorpus(t)
	rawData, err := LoadDataset(folder, "tur")
	if err != nil {
		t.Fatal(err)
	}
	cfg := smallConfig(folder)
	cfg.Curriculum = 50
	if _, err := NewExperiment(cfg, rawData); err == nil {
		t.Error("expected error for more curriculum parts than training sentences")
	}
}

func TestCheckpointEvaluateTransfer(t *testing.T) {
	folder := writeCorpus(t)
	rawData, err := LoadDataset(folder, "tur")
	if err != nil {
		t.Fatal(err)
	}
	cfg := smallConfig(folder)
	cfg.Save = true
	x, err := NewExperiment(cfg, rawData)
	if err != nil {
		t.Fatal(err)
	}
	if x.Checkpoint() != "" {
		t.Errorf("Checkpoint() = %q before any save", x.Checkpoint())
	}
	if err := x.writer.Save(1, 42, x.Model.ParameterValues()); err != nil {
		t.Fatal(err)
	}
	path := x.Checkpoint()
	if filepath.Dir(path) != cfg.ModelDir {
		t.Errorf("checkpoint path = %q, want it under %q", path, cfg.ModelDir)
	}

	r, err := Restore(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r.Tagger.ParameterValues(), x.Model.ParameterValues()) {
		t.Error("restored parameters differ from saved ones")
	}
	if r.Transitions == nil {
		t.Error("restored checkpoint has no transitions")
	}
	if !reflect.DeepEqual(r.Config, x.Config) {
		t.Errorf("restored config = %+v, want %+v", r.Config, x.Config)
	}

	res, err := Evaluate(path, &EvalConfig{Decoder: "viterbi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Epoch != 1 || res.F1 != 42 {
		t.Errorf("Evaluate() epoch=%d f1=%v, want 1 and 42", res.Epoch, res.F1)
	}
	if len(res.Splits) != 2 || res.Splits[0].Split != "dev" || res.Splits[1].Split != "tst" {
		t.Errorf("Evaluate() splits = %+v", res.Splits)
	}

	xcfg := smallConfig(folder)
	xcfg.Save = false
	xfer, copied, err := Transfer(path, xcfg)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(x.Model.ParameterValues()); copied != want {
		t.Errorf("Transfer() copied %d parameters, want %d", copied, want)
	}
	if !reflect.DeepEqual(xfer.Model.ParameterValues(), x.Model.ParameterValues()) {
		t.Error("transferred parameters differ from saved ones")
	}

	// a corpus with new characters keeps the trained input rows
	dir := filepath.Join(folder, "fin")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"trn": "Zeynep B-PER\nöğle O\n\nİzmir B-LOC\nçok O\n",
		"dev": "Kemal B-PER\nwq O\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	xcfg.Lang = "fin"
	xfer, copied, err = Transfer(path, xcfg)
	if err != nil {
		t.Fatal(err)
	}
	saved := x.Model.ParameterValues()
	if copied != len(saved) {
		t.Errorf("Transfer() copied %d parameters, want %d", copied, len(saved))
	}
	if xfer.Encoder.NumFeatures() <= x.Encoder.NumFeatures() {
		t.Errorf("NumFeatures = %d, want more than %d", xfer.Encoder.NumFeatures(), x.Encoder.NumFeatures())
	}
	got := xfer.Model.ParameterValues()
	if len(got[0]) <= len(saved[0]) || !reflect.DeepEqual(got[0][:len(saved[0])], saved[0]) {
		t.Error("input weights lost their trained rows")
	}
}

func TestLoadDatasetMissing(t *testing.T) {
	if _, err := LoadDataset(t.TempDir(), "tur"); err == nil {
		t.Error("expected error for empty data folder")
	}
}
