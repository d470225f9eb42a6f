package corpus

import (
	"encoding/json"
	"reflect"
	"testing"
)

func sentence() Sentence {
	return Sentence{
		Words:     []string{"Ali", "gel"},
		Tags:      []string{"I-PER", "O"},
		Chars:     []rune("Ali gel"),
		WordIndex: []int{0, 0, 0, -1, 1, 1, 1},
		CharTags:  []string{"I-PER", "I-PER", "I-PER", "O", "O", "O", "O"},
	}
}

func TestAlphabet(t *testing.T) {
	a := NewAlphabet()
	id0 := a.Add("hello")
	id1 := a.Add("world")
	id2 := a.Add("hello")

	if id0 != 0 || id1 != 1 || id2 != 0 {
		t.Errorf("IDs: %d, %d, %d; want 0, 1, 0", id0, id1, id2)
	}
	if a.Size() != 2 {
		t.Errorf("Size = %d, want 2", a.Size())
	}
	if a.Get("missing") != -1 {
		t.Error("Get missing should return -1")
	}
	if a.Str(5) != "" {
		t.Error("Str out of range should return empty string")
	}
	if _, err := a.Encode([]string{"hello", "missing"}); err == nil {
		t.Error("Encode with unknown label should fail")
	}
}

func TestSortedAlphabet(t *testing.T) {
	a := SortedAlphabet([]string{"O", "I-PER", "B-LOC", "O", "I-PER"})
	want := []string{"B-LOC", "I-PER", "O"}
	if !reflect.DeepEqual(a.ToStr, want) {
		t.Errorf("ToStr = %v, want %v", a.ToStr, want)
	}
	ids, err := a.Encode([]string{"O", "B-LOC"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{2, 0}) {
		t.Errorf("Encode = %v, want [2 0]", ids)
	}
	if got := a.Decode(ids); !reflect.DeepEqual(got, []string{"O", "B-LOC"}) {
		t.Errorf("Decode = %v", got)
	}
}

func TestSentenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Sentence)
		wantErr bool
	}{
		{"valid", func(s *Sentence) {}, false},
		{"empty", func(s *Sentence) { *s = Sentence{} }, true},
		{"short tags", func(s *Sentence) { s.CharTags = s.CharTags[:3] }, true},
		{"short word index", func(s *Sentence) { s.WordIndex = s.WordIndex[:2] }, true},
		{"word index range", func(s *Sentence) { s.WordIndex[0] = 5 }, true},
		{"word tags", func(s *Sentence) { s.Tags = s.Tags[:1] }, true},
	}
	for _, tt := range tests {
		s := sentence()
		tt.mutate(&s)
		err := s.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestSentenceReversed(t *testing.T) {
	r := sentence().Reversed()
	if string(r.Chars) != "leg ilA" {
		t.Errorf("Chars = %q, want %q", string(r.Chars), "leg ilA")
	}
	wantIdx := []int{0, 0, 0, -1, 1, 1, 1}
	if !reflect.DeepEqual(r.WordIndex, wantIdx) {
		t.Errorf("WordIndex = %v, want %v", r.WordIndex, wantIdx)
	}
	if !reflect.DeepEqual(r.Words, []string{"gel", "Ali"}) {
		t.Errorf("Words = %v", r.Words)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if string(sentence().Chars) != "Ali gel" {
		t.Error("Reversed must not modify the receiver")
	}
}

func TestSentenceBreak(t *testing.T) {
	tests := []struct {
		words []string
		want  [][]string
	}{
		{[]string{"Ali", "geldi", ".", "Can", "gitti", "!"}, [][]string{{"Ali", "geldi", "."}, {"Can", "gitti", "!"}}},
		{[]string{"Ali", "geldi", ".", "Can"}, [][]string{{"Ali", "geldi", "."}, {"Can"}}},
		{[]string{"Ali", "geldi"}, [][]string{{"Ali", "geldi"}}},
		{[]string{"?", "?"}, [][]string{{"?"}, {"?"}}},
		{nil, nil},
	}
	for _, tt := range tests {
		s := Sentence{Words: tt.words, Tags: make([]string, len(tt.words))}
		for i := range s.Tags {
			s.Tags[i] = "O"
		}
		var got [][]string
		for _, sub := range s.Break() {
			if len(sub.Tags) != len(sub.Words) {
				t.Errorf("Break(%v): %d words, %d tags", tt.words, len(sub.Words), len(sub.Tags))
			}
			got = append(got, sub.Words)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Break(%v) = %v, want %v", tt.words, got, tt.want)
		}
	}
}

func TestEncoder(t *testing.T) {
	e := NewEncoder()
	e.Fit([]Sentence{sentence()})

	if e.NumClasses() != 2 {
		t.Errorf("NumClasses = %d, want 2", e.NumClasses())
	}
	// 6 distinct characters plus 5 flag features.
	if e.NumFeatures() != 11 {
		t.Errorf("NumFeatures = %d, want 11", e.NumFeatures())
	}

	feats, targets, err := e.Transform(sentence())
	if err != nil {
		t.Fatal(err)
	}
	if len(feats) != 7 || len(targets) != 7 {
		t.Fatalf("got %d feature rows and %d target rows, want 7", len(feats), len(targets))
	}
	for i, row := range feats {
		if len(row) != e.NumFeatures() {
			t.Errorf("row %d width = %d, want %d", i, len(row), e.NumFeatures())
		}
	}
	per := e.Labels().Get("I-PER")
	if targets[0][per] != 1 || targets[4][per] != 0 {
		t.Errorf("targets = %v", targets)
	}

	if _, _, err := e.Transform(Sentence{}); err == nil {
		t.Error("Transform of empty sentence should fail")
	}
}

func TestEncoderExtend(t *testing.T) {
	e := NewEncoder()
	e.Fit([]Sentence{sentence()})
	before, _, err := e.Transform(sentence())
	if err != nil {
		t.Fatal(err)
	}

	other := Sentence{
		Words:     []string{"Can", "gel"},
		Tags:      []string{"I-LOC", "O"},
		Chars:     []rune("Can gel"),
		WordIndex: []int{0, 0, 0, -1, 1, 1, 1},
		CharTags:  []string{"I-LOC", "I-LOC", "I-LOC", "O", "O", "O", "O"},
	}
	e.Extend([]Sentence{other})
	// C, a and n are new.
	if e.NumFeatures() != 14 {
		t.Errorf("NumFeatures = %d, want 14", e.NumFeatures())
	}
	after, _, err := e.Transform(sentence())
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if !reflect.DeepEqual(after[i][:len(before[i])], before[i]) {
			t.Errorf("row %d: existing columns moved: %v, then %v", i, before[i], after[i])
		}
	}
	if e.Labels().Get("I-LOC") < 0 || e.NumClasses() != 2 {
		t.Errorf("labels = %v, want the tags of the new split", e.Labels().ToStr)
	}
}

func TestEncoderJSON(t *testing.T) {
	e := NewEncoder()
	e.Fit([]Sentence{sentence()})

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var got Encoder
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.NumFeatures() != e.NumFeatures() || got.NumClasses() != e.NumClasses() {
		t.Errorf("round trip changed sizes: %d/%d vs %d/%d",
			got.NumFeatures(), got.NumClasses(), e.NumFeatures(), e.NumClasses())
	}
	a, _, _ := e.Transform(sentence())
	b, _, _ := got.Transform(sentence())
	if !reflect.DeepEqual(a, b) {
		t.Error("round trip changed features")
	}
}
