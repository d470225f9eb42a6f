package corpus

import (
	"encoding/json"
	"fmt"
	"unicode"

	"github.com/happyhackingspace/chartag/internal/vectorizer"
)

// Encoder turns a sentence into per-character feature rows and one-hot targets.
type Encoder struct {
	vec        *vectorizer.DictVectorizer
	labels     *Alphabet
	wordLabels *Alphabet
}

// NewEncoder creates an unfitted encoder.
func NewEncoder() *Encoder {
	return &Encoder{
		vec:        vectorizer.NewDictVectorizer(),
		labels:     NewAlphabet(),
		wordLabels: NewAlphabet(),
	}
}

// CharFeatures returns the feature dict of a single character.
func CharFeatures(r rune) map[string]any {
	return map[string]any{
		"char":    string(r),
		"isupper": unicode.IsUpper(r),
		"islower": unicode.IsLower(r),
		"isdigit": unicode.IsDigit(r),
		"ispunct": unicode.IsPunct(r),
		"isspace": unicode.IsSpace(r),
	}
}

// Fit learns the character set and both tag alphabets from every given split.
func (e *Encoder) Fit(splits ...[]Sentence) {
	feats := e.collect(splits)
	e.vec.Fit(feats)
}

// Extend keeps the fitted feature columns, appends the features of unseen
// characters after them and refits both tag alphabets on splits.
func (e *Encoder) Extend(splits ...[]Sentence) {
	feats := e.collect(splits)
	e.vec.Extend(feats)
}

// collect fits the tag alphabets and returns the feature dicts of every
// distinct character.
func (e *Encoder) collect(splits [][]Sentence) []map[string]any {
	seen := make(map[rune]bool)
	var feats []map[string]any
	var charTags, wordTags []string
	for _, split := range splits {
		for _, s := range split {
			for _, r := range s.Chars {
				if !seen[r] {
					seen[r] = true
					feats = append(feats, CharFeatures(r))
				}
			}
			charTags = append(charTags, s.CharTags...)
			wordTags = append(wordTags, s.Tags...)
		}
	}
	e.labels = SortedAlphabet(charTags)
	e.wordLabels = SortedAlphabet(wordTags)
	return feats
}

// NumFeatures returns the width of a feature row.
func (e *Encoder) NumFeatures() int {
	return e.vec.VocabSize()
}

// NumClasses returns the number of character tag classes.
func (e *Encoder) NumClasses() int {
	return e.labels.Size()
}

// Labels returns the character tag alphabet.
func (e *Encoder) Labels() *Alphabet {
	return e.labels
}

// WordLabels returns the word tag alphabet.
func (e *Encoder) WordLabels() *Alphabet {
	return e.wordLabels
}

// Transform returns the feature rows and one-hot target rows of a sentence.
func (e *Encoder) Transform(s Sentence) (features, targets [][]float64, err error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	ids, err := e.labels.Encode(s.CharTags)
	if err != nil {
		return nil, nil, err
	}

	dicts := make([]map[string]any, len(s.Chars))
	for i, r := range s.Chars {
		dicts[i] = CharFeatures(r)
	}
	features = e.vec.TransformDense(dicts)

	nc := e.labels.Size()
	targets = make([][]float64, len(ids))
	for i, id := range ids {
		targets[i] = make([]float64, nc)
		targets[i][id] = 1
	}
	return features, targets, nil
}

// ClassSequences encodes the character tags of every sentence.
func (e *Encoder) ClassSequences(sents []Sentence) ([][]int, error) {
	seqs := make([][]int, len(sents))
	for i, s := range sents {
		ids, err := e.labels.Encode(s.CharTags)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		seqs[i] = ids
	}
	return seqs, nil
}

type encoderJSON struct {
	Vectorizer *vectorizer.DictVectorizer `json:"vectorizer"`
	Labels     *Alphabet                  `json:"labels"`
	WordLabels *Alphabet                  `json:"word_labels"`
}

// MarshalJSON implements json.Marshaler.
func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{
		Vectorizer: e.vec,
		Labels:     e.labels,
		WordLabels: e.wordLabels,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Encoder) UnmarshalJSON(data []byte) error {
	var ej encoderJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	if ej.Vectorizer == nil || ej.Labels == nil || ej.WordLabels == nil {
		return fmt.Errorf("incomplete encoder")
	}
	e.vec, e.labels, e.wordLabels = ej.Vectorizer, ej.Labels, ej.WordLabels
	return nil
}
