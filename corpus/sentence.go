// Package corpus holds the sentence model and the character feature encoder.
package corpus

import (
	"fmt"
	"slices"
)

// Sentence is a labeled sentence in both word and character representation.
//
// Chars, WordIndex and CharTags are parallel: WordIndex maps each character
// to the index of its word in Words, or -1 for characters outside any word.
type Sentence struct {
	Words     []string `json:"words"`
	Tags      []string `json:"tags"`
	Chars     []rune   `json:"chars"`
	WordIndex []int    `json:"word_index"`
	CharTags  []string `json:"char_tags"`
}

// Len returns the number of characters.
func (s Sentence) Len() int {
	return len(s.Chars)
}

// Validate checks the parallel-sequence invariants.
func (s Sentence) Validate() error {
	if len(s.Chars) == 0 {
		return fmt.Errorf("empty character sequence")
	}
	if len(s.WordIndex) != len(s.Chars) || len(s.CharTags) != len(s.Chars) {
		return fmt.Errorf("length mismatch: chars=%d word_index=%d char_tags=%d",
			len(s.Chars), len(s.WordIndex), len(s.CharTags))
	}
	if len(s.Tags) != len(s.Words) {
		return fmt.Errorf("length mismatch: words=%d tags=%d", len(s.Words), len(s.Tags))
	}
	for i, wi := range s.WordIndex {
		if wi < -1 || wi >= len(s.Words) {
			return fmt.Errorf("word index %d out of range at char %d", wi, i)
		}
	}
	return nil
}

// Reversed returns a copy with every sequence reversed. Word indices are
// mirrored so they still point at the right word of the reversed Words.
func (s Sentence) Reversed() Sentence {
	r := Sentence{
		Words:     slices.Clone(s.Words),
		Tags:      slices.Clone(s.Tags),
		Chars:     slices.Clone(s.Chars),
		WordIndex: slices.Clone(s.WordIndex),
		CharTags:  slices.Clone(s.CharTags),
	}
	slices.Reverse(r.Words)
	slices.Reverse(r.Tags)
	slices.Reverse(r.Chars)
	slices.Reverse(r.WordIndex)
	slices.Reverse(r.CharTags)

	m := -1
	for _, wi := range r.WordIndex {
		m = max(m, wi)
	}
	for i, wi := range r.WordIndex {
		if wi != -1 {
			r.WordIndex[i] = m - wi
		}
	}
	return r
}

var sentenceEnds = map[string]bool{".": true, "!": true, "?": true}

// Break splits a word-level sentence after every sentence-final punctuation
// word. Only Words and Tags are carried over.
func (s Sentence) Break() []Sentence {
	var out []Sentence
	start := 0
	for i, w := range s.Words {
		if sentenceEnds[w] || i == len(s.Words)-1 {
			out = append(out, Sentence{
				Words: slices.Clone(s.Words[start : i+1]),
				Tags:  slices.Clone(s.Tags[start : i+1]),
			})
			start = i + 1
		}
	}
	return out
}
