// Package textutil converts word-level tagged sentences into the character
// representation and back.
package textutil

import (
	"fmt"
	"strings"
)

// Outside is the tag of characters that belong to no entity.
const Outside = "O"

// Rep is a layout of a sentence's words as characters.
type Rep string

// Character layouts.
const (
	// RepStd separates words with a space that belongs to a chunk when the
	// chunk continues past it.
	RepStd Rep = "std"
	// RepNoSpace concatenates the words without separators.
	RepNoSpace Rep = "nospace"
	// RepSpec separates words with a space that is always Outside.
	RepSpec Rep = "spec"
)

// ParseRep parses "std", "nospace" or "spec".
func ParseRep(s string) (Rep, error) {
	switch r := Rep(s); r {
	case RepStd, RepNoSpace, RepSpec:
		return r, nil
	}
	return "", fmt.Errorf("unknown representation %q", s)
}

func (r Rep) sep() string {
	if r == RepNoSpace {
		return ""
	}
	return " "
}

// CharSeq returns the characters of words laid out by r.
func (r Rep) CharSeq(words []string) []rune {
	return []rune(strings.Join(words, r.sep()))
}

// WordIndex returns, per character of r.CharSeq(words), the index of its
// word or -1 for separators.
func (r Rep) WordIndex(words []string) []int {
	var idx []int
	for i, w := range words {
		if i > 0 && r != RepNoSpace {
			idx = append(idx, -1)
		}
		for range []rune(w) {
			idx = append(idx, i)
		}
	}
	return idx
}

// CharTags spreads word tags over the characters of r.CharSeq(words).
//
// With bio set, only the first character of a B- word keeps the B- tag and
// the remaining characters get the matching I- tag. Under RepStd a space
// inside an entity that continues into the next word is tagged with that
// entity's I- tag; all other spaces are Outside.
func (r Rep) CharTags(words, tags []string, bio bool) []string {
	var out []string
	for i, w := range words {
		if i > 0 {
			switch r {
			case RepNoSpace:
			case RepSpec:
				out = append(out, Outside)
			default:
				out = append(out, spaceTag(tags[i-1], tags[i]))
			}
		}
		prefix, typ := SplitTag(tags[i])
		for j := range []rune(w) {
			switch {
			case prefix == "B" && (!bio || j > 0):
				out = append(out, "I-"+typ)
			default:
				out = append(out, tags[i])
			}
		}
	}
	return out
}

// CharSeq joins words with single spaces and returns the characters.
func CharSeq(words []string) []rune {
	return RepStd.CharSeq(words)
}

// WordIndex is RepStd.WordIndex.
func WordIndex(words []string) []int {
	return RepStd.WordIndex(words)
}

// CharTags is RepStd.CharTags.
func CharTags(words, tags []string, bio bool) []string {
	return RepStd.CharTags(words, tags, bio)
}

func spaceTag(prev, next string) string {
	pp, pt := SplitTag(prev)
	np, nt := SplitTag(next)
	if pp == Outside || np != "I" || pt != nt {
		return Outside
	}
	return "I-" + nt
}

// WordTags recovers one tag per word from character tags. A word whose first
// character is tagged B- takes that tag; otherwise the most frequent tag of
// its characters wins, ties going to the tag that reached the count first.
func WordTags(wordIndex []int, charTags []string) []string {
	numWords := 0
	for _, wi := range wordIndex {
		numWords = max(numWords, wi+1)
	}

	groups := make([][]string, numWords)
	for i, wi := range wordIndex {
		if wi >= 0 && i < len(charTags) {
			groups[wi] = append(groups[wi], charTags[i])
		}
	}

	out := make([]string, numWords)
	for i, g := range groups {
		out[i] = wordTag(g)
	}
	return out
}

func wordTag(charTags []string) string {
	if len(charTags) == 0 {
		return Outside
	}
	if p, _ := SplitTag(charTags[0]); p == "B" {
		return charTags[0]
	}
	counts := make(map[string]int, len(charTags))
	best := charTags[0]
	for _, t := range charTags {
		counts[t]++
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

// ToIO rewrites B- tags to I- tags.
func ToIO(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		if p, typ := SplitTag(t); p == "B" {
			out[i] = "I-" + typ
		} else {
			out[i] = t
		}
	}
	return out
}

// SplitTag splits "B-PER" into ("B", "PER"). Outside and malformed tags
// return (Outside, "").
func SplitTag(tag string) (prefix, typ string) {
	p, t, ok := strings.Cut(tag, "-")
	if !ok || (p != "B" && p != "I") {
		return Outside, ""
	}
	return p, t
}
