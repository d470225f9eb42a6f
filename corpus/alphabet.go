package corpus

import (
	"fmt"
	"sort"
)

// Alphabet maps between tag strings and class ids.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// SortedAlphabet builds an alphabet whose ids follow the sorted order of the given strings.
func SortedAlphabet(strs []string) *Alphabet {
	uniq := make(map[string]bool, len(strs))
	for _, s := range strs {
		uniq[s] = true
	}
	sorted := make([]string, 0, len(uniq))
	for s := range uniq {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	a := NewAlphabet()
	for _, s := range sorted {
		a.Add(s)
	}
	return a
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Str returns the string for an ID, or "" if out of range.
func (a *Alphabet) Str(id int) string {
	if id < 0 || id >= len(a.ToStr) {
		return ""
	}
	return a.ToStr[id]
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// Encode maps every string to its ID. Unknown strings are an error.
func (a *Alphabet) Encode(strs []string) ([]int, error) {
	ids := make([]int, len(strs))
	for i, s := range strs {
		id := a.Get(s)
		if id < 0 {
			return nil, fmt.Errorf("unknown label %q", s)
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode maps IDs back to strings.
func (a *Alphabet) Decode(ids []int) []string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = a.Str(id)
	}
	return strs
}
