// Package eval scores predicted character tags at the character, word and
// chunk level.
package eval

import (
	"fmt"

	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/internal/textutil"
)

// Result holds every score of one split.
// CER and WER are fractions; WordAccuracy, Precision, Recall and F1 are percentages.
type Result struct {
	CER          float64
	WER          float64
	WordAccuracy float64
	Precision    float64
	Recall       float64
	F1           float64

	Chunks ChunkScore
	Chars  *Confusion
	Words  *Confusion

	Conll         string
	CharConfusion string
	WordConfusion string
}

// Evaluator decodes class ids back to tags and scores them.
type Evaluator struct {
	Labels     *corpus.Alphabet
	WordLabels *corpus.Alphabet
	WordTags   func(wordIndex []int, charTags []string) []string
}

// NewEvaluator creates an evaluator. A nil wordTags uses textutil.WordTags.
func NewEvaluator(labels, wordLabels *corpus.Alphabet, wordTags func([]int, []string) []string) *Evaluator {
	if wordTags == nil {
		wordTags = textutil.WordTags
	}
	return &Evaluator{Labels: labels, WordLabels: wordLabels, WordTags: wordTags}
}

// Evaluate scores pred, one class sequence per sentence, against sents.
// A count or length mismatch is an error.
func (ev *Evaluator) Evaluate(sents []corpus.Sentence, pred [][]int) (Result, error) {
	if len(pred) != len(sents) {
		return Result{}, fmt.Errorf("got %d predictions for %d sentences", len(pred), len(sents))
	}

	chars := NewConfusion(ev.Labels.ToStr)
	words := NewConfusion(ev.WordLabels.ToStr)
	goldWords := make([][]string, len(sents))
	predWords := make([][]string, len(sents))
	var nChars, charErrs, nWords, wordErrs int

	for i, s := range sents {
		if len(pred[i]) != s.Len() {
			return Result{}, fmt.Errorf("sentence %d: %d predicted tags for %d characters", i, len(pred[i]), s.Len())
		}
		predTags := make([]string, len(pred[i]))
		for t, id := range pred[i] {
			if id < 0 || id >= ev.Labels.Size() {
				return Result{}, fmt.Errorf("sentence %d position %d: class %d out of range", i, t, id)
			}
			predTags[t] = ev.Labels.Str(id)
			chars.Add(s.CharTags[t], predTags[t])
			if predTags[t] != s.CharTags[t] {
				charErrs++
			}
			nChars++
		}

		wt := ev.WordTags(s.WordIndex, predTags)
		// words with no characters are counted as outside
		for len(wt) < len(s.Tags) {
			wt = append(wt, textutil.Outside)
		}
		wt = wt[:len(s.Tags)]
		for w, tag := range wt {
			words.Add(s.Tags[w], tag)
			if tag != s.Tags[w] {
				wordErrs++
			}
			nWords++
		}
		goldWords[i] = s.Tags
		predWords[i] = wt
	}

	chunks, err := ScoreChunks(goldWords, predWords)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		WordAccuracy:  chunks.Accuracy,
		Precision:     chunks.Total.Precision(),
		Recall:        chunks.Total.Recall(),
		F1:            chunks.Total.F1(),
		Chunks:        chunks,
		Chars:         chars,
		Words:         words,
		Conll:         chunks.String(),
		CharConfusion: chars.String(),
		WordConfusion: words.String(),
	}
	if nChars > 0 {
		res.CER = float64(charErrs) / float64(nChars)
	}
	if nWords > 0 {
		res.WER = float64(wordErrs) / float64(nWords)
	}
	return res, nil
}
