package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/happyhackingspace/chartag/internal/textutil"
)

// ChunkStats counts chunks of one entity type.
type ChunkStats struct {
	Gold    int
	Guessed int
	Correct int
}

// Precision returns the chunk precision in percent.
func (s ChunkStats) Precision() float64 {
	if s.Guessed == 0 {
		return 0
	}
	return 100 * float64(s.Correct) / float64(s.Guessed)
}

// Recall returns the chunk recall in percent.
func (s ChunkStats) Recall() float64 {
	if s.Gold == 0 {
		return 0
	}
	return 100 * float64(s.Correct) / float64(s.Gold)
}

// F1 returns the harmonic mean of precision and recall.
func (s ChunkStats) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ChunkScore is the result of CoNLL chunk scoring.
type ChunkScore struct {
	Tokens   int
	Accuracy float64
	Total    ChunkStats
	ByType   map[string]ChunkStats
}

// ScoreChunks scores predicted word tags against gold word tags, sentence by
// sentence, the way conlleval does. Both sides must have the same shape.
func ScoreChunks(gold, pred [][]string) (ChunkScore, error) {
	if len(gold) != len(pred) {
		return ChunkScore{}, fmt.Errorf("got %d predicted sentences for %d gold sentences", len(pred), len(gold))
	}
	sc := ChunkScore{ByType: make(map[string]ChunkStats)}
	correctTags := 0
	bump := func(typ string, f func(*ChunkStats)) {
		st := sc.ByType[typ]
		f(&st)
		sc.ByType[typ] = st
		f(&sc.Total)
	}

	for si := range gold {
		if len(gold[si]) != len(pred[si]) {
			return ChunkScore{}, fmt.Errorf("sentence %d: %d predicted tags for %d words", si, len(pred[si]), len(gold[si]))
		}
		lastGold, lastPred := textutil.Outside, textutil.Outside
		lastGoldType, lastPredType := "", ""
		inCorrect := false

		for t := range gold[si] {
			gp, gt := textutil.SplitTag(gold[si][t])
			pp, pt := textutil.SplitTag(pred[si][t])

			if inCorrect {
				goldEnds := endOfChunk(lastGold, gp, lastGoldType, gt)
				predEnds := endOfChunk(lastPred, pp, lastPredType, pt)
				switch {
				case goldEnds && predEnds && lastGoldType == lastPredType:
					inCorrect = false
					bump(lastGoldType, func(s *ChunkStats) { s.Correct++ })
				case goldEnds != predEnds || gt != pt:
					inCorrect = false
				}
			}

			goldStarts := startOfChunk(lastGold, gp, lastGoldType, gt)
			predStarts := startOfChunk(lastPred, pp, lastPredType, pt)
			if goldStarts && predStarts && gt == pt {
				inCorrect = true
			}
			if goldStarts {
				bump(gt, func(s *ChunkStats) { s.Gold++ })
			}
			if predStarts {
				bump(pt, func(s *ChunkStats) { s.Guessed++ })
			}
			if gold[si][t] == pred[si][t] {
				correctTags++
			}
			sc.Tokens++
			lastGold, lastPred = gp, pp
			lastGoldType, lastPredType = gt, pt
		}

		// sentence boundary closes any open chunk
		if inCorrect {
			bump(lastGoldType, func(s *ChunkStats) { s.Correct++ })
		}
	}
	if sc.Tokens > 0 {
		sc.Accuracy = 100 * float64(correctTags) / float64(sc.Tokens)
	}
	return sc, nil
}

func endOfChunk(prevTag, tag, prevType, typ string) bool {
	switch {
	case prevTag == "B" && (tag == "B" || tag == textutil.Outside):
		return true
	case prevTag == "I" && (tag == "B" || tag == textutil.Outside):
		return true
	}
	return prevTag != textutil.Outside && prevType != typ
}

func startOfChunk(prevTag, tag, prevType, typ string) bool {
	switch {
	case tag == "B":
		return true
	case prevTag == textutil.Outside && tag == "I":
		return true
	}
	return tag != textutil.Outside && prevType != typ
}

// String renders the score in conlleval's report layout.
func (sc ChunkScore) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "processed %d tokens with %d phrases; found: %d phrases; correct: %d.\n",
		sc.Tokens, sc.Total.Gold, sc.Total.Guessed, sc.Total.Correct)
	fmt.Fprintf(&sb, "accuracy: %6.2f%%; precision: %6.2f%%; recall: %6.2f%%; FB1: %6.2f\n",
		sc.Accuracy, sc.Total.Precision(), sc.Total.Recall(), sc.Total.F1())

	types := make([]string, 0, len(sc.ByType))
	for typ := range sc.ByType {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		st := sc.ByType[typ]
		fmt.Fprintf(&sb, "%17s: precision: %6.2f%%; recall: %6.2f%%; FB1: %6.2f  %d\n",
			typ, st.Precision(), st.Recall(), st.F1(), st.Guessed)
	}
	return sb.String()
}
