package chartag

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/happyhackingspace/chartag/corpus"
	"github.com/happyhackingspace/chartag/internal/textutil"
)

// Dataset holds the three prepared splits. Tst may be empty.
type Dataset struct {
	Trn, Dev, Tst []corpus.Sentence
}

// PrepareSentences fills the character representation of word-level
// sentences according to the tagging scheme and the character layout rep.
func PrepareSentences(sents []corpus.Sentence, tagging, rep string) ([]corpus.Sentence, error) {
	r, err := textutil.ParseRep(rep)
	if err != nil {
		return nil, err
	}
	out := make([]corpus.Sentence, len(sents))
	for i, s := range sents {
		if len(s.Words) == 0 {
			return nil, fmt.Errorf("sentence %d has no words", i)
		}
		if len(s.Words) != len(s.Tags) {
			return nil, fmt.Errorf("sentence %d: %d words, %d tags", i, len(s.Words), len(s.Tags))
		}
		tags := s.Tags
		if tagging == TaggingIO {
			tags = textutil.ToIO(tags)
		}
		p := corpus.Sentence{
			Words:     s.Words,
			Tags:      tags,
			Chars:     r.CharSeq(s.Words),
			WordIndex: r.WordIndex(s.Words),
			CharTags:  r.CharTags(s.Words, tags, tagging == TaggingBIO),
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Prepare applies the data options of cfg to raw word-level splits: training
// sentence breaking, length cap, sampling, character representation,
// reversed copies and length sorting.
func Prepare(raw Dataset, cfg Config, rng *rand.Rand) (Dataset, error) {
	trn := raw.Trn
	if cfg.BreakTrain {
		var parts []corpus.Sentence
		for _, s := range trn {
			parts = append(parts, s.Break()...)
		}
		slog.Debug("Broke training sentences", "sentences", len(trn), "parts", len(parts))
		trn = parts
	}
	if cfg.CapTrain > 0 {
		var kept []corpus.Sentence
		for _, s := range trn {
			if len(s.Words) < cfg.CapTrain {
				kept = append(kept, s)
			}
		}
		slog.Debug("Capped training sentences", "captrn", cfg.CapTrain, "kept", len(kept), "of", len(trn))
		trn = kept
	}
	if cfg.Sample > 0 {
		trn = sample(trn, cfg.Sample*1000, rng)
	}

	var ds Dataset
	var err error
	if ds.Trn, err = PrepareSentences(trn, cfg.Tagging, cfg.Rep); err != nil {
		return Dataset{}, fmt.Errorf("trn: %w", err)
	}
	if ds.Dev, err = PrepareSentences(raw.Dev, cfg.Tagging, cfg.Rep); err != nil {
		return Dataset{}, fmt.Errorf("dev: %w", err)
	}
	if ds.Tst, err = PrepareSentences(raw.Tst, cfg.Tagging, cfg.Rep); err != nil {
		return Dataset{}, fmt.Errorf("tst: %w", err)
	}

	if cfg.Reverse {
		n := len(ds.Trn)
		for i := range n {
			ds.Trn = append(ds.Trn, ds.Trn[i].Reversed())
		}
	}
	if cfg.Sorted {
		for _, split := range [][]corpus.Sentence{ds.Trn, ds.Dev, ds.Tst} {
			sort.SliceStable(split, func(i, j int) bool { return split[i].Len() < split[j].Len() })
		}
	}
	if len(ds.Trn) == 0 || len(ds.Dev) == 0 {
		return Dataset{}, fmt.Errorf("need training and dev sentences, got %d and %d", len(ds.Trn), len(ds.Dev))
	}
	logStats(ds)
	return ds, nil
}

// sample draws n sentences without replacement, keeping their order.
func sample(sents []corpus.Sentence, n int, rng *rand.Rand) []corpus.Sentence {
	if n >= len(sents) {
		return sents
	}
	idx := rng.Perm(len(sents))[:n]
	sort.Ints(idx)
	out := make([]corpus.Sentence, n)
	for i, j := range idx {
		out[i] = sents[j]
	}
	return out
}

func logStats(ds Dataset) {
	var lengths []int
	for _, split := range [][]corpus.Sentence{ds.Trn, ds.Dev, ds.Tst} {
		for _, s := range split {
			lengths = append(lengths, s.Len())
		}
	}
	minLen, maxLen, total := lengths[0], lengths[0], 0
	for _, n := range lengths {
		minLen = min(minLen, n)
		maxLen = max(maxLen, n)
		total += n
	}
	slog.Info("Sentences", "trn", len(ds.Trn), "dev", len(ds.Dev), "tst", len(ds.Tst),
		"maxlen", maxLen, "minlen", minLen, "avglen", float64(total)/float64(len(lengths)))
}
