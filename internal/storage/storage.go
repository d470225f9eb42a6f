// Package storage reads CoNLL-formatted corpora from a data folder laid out
// as <folder>/<lang>/{trn,dev,tst}.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/happyhackingspace/chartag/corpus"
)

// Split file names.
const (
	Trn = "trn"
	Dev = "dev"
	Tst = "tst"
)

const docStart = "-DOCSTART-"

// extensions tried, in order, after the bare split name.
var extensions = []string{"", ".conll", ".txt"}

// Storage wraps the corpus data folder.
type Storage struct {
	Folder string
}

// NewStorage creates a Storage for the given data folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

// Path returns the file of one split, or an error wrapping os.ErrNotExist.
func (s *Storage) Path(lang, split string) (string, error) {
	base := filepath.Join(s.Folder, lang, split)
	for _, ext := range extensions {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, nil
		}
	}
	return "", fmt.Errorf("%s: %w", base, os.ErrNotExist)
}

// ReadSplit reads every sentence of one split.
func (s *Storage) ReadSplit(lang, split string) ([]corpus.Sentence, error) {
	path, err := s.Path(lang, split)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sents, err := ReadConll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("Read split", "path", path, "sentences", len(sents))
	return sents, nil
}

// Splits reads the training, dev and test splits of lang. A missing test
// split is not an error; tst is nil then.
func (s *Storage) Splits(lang string) (trn, dev, tst []corpus.Sentence, err error) {
	if trn, err = s.ReadSplit(lang, Trn); err != nil {
		return nil, nil, nil, err
	}
	if dev, err = s.ReadSplit(lang, Dev); err != nil {
		return nil, nil, nil, err
	}
	tst, err = s.ReadSplit(lang, Tst)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("No test split", "lang", lang, "folder", s.Folder)
		return trn, dev, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return trn, dev, tst, nil
}

// ReadConll parses whitespace-separated columns, one token per line, with
// blank lines between sentences. The word is the first column and the tag
// the last. Document separators are skipped.
func ReadConll(r io.Reader) ([]corpus.Sentence, error) {
	var sents []corpus.Sentence
	var cur corpus.Sentence
	flush := func() {
		if len(cur.Words) > 0 {
			sents = append(sents, cur)
		}
		cur = corpus.Sentence{}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		cols := strings.Fields(line)
		if cols[0] == docStart {
			flush()
			continue
		}
		if len(cols) < 2 {
			return nil, fmt.Errorf("line %d: want at least 2 columns, got %d", lineNo, len(cols))
		}
		cur.Words = append(cur.Words, cols[0])
		cur.Tags = append(cur.Tags, cols[len(cols)-1])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return sents, nil
}
