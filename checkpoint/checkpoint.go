// Package checkpoint saves and loads trained parameters together with the
// run configuration and encoder that produced them.
package checkpoint

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Ext is the checkpoint file extension.
const Ext = ".json"

const maxNameLen = 200

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._,:=+\-\[\]]`)

// Bundle is one saved checkpoint.
type Bundle struct {
	RunID   string          `json:"run_id"`
	Name    string          `json:"name"`
	Epoch   int             `json:"epoch"`
	F1      float64         `json:"f1"`
	Config  json.RawMessage `json:"config"`
	Encoder json.RawMessage `json:"encoder,omitempty"`
	Shapes  [][2]int        `json:"shapes"`
	Params  [][]float64     `json:"params"`
	SavedAt time.Time       `json:"saved_at"`

	Transitions [][]bool `json:"transitions,omitempty"`
}

// Name derives a deterministic file name from cfg: its JSON fields as sorted
// key:value pairs joined by commas, stripped of characters unsafe in file
// names. Long names are truncated and suffixed with a hash of the full name.
func Name(cfg any) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("config must encode as a JSON object: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + nameValue(fields[k])
	}
	name := unsafeChars.ReplaceAllString(strings.Join(pairs, ","), "")
	if len(name) > maxNameLen {
		sum := sha1.Sum([]byte(name))
		name = name[:maxNameLen] + "-" + hex.EncodeToString(sum[:4])
	}
	return name, nil
}

func nameValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Save writes b to dir/<b.Name>.json and returns the path.
func Save(dir string, b *Bundle) (string, error) {
	if b.Name == "" {
		return "", fmt.Errorf("checkpoint has no name")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, b.Name+Ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	if len(b.Shapes) != 0 && len(b.Shapes) != len(b.Params) {
		return nil, fmt.Errorf("load checkpoint %s: %d shapes for %d parameters", path, len(b.Shapes), len(b.Params))
	}
	return &b, nil
}

// Writer saves a snapshot of Base whenever the training loop reports a new
// best dev score.
type Writer struct {
	Dir  string
	Base Bundle
	Now  func() time.Time

	last string
}

// Save implements train.Checkpointer.
func (w *Writer) Save(epoch int, f1 float64, params [][]float64) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	b := w.Base
	b.Epoch = epoch
	b.F1 = f1
	b.Params = params
	b.SavedAt = now().UTC()
	path, err := Save(w.Dir, &b)
	if err != nil {
		return err
	}
	w.last = path
	slog.Info("Saved checkpoint", "path", path, "epoch", epoch, "f1", f1)
	return nil
}

// Last returns the path of the most recent snapshot, or "".
func (w *Writer) Last() string {
	return w.last
}

// Target is a model whose parameters can be read and replaced.
type Target interface {
	ParameterValues() [][]float64
	ParameterShapes() [][2]int
	SetParameterValues(values [][]float64) error
}

// Transfer copies saved parameters into dst. Entries are matched by position
// over the shorter of the two lists. An entry of the same size is copied
// whole. When shapes holds the saved (rows, cols) and an entry has the same
// columns but fewer rows than dst's, it fills dst's leading rows; input
// weights keep their trained rows this way when features were appended.
// Any other entry keeps dst's fresh value. It returns the number of entries
// copied.
func Transfer(dst Target, saved [][]float64, shapes [][2]int) (int, error) {
	values := dst.ParameterValues()
	fresh := dst.ParameterShapes()
	copied := 0
	for i := range min(len(values), len(saved)) {
		switch {
		case len(values[i]) == len(saved[i]):
			values[i] = append([]float64(nil), saved[i]...)
		case leadingRows(fresh, shapes, i, len(saved[i])):
			copy(values[i], saved[i])
			slog.Debug("Copied leading rows", "index", i, "saved", shapes[i], "fresh", fresh[i])
		default:
			slog.Debug("Skipping parameter", "index", i, "saved", len(saved[i]), "fresh", len(values[i]))
			continue
		}
		copied++
	}
	if err := dst.SetParameterValues(values); err != nil {
		return 0, err
	}
	slog.Info("Transferred parameters", "copied", copied, "saved", len(saved), "fresh", len(values))
	return copied, nil
}

func leadingRows(fresh, saved [][2]int, i, n int) bool {
	if i >= len(fresh) || i >= len(saved) {
		return false
	}
	f, s := fresh[i], saved[i]
	return s[1] == f[1] && s[0] < f[0] && s[0]*s[1] == n
}
