package eval

import (
	"strconv"
	"strings"
)

// Confusion counts (true, predicted) label pairs.
type Confusion struct {
	classes []string
	index   map[string]int
	counts  map[string]map[string]int
}

// NewConfusion creates a matrix over the given classes, in that order.
// Labels outside the list are appended as they are seen.
func NewConfusion(classes []string) *Confusion {
	c := &Confusion{
		index:  make(map[string]int, len(classes)),
		counts: make(map[string]map[string]int),
	}
	for _, cls := range classes {
		c.class(cls)
	}
	return c
}

func (c *Confusion) class(cls string) {
	if _, ok := c.index[cls]; ok {
		return
	}
	c.index[cls] = len(c.classes)
	c.classes = append(c.classes, cls)
	c.counts[cls] = make(map[string]int)
}

// Add records one observation.
func (c *Confusion) Add(trueClass, predClass string) {
	c.class(trueClass)
	c.class(predClass)
	c.counts[trueClass][predClass]++
}

// Classes returns the row and column order.
func (c *Confusion) Classes() []string {
	return append([]string(nil), c.classes...)
}

// Counts returns the matrix as counts[true][predicted].
func (c *Confusion) Counts() map[string]map[string]int {
	return c.counts
}

// Metrics returns per-class precision, recall and F1 as fractions.
func (c *Confusion) Metrics() (precision, recall, f1 map[string]float64) {
	precision = make(map[string]float64, len(c.classes))
	recall = make(map[string]float64, len(c.classes))
	f1 = make(map[string]float64, len(c.classes))
	for _, cls := range c.classes {
		tp := c.counts[cls][cls]
		predicted, actual := 0, 0
		for _, other := range c.classes {
			predicted += c.counts[other][cls]
			actual += c.counts[cls][other]
		}
		if predicted > 0 {
			precision[cls] = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			recall[cls] = float64(tp) / float64(actual)
		}
		if p, r := precision[cls], recall[cls]; p+r > 0 {
			f1[cls] = 2 * p * r / (p + r)
		}
	}
	return precision, recall, f1
}

// String renders the matrix as tab-separated rows, true classes down the side.
func (c *Confusion) String() string {
	var sb strings.Builder
	sb.WriteString("bos")
	for _, cls := range c.classes {
		sb.WriteString("\t" + cls)
	}
	sb.WriteString("\n")
	for _, t := range c.classes {
		sb.WriteString(t)
		for _, p := range c.classes {
			sb.WriteString("\t" + strconv.Itoa(c.counts[t][p]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
