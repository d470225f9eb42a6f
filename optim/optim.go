// Package optim applies first-order updates with global gradient-norm clipping.
package optim

import (
	"log/slog"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Method selects the update rule.
type Method int

const (
	SGD Method = iota
	Adam
	RMSProp
	Adagrad
)

var methodNames = map[Method]string{
	SGD:     "sgd",
	Adam:    "adam",
	RMSProp: "rmsprop",
	Adagrad: "adagrad",
}

// ParseMethod parses an update rule name such as "adam".
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, errors.Errorf("unknown optimizer %q", s)
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if _, ok := methodNames[m]; !ok {
		return nil, errors.Errorf("unknown optimizer %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
	rmsRho      = 0.9
	rmsEpsilon  = 1e-6
	adaEpsilon  = 1e-6

	normEpsilon = 1e-7
	// DampingFactor scales parameters into gradients when the global norm is not finite.
	DampingFactor = 0.1
)

// Rate is a learning rate shared between the optimizer and the training loop.
type Rate struct {
	v float64
}

// NewRate creates a Rate.
func NewRate(v float64) *Rate {
	return &Rate{v: v}
}

// Get returns the current value.
func (r *Rate) Get() float64 { return r.v }

// Set replaces the value.
func (r *Rate) Set(v float64) { r.v = v }

// Scale multiplies the value by f and returns the new value.
func (r *Rate) Scale(f float64) float64 {
	r.v *= f
	return r.v
}

// StepStats describes one update.
type StepStats struct {
	Norm    float64
	Clipped bool
	Damped  bool
}

// Optimizer updates parameter slices in place.
type Optimizer struct {
	method    Method
	rate      *Rate
	threshold float64

	t     int
	slot1 [][]float64
	slot2 [][]float64
}

// New creates an optimizer. A threshold <= 0 disables norm clipping.
func New(method Method, rate *Rate, threshold float64) (*Optimizer, error) {
	if _, ok := methodNames[method]; !ok {
		return nil, errors.Errorf("unknown optimizer %d", int(method))
	}
	if rate == nil {
		return nil, errors.New("nil learning rate")
	}
	return &Optimizer{method: method, rate: rate, threshold: threshold}, nil
}

// Rate returns the learning rate the optimizer reads on every step.
func (o *Optimizer) Rate() *Rate {
	return o.rate
}

// Step clips grads by their global L2 norm and applies one update to values.
// grads is modified in place.
func (o *Optimizer) Step(values, grads [][]float64) (StepStats, error) {
	if len(values) != len(grads) {
		return StepStats{}, errors.Errorf("got %d parameters and %d gradients", len(values), len(grads))
	}
	for i := range values {
		if len(values[i]) != len(grads[i]) {
			return StepStats{}, errors.Errorf("parameter %d: size %d, gradient size %d", i, len(values[i]), len(grads[i]))
		}
	}
	o.ensureSlots(values)

	var stats StepStats
	stats.Norm = GlobalNorm(grads)
	switch {
	case math.IsNaN(stats.Norm) || math.IsInf(stats.Norm, 0):
		stats.Damped = true
		for i := range grads {
			copy(grads[i], values[i])
			floats.Scale(DampingFactor, grads[i])
		}
		slog.Debug("Non-finite gradient norm, damping", "norm", stats.Norm)
	case o.threshold > 0 && stats.Norm > o.threshold:
		stats.Clipped = true
		scale := o.threshold / (stats.Norm + normEpsilon)
		for _, g := range grads {
			floats.Scale(scale, g)
		}
	}

	o.t++
	lr := o.rate.Get()
	for i := range values {
		o.update(values[i], grads[i], o.slot1[i], o.slot2[i], lr)
	}
	return stats, nil
}

func (o *Optimizer) update(p, g, s1, s2 []float64, lr float64) {
	switch o.method {
	case SGD:
		floats.AddScaled(p, -lr, g)
	case Adam:
		t := float64(o.t)
		a := lr * math.Sqrt(1-math.Pow(adamBeta2, t)) / (1 - math.Pow(adamBeta1, t))
		for j := range p {
			s1[j] = adamBeta1*s1[j] + (1-adamBeta1)*g[j]
			s2[j] = adamBeta2*s2[j] + (1-adamBeta2)*g[j]*g[j]
			p[j] -= a * s1[j] / (math.Sqrt(s2[j]) + adamEpsilon)
		}
	case RMSProp:
		for j := range p {
			s1[j] = rmsRho*s1[j] + (1-rmsRho)*g[j]*g[j]
			p[j] -= lr * g[j] / math.Sqrt(s1[j]+rmsEpsilon)
		}
	case Adagrad:
		for j := range p {
			s1[j] += g[j] * g[j]
			p[j] -= lr * g[j] / math.Sqrt(s1[j]+adaEpsilon)
		}
	}
}

func (o *Optimizer) ensureSlots(values [][]float64) {
	if len(o.slot1) == len(values) {
		return
	}
	o.slot1 = make([][]float64, len(values))
	o.slot2 = make([][]float64, len(values))
	for i, v := range values {
		o.slot1[i] = make([]float64, len(v))
		o.slot2[i] = make([]float64, len(v))
	}
}

// GlobalNorm returns the L2 norm over all slices.
func GlobalNorm(grads [][]float64) float64 {
	var sum float64
	for _, g := range grads {
		n := floats.Norm(g, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}
