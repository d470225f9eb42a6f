package optim

import (
	"math"
	"testing"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"sgd", SGD, false},
		{"Adam", Adam, false},
		{"rmsprop", RMSProp, false},
		{"adagrad", Adagrad, false},
		{"lbfgs", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	var m Method
	if err := m.UnmarshalText([]byte("rmsprop")); err != nil || m != RMSProp {
		t.Errorf("UnmarshalText = %v, %v", m, err)
	}
	if text, _ := Adagrad.MarshalText(); string(text) != "adagrad" {
		t.Errorf("MarshalText = %q", text)
	}
}

func TestRate(t *testing.T) {
	r := NewRate(1)
	r.Scale(0.95)
	if math.Abs(r.Get()-0.95) > 1e-12 {
		t.Errorf("Get = %v, want 0.95", r.Get())
	}
	r.Set(0.5)
	if r.Get() != 0.5 {
		t.Errorf("Get = %v, want 0.5", r.Get())
	}
}

func TestSGDReadsCurrentRate(t *testing.T) {
	rate := NewRate(0.1)
	o, err := New(SGD, rate, 0)
	if err != nil {
		t.Fatal(err)
	}
	p := [][]float64{{1}}

	o.Step(p, [][]float64{{1}})
	rate.Set(0.5)
	o.Step(p, [][]float64{{1}})

	want := 1 - 0.1 - 0.5
	if math.Abs(p[0][0]-want) > 1e-12 {
		t.Errorf("p = %v, want %v", p[0][0], want)
	}
}

func TestGlobalNormClipping(t *testing.T) {
	o, _ := New(SGD, NewRate(1), 1)
	p := [][]float64{{0, 0}, {0}}
	g := [][]float64{{3, 0}, {4}}

	stats, err := o.Step(p, g)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Clipped || math.Abs(stats.Norm-5) > 1e-12 {
		t.Errorf("stats = %+v, want clipped with norm 5", stats)
	}
	if n := GlobalNorm(g); math.Abs(n-1) > 1e-6 {
		t.Errorf("clipped norm = %v, want 1", n)
	}
	if math.Abs(p[0][0]+0.6) > 1e-6 || math.Abs(p[1][0]+0.8) > 1e-6 {
		t.Errorf("p = %v, want [[-0.6 0] [-0.8]]", p)
	}
}

func TestNoClippingBelowThreshold(t *testing.T) {
	o, _ := New(SGD, NewRate(1), 10)
	p := [][]float64{{0}}
	stats, _ := o.Step(p, [][]float64{{2}})
	if stats.Clipped || p[0][0] != -2 {
		t.Errorf("stats = %+v, p = %v", stats, p)
	}
}

func TestDamping(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		o, _ := New(SGD, NewRate(1), 5)
		p := [][]float64{{2, 4}}
		stats, err := o.Step(p, [][]float64{{bad, 1}})
		if err != nil {
			t.Fatal(err)
		}
		if !stats.Damped {
			t.Errorf("gradient %v: expected damping", bad)
		}
		// p - lr * 0.1 * p
		if math.Abs(p[0][0]-1.8) > 1e-12 || math.Abs(p[0][1]-3.6) > 1e-12 {
			t.Errorf("gradient %v: p = %v, want [1.8 3.6]", bad, p)
		}
	}
}

func TestMethodsDescend(t *testing.T) {
	for _, m := range []Method{SGD, Adam, RMSProp, Adagrad} {
		o, _ := New(m, NewRate(0.5), 0)
		p := [][]float64{{3}}
		for range 200 {
			g := [][]float64{{2 * p[0][0]}}
			if _, err := o.Step(p, g); err != nil {
				t.Fatal(err)
			}
		}
		if math.Abs(p[0][0]) > 1 {
			t.Errorf("%v: p = %v after minimising x^2 from 3", m, p[0][0])
		}
	}
}

func TestStepShapeMismatch(t *testing.T) {
	o, _ := New(Adam, NewRate(0.1), 0)
	if _, err := o.Step([][]float64{{1}}, nil); err == nil {
		t.Error("expected count mismatch error")
	}
	if _, err := o.Step([][]float64{{1}}, [][]float64{{1, 2}}); err == nil {
		t.Error("expected size mismatch error")
	}
}
