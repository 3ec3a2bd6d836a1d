package regime

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFeatures are the snapshot metrics the classifier reads.
var DefaultFeatures = []string{MetricADX, MetricRSI, MetricVolPercentile, MetricBBWRatio, MetricSentiment, MetricConfluence}

// Model is a multinomial logistic regression over standardized metrics.
type Model struct {
	Labels   []Label     `yaml:"labels"`
	Features []string    `yaml:"features"`
	Mean     []float64   `yaml:"mean"`
	Scale    []float64   `yaml:"scale"`
	Weights  [][]float64 `yaml:"weights"` // [label][feature]
	Bias     []float64   `yaml:"bias"`
}

func (m *Model) Validate() error {
	nl, nf := len(m.Labels), len(m.Features)
	switch {
	case nl < 2:
		return errors.New("model: need at least two labels")
	case nf == 0:
		return errors.New("model: no features")
	case len(m.Mean) != nf || len(m.Scale) != nf:
		return fmt.Errorf("model: mean/scale length must be %d", nf)
	case len(m.Weights) != nl || len(m.Bias) != nl:
		return fmt.Errorf("model: weights/bias length must be %d", nl)
	}
	for i, w := range m.Weights {
		if len(w) != nf {
			return fmt.Errorf("model: weights[%d] length %d, want %d", i, len(w), nf)
		}
	}
	for _, l := range m.Labels {
		if !l.Valid() || l == Unknown {
			return fmt.Errorf("model: unknown label %q", l)
		}
	}
	return nil
}

// Predict returns the probability of each label given metric values. Missing
// metrics read as the training mean.
func (m *Model) Predict(metrics map[string]float64) map[Label]float64 {
	x := make([]float64, len(m.Features))
	for j, f := range m.Features {
		v, ok := metrics[f]
		if !ok || m.Scale[j] == 0 {
			continue
		}
		x[j] = (v - m.Mean[j]) / m.Scale[j]
	}
	p := m.softmax(x)
	out := make(map[Label]float64, len(m.Labels))
	for i, l := range m.Labels {
		out[l] = p[i]
	}
	return out
}

func (m *Model) softmax(x []float64) []float64 {
	z := make([]float64, len(m.Labels))
	hi := math.Inf(-1)
	for i := range m.Labels {
		z[i] = m.Bias[i]
		for j := range x {
			z[i] += m.Weights[i][j] * x[j]
		}
		hi = math.Max(hi, z[i])
	}
	sum := 0.0
	for i := range z {
		z[i] = math.Exp(z[i] - hi)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
	return z
}

// Best returns the most probable label.
func Best(p map[Label]float64) (Label, float64) {
	best, bp := Unknown, -1.0
	for _, l := range Labels {
		if v, ok := p[l]; ok && v > bp {
			best, bp = l, v
		}
	}
	return best, bp
}

// LoadModel reads a YAML model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	m := &Model{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Sample is one labelled training observation.
type Sample struct {
	Metrics map[string]float64
	Label   Label
}

type FitOptions struct {
	Features     []string
	Epochs       int
	LearningRate float64
	L2           float64
}

// Fit trains a softmax model by batch gradient descent.
func Fit(samples []Sample, opts FitOptions) (*Model, error) {
	if len(samples) == 0 {
		return nil, errors.New("model: no samples")
	}
	if len(opts.Features) == 0 {
		opts.Features = DefaultFeatures
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 500
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.5
	}

	labelIdx := map[Label]int{}
	m := &Model{Features: append([]string(nil), opts.Features...)}
	for _, l := range Labels {
		for _, s := range samples {
			if s.Label == l {
				labelIdx[l] = len(m.Labels)
				m.Labels = append(m.Labels, l)
				break
			}
		}
	}
	if len(m.Labels) < 2 {
		return nil, errors.New("model: samples cover fewer than two labels")
	}

	nf, nl, n := len(m.Features), len(m.Labels), float64(len(samples))
	raw := make([][]float64, len(samples))
	for i, s := range samples {
		raw[i] = make([]float64, nf)
		for j, f := range m.Features {
			raw[i][j] = s.Metrics[f]
		}
	}
	m.Mean, m.Scale = standardizer(raw)
	x := make([][]float64, len(raw))
	for i, r := range raw {
		x[i] = make([]float64, nf)
		for j := range r {
			if m.Scale[j] > 0 {
				x[i][j] = (r[j] - m.Mean[j]) / m.Scale[j]
			}
		}
	}

	m.Weights = make([][]float64, nl)
	for i := range m.Weights {
		m.Weights[i] = make([]float64, nf)
	}
	m.Bias = make([]float64, nl)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		gw := make([][]float64, nl)
		for i := range gw {
			gw[i] = make([]float64, nf)
		}
		gb := make([]float64, nl)
		for i, s := range samples {
			p := m.softmax(x[i])
			y := labelIdx[s.Label]
			for k := 0; k < nl; k++ {
				d := p[k]
				if k == y {
					d -= 1
				}
				gb[k] += d / n
				for j := 0; j < nf; j++ {
					gw[k][j] += d * x[i][j] / n
				}
			}
		}
		for k := 0; k < nl; k++ {
			m.Bias[k] -= opts.LearningRate * gb[k]
			for j := 0; j < nf; j++ {
				m.Weights[k][j] -= opts.LearningRate * (gw[k][j] + opts.L2*m.Weights[k][j])
			}
		}
	}
	return m, nil
}
