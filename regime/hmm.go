package regime

import (
	"errors"
	"math"
	"sort"
)

const (
	varFloor = 1e-3
	tol      = 1e-6
)

// HMM is a two-state hidden Markov model with diagonal Gaussian emissions
// over standardized event features.
type HMM struct {
	Pi  [2]float64
	A   [2][2]float64
	Mu  [2][]float64
	Var [2][]float64

	// Abnormal is the state whose mean time-adjusted return is larger.
	Abnormal int

	center []float64
	scale  []float64
}

// FitHMM runs Baum-Welch on obs. Initialisation is deterministic: events
// are split at the median time-adjusted return.
func FitHMM(obs [][]float64, iterations int) (*HMM, error) {
	if len(obs) < 2 {
		return nil, errors.New("regime: need at least two observations")
	}
	dim := len(obs[0])
	for _, o := range obs {
		if len(o) != dim {
			return nil, errors.New("regime: ragged observations")
		}
	}

	h := &HMM{}
	h.center, h.scale = standardizer(obs)
	x := h.standardize(obs)
	h.init(x)

	prev := math.Inf(-1)
	for it := 0; it < iterations; it++ {
		ll := h.step(x)
		if math.IsNaN(ll) {
			break
		}
		if ll-prev < tol {
			break
		}
		prev = ll
	}

	k := featureTAR
	if k >= dim {
		k = dim - 1
	}
	if h.Mu[1][k] < h.Mu[0][k] {
		h.Abnormal = 0
	} else {
		h.Abnormal = 1
	}
	return h, nil
}

func standardizer(obs [][]float64) (center, scale []float64) {
	dim := len(obs[0])
	center = make([]float64, dim)
	scale = make([]float64, dim)
	n := float64(len(obs))
	for _, o := range obs {
		for j, v := range o {
			center[j] += v / n
		}
	}
	for _, o := range obs {
		for j, v := range o {
			scale[j] += (v - center[j]) * (v - center[j]) / n
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j])
	}
	return center, scale
}

func (h *HMM) standardize(obs [][]float64) [][]float64 {
	out := make([][]float64, len(obs))
	for i, o := range obs {
		row := make([]float64, len(o))
		for j, v := range o {
			if h.scale[j] > 0 {
				row[j] = (v - h.center[j]) / h.scale[j]
			}
		}
		out[i] = row
	}
	return out
}

func (h *HMM) init(x [][]float64) {
	dim := len(x[0])
	k := featureTAR
	if k >= dim {
		k = dim - 1
	}
	vals := make([]float64, len(x))
	for i, o := range x {
		vals[i] = o[k]
	}
	sort.Float64s(vals)
	median := vals[len(vals)/2]
	if len(vals)%2 == 0 {
		median = (vals[len(vals)/2-1] + vals[len(vals)/2]) / 2
	}

	var groups [2][][]float64
	for _, o := range x {
		if o[k] > median {
			groups[1] = append(groups[1], o)
		} else {
			groups[0] = append(groups[0], o)
		}
	}
	for s := 0; s < 2; s++ {
		g := groups[s]
		if len(g) == 0 {
			g = x
		}
		h.Mu[s], h.Var[s] = moments(g)
	}
	h.Pi = [2]float64{0.5, 0.5}
	h.A = [2][2]float64{{0.9, 0.1}, {0.1, 0.9}}
}

func moments(x [][]float64) (mu, v []float64) {
	dim := len(x[0])
	mu = make([]float64, dim)
	v = make([]float64, dim)
	n := float64(len(x))
	for _, o := range x {
		for j := range o {
			mu[j] += o[j] / n
		}
	}
	for _, o := range x {
		for j := range o {
			v[j] += (o[j] - mu[j]) * (o[j] - mu[j]) / n
		}
	}
	for j := range v {
		v[j] = math.Max(v[j], varFloor)
	}
	return mu, v
}

func (h *HMM) logEmission(s int, o []float64) float64 {
	lp := 0.0
	for j, v := range o {
		d := v - h.Mu[s][j]
		lp += -0.5*math.Log(2*math.Pi*h.Var[s][j]) - d*d/(2*h.Var[s][j])
	}
	return lp
}

// emissions returns per-step emission likelihoods rescaled so the larger of
// the two is 1, plus the log of the factor removed.
func (h *HMM) emissions(x [][]float64) ([][2]float64, []float64) {
	b := make([][2]float64, len(x))
	shift := make([]float64, len(x))
	for t, o := range x {
		l0, l1 := h.logEmission(0, o), h.logEmission(1, o)
		m := math.Max(l0, l1)
		b[t] = [2]float64{math.Exp(l0 - m), math.Exp(l1 - m)}
		shift[t] = m
	}
	return b, shift
}

// step is one scaled Baum-Welch iteration. It returns the log-likelihood of
// x under the parameters before the update.
func (h *HMM) step(x [][]float64) float64 {
	T := len(x)
	b, shift := h.emissions(x)

	alpha := make([][2]float64, T)
	c := make([]float64, T)
	for s := 0; s < 2; s++ {
		alpha[0][s] = h.Pi[s] * b[0][s]
	}
	c[0] = normalize(&alpha[0])
	for t := 1; t < T; t++ {
		for j := 0; j < 2; j++ {
			alpha[t][j] = (alpha[t-1][0]*h.A[0][j] + alpha[t-1][1]*h.A[1][j]) * b[t][j]
		}
		c[t] = normalize(&alpha[t])
	}

	ll := 0.0
	for t := 0; t < T; t++ {
		if c[t] <= 0 {
			return math.NaN()
		}
		ll += math.Log(c[t]) + shift[t]
	}

	beta := make([][2]float64, T)
	beta[T-1] = [2]float64{1, 1}
	for t := T - 2; t >= 0; t-- {
		for i := 0; i < 2; i++ {
			beta[t][i] = (h.A[i][0]*b[t+1][0]*beta[t+1][0] + h.A[i][1]*b[t+1][1]*beta[t+1][1]) / c[t+1]
		}
	}

	gamma := make([][2]float64, T)
	for t := 0; t < T; t++ {
		for s := 0; s < 2; s++ {
			gamma[t][s] = alpha[t][s] * beta[t][s]
		}
		normalize(&gamma[t])
	}

	var xiSum [2][2]float64
	var gSum [2]float64
	for t := 0; t < T-1; t++ {
		var xi [2][2]float64
		tot := 0.0
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				xi[i][j] = alpha[t][i] * h.A[i][j] * b[t+1][j] * beta[t+1][j]
				tot += xi[i][j]
			}
		}
		if tot <= 0 {
			continue
		}
		for i := 0; i < 2; i++ {
			gSum[i] += gamma[t][i]
			for j := 0; j < 2; j++ {
				xiSum[i][j] += xi[i][j] / tot
			}
		}
	}

	h.Pi = gamma[0]
	for i := 0; i < 2; i++ {
		row := xiSum[i][0] + xiSum[i][1]
		if gSum[i] > 0 && row > 0 {
			for j := 0; j < 2; j++ {
				h.A[i][j] = xiSum[i][j] / row
			}
		}
	}

	dim := len(x[0])
	for s := 0; s < 2; s++ {
		w := 0.0
		mu := make([]float64, dim)
		for t := 0; t < T; t++ {
			w += gamma[t][s]
			for j := 0; j < dim; j++ {
				mu[j] += gamma[t][s] * x[t][j]
			}
		}
		if w < 1e-9 {
			continue
		}
		v := make([]float64, dim)
		for j := 0; j < dim; j++ {
			mu[j] /= w
		}
		for t := 0; t < T; t++ {
			for j := 0; j < dim; j++ {
				d := x[t][j] - mu[j]
				v[j] += gamma[t][s] * d * d
			}
		}
		for j := 0; j < dim; j++ {
			v[j] = math.Max(v[j]/w, varFloor)
		}
		h.Mu[s], h.Var[s] = mu, v
	}
	return ll
}

// Filter returns P(abnormal | o_1..o_t) for every t, using only past and
// present observations.
func (h *HMM) Filter(obs [][]float64) []float64 {
	if len(obs) == 0 {
		return nil
	}
	x := h.standardize(obs)
	b, _ := h.emissions(x)
	out := make([]float64, len(x))

	var alpha [2]float64
	for s := 0; s < 2; s++ {
		alpha[s] = h.Pi[s] * b[0][s]
	}
	if normalize(&alpha) <= 0 {
		alpha = [2]float64{0.5, 0.5}
	}
	out[0] = alpha[h.Abnormal]
	for t := 1; t < len(x); t++ {
		var next [2]float64
		for j := 0; j < 2; j++ {
			next[j] = (alpha[0]*h.A[0][j] + alpha[1]*h.A[1][j]) * b[t][j]
		}
		if normalize(&next) <= 0 {
			next = alpha
		}
		alpha = next
		out[t] = alpha[h.Abnormal]
	}
	return out
}

func normalize(p *[2]float64) float64 {
	s := p[0] + p[1]
	if s > 0 {
		p[0] /= s
		p[1] /= s
	}
	return s
}

// Alarm reports whether the last n posteriors all reach p, returning the
// most recent posterior.
func Alarm(posteriors []float64, p float64, n int) (bool, float64) {
	if n <= 0 || len(posteriors) < n {
		return false, 0
	}
	last := posteriors[len(posteriors)-1]
	for _, v := range posteriors[len(posteriors)-n:] {
		if v < p {
			return false, last
		}
	}
	return true, last
}
