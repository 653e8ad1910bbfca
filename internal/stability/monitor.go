// Package stability computes the recursive-stability feedback signals:
// an entropy balance and an expansion factor derived from the weight
// distribution, recursion depth, time, bounded randomness, and one
// external performance scalar. All computation degrades to safe
// defaults; this code runs on the crash-recovery path and must never
// fail.
package stability

import (
	"math"
	"math/rand"
	"time"
)

// #region constants

const (
	entropyFloor = 0.1
	entropyCeil  = 0.9

	expansionFloor = 0.1
	expansionCeil  = 1.2

	// breakthroughChance is the probability of the multiplicative
	// expansion boost.
	breakthroughChance = 0.05
	breakthroughBoost  = 1.5

	initialDepth        = 1.0
	initialEntropy      = 0.5
	initialLearningRate = 0.7

	learningRateCeil  = 0.95
	learningRateFloor = 0.2
)

// #endregion constants

// #region performance-source

// PerformanceSource supplies the external performance scalar in [0,1]
// that biases expansion and entropy. Implementations live outside the
// recovery core.
type PerformanceSource interface {
	Performance() float64
}

// PerformanceFunc adapts a plain function to a PerformanceSource.
type PerformanceFunc func() float64

// Performance calls f.
func (f PerformanceFunc) Performance() float64 { return f() }

// #endregion performance-source

// #region config

// Config holds the monitor's injectable clock and randomness, so tests
// can pin both.
type Config struct {
	Clock func() time.Time
	Rand  *rand.Rand
}

// DefaultConfig returns a wall-clock, time-seeded configuration.
func DefaultConfig() Config {
	return Config{
		Clock: time.Now,
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// #endregion config

// #region monitor

// Monitor holds the recursive feedback parameters. Not safe for
// concurrent writers.
type Monitor struct {
	perf  PerformanceSource
	clock func() time.Time
	rng   *rand.Rand

	depth        float64
	entropy      float64
	learningRate float64
	weights      map[string]float64
}

// NewMonitor creates a Monitor. perf may be nil (performance degrades
// to 0).
func NewMonitor(perf PerformanceSource, cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Monitor{
		perf:         perf,
		clock:        cfg.Clock,
		rng:          cfg.Rand,
		depth:        initialDepth,
		entropy:      initialEntropy,
		learningRate: initialLearningRate,
		weights:      initialWeights(),
	}
}

func initialWeights() map[string]float64 {
	return map[string]float64{
		"reflection": 0.4,
		"expansion":  0.3,
		"stability":  0.3,
	}
}

// #endregion monitor

// #region entropy-balance

// EntropyBalance recomputes the entropy balance from the Shannon
// entropy of the weight distribution, a slow time oscillation, the
// recursion depth, and a bounded random perturbation, clamped to
// [0.1, 0.9]. High entropy biases the learning rate upward, low
// entropy downward.
func (m *Monitor) EntropyBalance() float64 {
	var shannon float64
	for _, p := range m.weights {
		if p > 0 {
			shannon -= p * math.Log2(p)
		}
	}

	t := float64(m.clock().UnixNano()) / float64(time.Second)
	timeFactor := math.Sin(t/10) * 0.1
	recursiveFactor := math.Log(1+m.depth) * 0.1
	noise := m.rng.Float64()*0.2 - 0.1

	e := shannon/2 + timeFactor + recursiveFactor + noise
	if math.IsNaN(e) || math.IsInf(e, 0) {
		e = initialEntropy
	}
	m.entropy = clampEntropy(e)

	switch {
	case m.entropy > 0.7:
		m.learningRate = math.Min(learningRateCeil, m.learningRate*1.2)
	case m.entropy < 0.3:
		m.learningRate = math.Max(learningRateFloor, m.learningRate*0.8)
	}
	return m.entropy
}

// #endregion entropy-balance

// #region expansion-factor

// ExpansionFactor computes the sinusoidal expansion of the recursion
// depth, scaled by entropy and the external performance signal, with a
// low-probability breakthrough boost, clamped to [0.1, 1.2].
func (m *Monitor) ExpansionFactor() float64 {
	base := math.Sin(m.depth*math.Pi/4) + 1
	entropyFactor := 1 + m.rng.Float64()*m.entropy
	perfFactor := 1 + m.performance()

	t := float64(m.clock().UnixNano()) / float64(time.Second)
	timeFactor := math.Sin(t/10) * 0.1

	expansion := (base*entropyFactor*perfFactor + timeFactor) / 3
	if m.rng.Float64() < breakthroughChance {
		expansion *= breakthroughBoost
	}
	if math.IsNaN(expansion) || math.IsInf(expansion, 0) {
		expansion = expansionFloor
	}
	return clampExpansion(expansion)
}

// Step advances the recursion depth by one expansion increment and
// returns the factor used.
func (m *Monitor) Step() float64 {
	exp := m.ExpansionFactor()
	m.depth += exp * 0.1
	return exp
}

func (m *Monitor) performance() float64 {
	if m.perf == nil {
		return 0
	}
	v := m.perf.Performance()
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion expansion-factor

// #region nudges

// ApplyLoopEscape forces an outward push after an exact loop: deeper
// recursion, more entropy, faster learning.
func (m *Monitor) ApplyLoopEscape() {
	m.depth += 0.5
	m.entropy = clampEntropy(m.entropy + 0.2)
	m.learningRate = math.Min(learningRateCeil, m.learningRate*1.1)
}

// ApplyNearLoopNudge applies the softer near-loop response: a small
// entropy rise and extra expansion weight.
func (m *Monitor) ApplyNearLoopNudge() {
	m.entropy = clampEntropy(m.entropy + 0.1)
	m.weights["expansion"] += 0.1
}

// #endregion nudges

// #region accessors

// Depth returns the current recursion depth.
func (m *Monitor) Depth() float64 { return m.depth }

// Entropy returns the last computed entropy balance.
func (m *Monitor) Entropy() float64 { return m.entropy }

// LearningRate returns the learning-rate-like parameter.
func (m *Monitor) LearningRate() float64 { return m.learningRate }

// Weights returns a copy of the weight distribution.
func (m *Monitor) Weights() map[string]float64 {
	out := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out
}

// #endregion accessors

// #region reset

// Reset returns every parameter to its initial value.
func (m *Monitor) Reset() {
	m.depth = initialDepth
	m.entropy = initialEntropy
	m.learningRate = initialLearningRate
	m.weights = initialWeights()
}

// #endregion reset

// #region clamps

func clampEntropy(v float64) float64 {
	if math.IsNaN(v) {
		return initialEntropy
	}
	if v < entropyFloor {
		return entropyFloor
	}
	if v > entropyCeil {
		return entropyCeil
	}
	return v
}

func clampExpansion(v float64) float64 {
	if v < expansionFloor {
		return expansionFloor
	}
	if v > expansionCeil {
		return expansionCeil
	}
	return v
}

// #endregion clamps
