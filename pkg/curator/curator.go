// Package curator implements the contraction operator applied to proposal
// content, and the admissibility ratio against the anchor diameter.
package curator

import (
	"errors"
	"fmt"
	"math"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// Phi is the golden ratio; the default contraction factor is its inverse.
const Phi = 1.618033988749895

const (
	DefaultK             = 1 / Phi
	DefaultStripFraction = 0.10
	DefaultMaxIterations = 100
	DefaultEpsilon       = 1e-9
	DefaultMaxRatio      = 10.0

	// distinctWindow caps the denominator of the default metric.
	distinctWindow = 128
)

var ErrInvalidConfig = errors.New("curator: invalid configuration")

// MetricFunc maps content to a deterministic non-negative scalar.
type MetricFunc func(content string) float64

// DefaultMetric is runes * distinct / min(runes, 128). It grows with length
// and with lexical turbulence, and is zero only for empty content.
func DefaultMetric(content string) float64 {
	if content == "" {
		return 0
	}
	seen := make(map[rune]struct{})
	n := 0
	for _, r := range content {
		seen[r] = struct{}{}
		n++
	}
	return float64(n) * (float64(len(seen)) / float64(min(n, distinctWindow)))
}

type Config struct {
	K             float64
	StripFraction float64
	MaxIterations int
	Epsilon       float64
	MaxRatio      float64
}

func DefaultConfig() Config {
	return Config{
		K:             DefaultK,
		StripFraction: DefaultStripFraction,
		MaxIterations: DefaultMaxIterations,
		Epsilon:       DefaultEpsilon,
		MaxRatio:      DefaultMaxRatio,
	}
}

func (c Config) validate() error {
	switch {
	case !(c.K > 0 && c.K < 1):
		return fmt.Errorf("%w: k must be in (0,1), got %v", ErrInvalidConfig, c.K)
	case !(c.StripFraction > 0 && c.StripFraction < 1):
		return fmt.Errorf("%w: strip_fraction must be in (0,1), got %v", ErrInvalidConfig, c.StripFraction)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be >= 1, got %d", ErrInvalidConfig, c.MaxIterations)
	case c.Epsilon < 0 || math.IsNaN(c.Epsilon):
		return fmt.Errorf("%w: epsilon must be >= 0, got %v", ErrInvalidConfig, c.Epsilon)
	case !(c.MaxRatio > 0):
		return fmt.Errorf("%w: max_ratio must be positive, got %v", ErrInvalidConfig, c.MaxRatio)
	}
	return nil
}

// Trace describes one Apply run.
type Trace struct {
	Iterations   int
	MetricBefore float64
	MetricAfter  float64
	RunesBefore  int
	RunesAfter   int
	Converged    bool
}

// Mutation renders the trace as a manifest entry.
func (t Trace) Mutation(op contracts.MutationOp) contracts.Mutation {
	return contracts.Mutation{
		Op:           op,
		Iterations:   t.Iterations,
		MetricBefore: t.MetricBefore,
		MetricAfter:  t.MetricAfter,
		RunesBefore:  t.RunesBefore,
		RunesAfter:   t.RunesAfter,
	}
}

// Curator is stateless and safe for concurrent use.
type Curator struct {
	cfg    Config
	metric MetricFunc
}

// New returns a curator. A nil metric selects DefaultMetric.
func New(cfg Config, metric MetricFunc) (*Curator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if metric == nil {
		metric = DefaultMetric
	}
	return &Curator{cfg: cfg, metric: metric}, nil
}

func (c *Curator) Config() Config { return c.cfg }

func (c *Curator) K() float64 { return c.cfg.K }

func (c *Curator) Metric(content string) float64 {
	return c.metric(content)
}

// Apply strips a fixed fraction of the content from the tail, at least one
// rune per step, until the metric falls to K times its starting value or
// MaxIterations is reached. Content with zero metric is a fixed point and is
// returned unchanged.
func (c *Curator) Apply(content string) (string, Trace) {
	runes := []rune(content)
	m0 := c.metric(content)
	target := m0 * c.cfg.K
	tr := Trace{
		MetricBefore: m0,
		MetricAfter:  m0,
		RunesBefore:  len(runes),
		RunesAfter:   len(runes),
	}
	if m0 <= target {
		tr.Converged = true
		return content, tr
	}

	cur := content
	m := m0
	for tr.Iterations < c.cfg.MaxIterations && len(runes) > 0 {
		strip := int(float64(len(runes)) * c.cfg.StripFraction)
		if strip < 1 {
			strip = 1
		}
		runes = runes[:len(runes)-strip]
		cur = string(runes)
		m = c.metric(cur)
		tr.Iterations++
		if m <= target {
			break
		}
	}

	tr.MetricAfter = m
	tr.RunesAfter = len(runes)
	tr.Converged = m <= target
	return cur, tr
}

// VerifyContraction reports whether after is a K-contraction of before.
func (c *Curator) VerifyContraction(before, after string) bool {
	return c.metric(after) <= c.metric(before)*c.cfg.K+c.cfg.Epsilon
}

// Admissible measures content against the anchor diameter. A non-positive
// diameter admits nothing.
func (c *Curator) Admissible(content string, anchor contracts.Anchor) (float64, bool) {
	if !(anchor.Diameter > 0) {
		return math.Inf(1), false
	}
	ratio := c.metric(content) / anchor.Diameter
	return ratio, ratio <= c.cfg.MaxRatio
}
