package curator_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/curator"
)

// TestContractionLaw: whenever Apply converges the result is a K-contraction
// of the input and a prefix of it; when it does not, VerifyContraction says so.
func TestContractionLaw(t *testing.T) {
	c, err := curator.New(curator.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("apply contracts or reports non-convergence", prop.ForAll(
		func(parts []string, repeat int) bool {
			in := strings.Repeat(strings.Join(parts, ""), repeat)
			out, tr := c.Apply(in)
			if !strings.HasPrefix(in, out) {
				return false
			}
			if tr.Converged {
				return c.Metric(out) <= c.Metric(in)*c.K()+curator.DefaultEpsilon &&
					c.VerifyContraction(in, out)
			}
			return !c.VerifyContraction(in, out)
		},
		gen.SliceOf(gen.AnyString()),
		gen.IntRange(1, 40),
	))

	properties.Property("metric is non-negative and deterministic", prop.ForAll(
		func(s string) bool {
			m := c.Metric(s)
			return m >= 0 && m == c.Metric(s)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
