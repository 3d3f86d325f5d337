// Package contact solves for the envelope contact price: the unique quantized
// price p at which the 20-session moving average, depressed by the fixed -20%
// envelope and rounded up to its own tick, equals p itself.
package contact

import (
	"fmt"
	"math"

	"github.com/hskang/krx-signals/internal/tick"
)

// envelopeDivisor comes from solving p = 0.8*(S19+p)/20 in the continuous
// relaxation: p = S19/24.
const envelopeDivisor = 24.0

// maxIterations bounds the fixed-point search. Exceeding it signals a tick
// schedule inconsistency, not a transient condition.
const maxIterations = 4096

// UnsolvedError reports that the fixed-point iteration exceeded its bound.
type UnsolvedError struct {
	S19        float64
	Iterations int
}

func (e *UnsolvedError) Error() string {
	return fmt.Sprintf("contact price unsolved for S19=%v after %d iterations", e.S19, e.Iterations)
}

// InvalidSumError reports a non-positive or non-finite 19-close sum.
type InvalidSumError struct {
	S19 float64
}

func (e *InvalidSumError) Error() string {
	return fmt.Sprintf("invalid 19-close sum %v: must be finite and > 0", e.S19)
}

// Solver finds contact prices against one tick schedule.
type Solver struct {
	sched tick.Schedule
}

// NewSolver returns a Solver for the given schedule.
func NewSolver(sched tick.Schedule) *Solver {
	return &Solver{sched: sched}
}

// Solution carries the accepted price plus the search internals, for
// diagnostics and tests.
type Solution struct {
	Price      float64 // Accepted contact price (whole won, on tick)
	XStar      float64 // Unconstrained real fixed point S19/24
	Step       float64 // Tick size at the accepted price
	Upper      float64 // Acceptance upper bound at the final step
	Iterations int
}

// Solve returns the contact price for the given 19-close sum.
func (s *Solver) Solve(s19 float64) (float64, error) {
	sol, err := s.SolveDebug(s19)
	if err != nil {
		return 0, err
	}
	return sol.Price, nil
}

// SolveDebug runs the fixed-point search and returns the full Solution.
//
// Candidate generation uses the exact-match-escalates policy: if x* already
// sits on a tick the search starts one tick above it.
func (s *Solver) SolveDebug(s19 float64) (Solution, error) {
	if s19 <= 0 || math.IsNaN(s19) || math.IsInf(s19, 0) {
		return Solution{}, &InvalidSumError{S19: s19}
	}

	xStar := s19 / envelopeDivisor
	p, err := s.sched.StrictlyAbove(xStar)
	if err != nil {
		return Solution{}, fmt.Errorf("initial candidate: %w", err)
	}

	for i := 1; i <= maxIterations; i++ {
		step, err := s.sched.SizeAt(p)
		if err != nil {
			return Solution{}, fmt.Errorf("tick size at candidate %v: %w", p, err)
		}
		upper := (s19 + 25*step) / envelopeDivisor
		if xStar <= p && p < upper {
			return Solution{
				Price:      p,
				XStar:      xStar,
				Step:       step,
				Upper:      upper,
				Iterations: i,
			}, nil
		}
		p += step
	}

	return Solution{}, &UnsolvedError{S19: s19, Iterations: maxIterations}
}

// Verify independently recomputes the -20% envelope from (S19+p)/20 and
// confirms that rounding it up to its own tick reproduces p. Test companion;
// not used on the evaluation path.
func (s *Solver) Verify(s19, p float64) bool {
	ma20 := (s19 + p) / 20
	envelope := ma20 * 0.8
	q, err := s.sched.RoundUp(envelope)
	if err != nil {
		return false
	}
	return q == p
}
