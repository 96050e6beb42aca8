package frequentist

import (
	"math"

	"abstats/domain/experiment"
	"abstats/domain/statistics"
)

// Bisection bounds for the one-sided sequential p-value search. The alpha
// bracket is clamped away from 0 and 0.5, where the mixture parameter is
// undefined or degenerate.
const (
	bisectionTol      = 1e-6
	bisectionMaxIters = 100
	bisectionMinAlpha = 1e-5
	bisectionMaxAlpha = 0.4999
)

// SequentialRho is the mixture parameter of the confidence sequence
// (eq 161, Waudby-Smith et al., arXiv:2103.06476). One-sided sequences plug
// in 2*alpha.
func SequentialRho(alpha, tuningParameter float64, twoSided bool) float64 {
	a := alpha
	if !twoSided {
		a = 2 * alpha
	}
	return math.Sqrt((-2*math.Log(a) + math.Log(-2*math.Log(a)+1)) / tuningParameter)
}

// SequentialIntervalHalfwidth is the two-sided mixture-sequential halfwidth
// (eq 9, ibid.) for pooled sample size n and s2 = variance * n.
func SequentialIntervalHalfwidth(s2, n, tuningParameter, alpha float64) float64 {
	rho := SequentialRho(alpha, tuningParameter, true)
	nr2p1 := n*rho*rho + 1
	return math.Sqrt(s2) * math.Sqrt(2*nr2p1*math.Log(math.Sqrt(nr2p1)/alpha)/math.Pow(n*rho, 2))
}

// SequentialIntervalHalfwidthOneSided is the one-sided halfwidth (eq 134,
// ibid.), with the factor of 2 on alpha inside the logarithm.
func SequentialIntervalHalfwidthOneSided(s2, n, tuningParameter, alpha float64) float64 {
	rho := SequentialRho(alpha, tuningParameter, false)
	nr2p1 := n*rho*rho + 1
	part2 := 2 * nr2p1 / math.Pow(n*rho, 2)
	part3 := math.Log(1 + math.Sqrt(nr2p1)/(2*alpha))
	return math.Sqrt(s2 * part2 * part3)
}

// SequentialTTest is the anytime-valid member of the family: its interval
// is a confidence sequence that stays valid under continuous monitoring.
// It shares the fixed-sample point estimate, variance, and validity gates
// through the embedded TTest and overrides the interval and p-value
// policies.
type SequentialTTest struct {
	TTest
	tuningParameter float64
}

// NewSequentialTTest builds a sequential test; the embedded
// FrequentistConfig carries the shared fields unchanged.
func NewSequentialTTest(statA, statB statistics.Statistic, direction Direction, cfg experiment.SequentialConfig) *SequentialTTest {
	return &SequentialTTest{
		TTest:           *NewTTest(statA, statB, direction, cfg.FrequentistConfig),
		tuningParameter: cfg.SequentialTuningParameter,
	}
}

// NewSequentialTwoSidedTTest tests H1: meanB != meanA under monitoring.
func NewSequentialTwoSidedTTest(statA, statB statistics.Statistic, cfg experiment.SequentialConfig) *SequentialTTest {
	return NewSequentialTTest(statA, statB, TwoSided, cfg)
}

// NewSequentialOneSidedTreatmentGreaterTTest tests H1: meanB > meanA.
func NewSequentialOneSidedTreatmentGreaterTTest(statA, statB statistics.Statistic, cfg experiment.SequentialConfig) *SequentialTTest {
	return NewSequentialTTest(statA, statB, TreatmentGreater, cfg)
}

// NewSequentialOneSidedTreatmentLesserTTest tests H1: meanB < meanA.
func NewSequentialOneSidedTreatmentLesserTTest(statA, statB statistics.Statistic, cfg experiment.SequentialConfig) *SequentialTTest {
	return NewSequentialTTest(statA, statB, TreatmentLesser, cfg)
}

// n pools both variations; the confidence-sequence width is driven by it.
func (s *SequentialTTest) n() float64 {
	return s.statA.SampleSize() + s.statB.SampleSize()
}

func (s *SequentialTTest) halfwidth() float64 {
	s2 := s.Variance() * s.n()
	if s.direction == TwoSided {
		return SequentialIntervalHalfwidth(s2, s.n(), s.tuningParameter, s.alpha)
	}
	return SequentialIntervalHalfwidthOneSided(s2, s.n(), s.tuningParameter, s.alpha)
}

func (s *SequentialTTest) confidenceInterval() [2]float64 {
	switch s.direction {
	case TreatmentGreater:
		return OneSidedInterval(s.PointEstimate(), s.halfwidth(), false)
	case TreatmentLesser:
		return OneSidedInterval(s.PointEstimate(), s.halfwidth(), true)
	default:
		return TwoSidedInterval(s.PointEstimate(), s.halfwidth())
	}
}

func (s *SequentialTTest) sequentialOneSided() bool {
	return s.direction != TwoSided
}

// ComputeResult runs the shared validity gates with the sequential
// policies.
func (s *SequentialTTest) ComputeResult() experiment.TestResult {
	return s.run(s)
}

func (s *SequentialTTest) computePValue() pValueResult {
	if s.direction == TwoSided {
		return pValueOf(s.twoSidedPValue())
	}
	return s.oneSidedPValue()
}

// twoSidedPValue inverts the mixture martingale e-value at the observed
// statistic (eq 155, ibid., reparameterized).
func (s *SequentialTTest) twoSidedPValue() float64 {
	rho := SequentialRho(s.alpha, s.tuningParameter, true)
	st2 := math.Pow(s.PointEstimate()-s.testValue, 2) * s.n() / s.Variance()
	nr2p1 := s.n()*rho*rho + 1
	evalue := math.Exp(rho*rho*st2/(2*nr2p1)) / math.Sqrt(nr2p1)
	return math.Min(1/evalue, 1)
}

// oneSidedPValue has no closed form. It bisects on alpha until the
// relevant confidence bound crosses zero, constructing a fresh nested test
// per iteration so concurrent callers never share state. Failure to meet
// the tolerance within the iteration budget is a genuine computational
// failure and is reported as such, never silently defaulted.
func (s *SequentialTTest) oneSidedPValue() pValueResult {
	lesser := s.direction == TreatmentLesser
	ciIndex := 0
	if lesser {
		ciIndex = 1
	}

	boundAt := func(alpha float64) float64 {
		cfg := experiment.SequentialConfig{
			FrequentistConfig: experiment.FrequentistConfig{
				Alpha:             alpha,
				TestValue:         s.testValue,
				DifferenceType:    s.differenceType(),
				TrafficPercentage: s.trafficPercentage,
				TotalUsers:        s.totalUsers,
				PhaseLengthDays:   s.phaseLengthDays,
			},
			SequentialTuningParameter: s.tuningParameter,
		}
		nested := NewSequentialTTest(s.statA, s.statB, s.direction, cfg)
		return nested.confidenceInterval()[ciIndex]
	}

	minAlpha := bisectionMinAlpha
	maxAlpha := bisectionMaxAlpha

	// Smaller alpha widens the interval, larger alpha narrows it. If the
	// bound is already on the null side at the widest interval, or still on
	// the non-null side at the narrowest, the bracket endpoint is the
	// answer.
	boundWide := boundAt(minAlpha)
	boundNarrow := boundAt(maxAlpha)
	if lesser {
		if boundWide < 0 {
			return pValueOf(minAlpha)
		}
		if boundNarrow > 0 {
			return pValueOf(maxAlpha)
		}
	} else {
		if boundWide > 0 {
			return pValueOf(minAlpha)
		}
		if boundNarrow < 0 {
			return pValueOf(maxAlpha)
		}
	}

	thisAlpha := 0.5 * (minAlpha + maxAlpha)
	diff := math.Inf(1)
	for i := 0; i < bisectionMaxIters; i++ {
		diff = boundAt(thisAlpha)
		if lesser {
			if diff > 0 {
				minAlpha = thisAlpha
			} else {
				maxAlpha = thisAlpha
			}
		} else {
			if diff < 0 {
				minAlpha = thisAlpha
			} else {
				maxAlpha = thisAlpha
			}
		}
		thisAlpha = 0.5 * (minAlpha + maxAlpha)
		if math.Abs(diff) < bisectionTol {
			break
		}
	}
	if math.Abs(diff) < bisectionTol {
		return pValueOf(thisAlpha)
	}
	return pValueResult{errMessage: experiment.NumericalPValueNotConverged}
}
