package frequentist

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"abstats/domain/experiment"
	"abstats/domain/statistics"
)

// Direction selects which tail(s) of the test carry the alternative.
type Direction int

const (
	TwoSided Direction = iota
	TreatmentGreater
	TreatmentLesser
)

// Test is the public contract of every member of the test family.
type Test interface {
	ComputeResult() experiment.TestResult
}

// SelectTest picks the concrete policy for a family/direction combination.
func SelectTest(statA, statB statistics.Statistic, direction Direction, sequential bool, cfg experiment.SequentialConfig) Test {
	if sequential {
		return NewSequentialTTest(statA, statB, direction, cfg)
	}
	return NewTTest(statA, statB, direction, cfg.FrequentistConfig)
}

// pValueResult pairs a possibly-missing p-value with the reason it is
// missing.
type pValueResult struct {
	pValue     *float64
	errMessage experiment.PValueErrorMessage
}

func pValueOf(p float64) pValueResult {
	return pValueResult{pValue: &p}
}

// variant is the policy surface a concrete test supplies to the shared
// result assembly: the tail-probability logic, the interval shape, and
// whether the one-sided sequential alpha gate applies.
type variant interface {
	computePValue() pValueResult
	confidenceInterval() [2]float64
	sequentialOneSided() bool
}

// TTest is the fixed-sample Welch t-test with unequal variances. The
// direction field selects the two-sided or one-sided policy; sequential
// tests build on it via embedding. All computation is pure and per-call;
// a TTest holds no mutable state.
type TTest struct {
	statA, statB statistics.Statistic
	direction    Direction

	alpha             float64
	testValue         float64
	relative          bool
	scaled            bool
	trafficPercentage float64
	totalUsers        float64
	phaseLengthDays   float64
}

// NewTTest copies the config fields the test consumes. statA is the
// baseline variation, statB the treatment.
func NewTTest(statA, statB statistics.Statistic, direction Direction, cfg experiment.FrequentistConfig) *TTest {
	return &TTest{
		statA:             statA,
		statB:             statB,
		direction:         direction,
		alpha:             cfg.Alpha,
		testValue:         cfg.TestValue,
		relative:          cfg.DifferenceType == experiment.DifferenceRelative,
		scaled:            cfg.DifferenceType == experiment.DifferenceScaled,
		trafficPercentage: cfg.TrafficPercentage,
		totalUsers:        cfg.TotalUsers,
		phaseLengthDays:   cfg.PhaseLengthDays,
	}
}

// NewTwoSidedTTest tests H1: meanB != meanA.
func NewTwoSidedTTest(statA, statB statistics.Statistic, cfg experiment.FrequentistConfig) *TTest {
	return NewTTest(statA, statB, TwoSided, cfg)
}

// NewOneSidedTreatmentGreaterTTest tests H1: meanB > meanA.
func NewOneSidedTreatmentGreaterTTest(statA, statB statistics.Statistic, cfg experiment.FrequentistConfig) *TTest {
	return NewTTest(statA, statB, TreatmentGreater, cfg)
}

// NewOneSidedTreatmentLesserTTest tests H1: meanB < meanA.
func NewOneSidedTreatmentLesserTTest(statA, statB statistics.Statistic, cfg experiment.FrequentistConfig) *TTest {
	return NewTTest(statA, statB, TreatmentLesser, cfg)
}

// PointEstimate is the configured difference of the two variation means.
func (t *TTest) PointEstimate() float64 {
	return Difference(t.statA.Mean(), t.statB.Mean(), t.relative, t.statA.UnadjustedMean())
}

// Variance dispatches on the statistic pair's capabilities: the CUPED
// formulas apply only when both sides carry the matching adjustment and the
// effect is relative.
func (t *TTest) Variance() float64 {
	if a, b, ok := statistics.RegressionAdjustedPair(t.statA, t.statB); ok && t.relative {
		return CupedRelativeVariance(a, b)
	}
	if a, b, ok := statistics.RegressionAdjustedRatioPair(t.statA, t.statB); ok && t.relative {
		return CupedRelativeRatioVariance(a, b)
	}
	return Variance(
		t.statA.Variance(), t.statA.UnadjustedMean(), t.statA.SampleSize(),
		t.statB.Variance(), t.statB.UnadjustedMean(), t.statB.SampleSize(),
		t.relative,
	)
}

// criticalValue is the standardized test statistic against the null offset.
func (t *TTest) criticalValue() float64 {
	return (t.PointEstimate() - t.testValue) / math.Sqrt(t.Variance())
}

// dof is the Welch-Satterthwaite approximation.
func (t *TTest) dof() float64 {
	va, na := t.statA.Variance(), t.statA.SampleSize()
	vb, nb := t.statB.Variance(), t.statB.SampleSize()
	num := math.Pow(vb/nb+va/na, 2)
	den := vb*vb/(nb*nb*(nb-1)) + va*va/(na*na*(na-1))
	return num / den
}

func (t *TTest) tDist() distuv.StudentsT {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: t.dof()}
}

func (t *TTest) computePValue() pValueResult {
	td := t.tDist()
	switch t.direction {
	case TreatmentGreater:
		return pValueOf(1 - td.CDF(t.criticalValue()))
	case TreatmentLesser:
		return pValueOf(td.CDF(t.criticalValue()))
	default:
		return pValueOf(2 * (1 - td.CDF(math.Abs(t.criticalValue()))))
	}
}

func (t *TTest) confidenceInterval() [2]float64 {
	se := math.Sqrt(t.Variance())
	switch t.direction {
	case TreatmentGreater:
		halfwidth := t.tDist().Quantile(1-t.alpha) * se
		return OneSidedInterval(t.PointEstimate(), halfwidth, false)
	case TreatmentLesser:
		halfwidth := t.tDist().Quantile(1-t.alpha) * se
		return OneSidedInterval(t.PointEstimate(), halfwidth, true)
	default:
		halfwidth := t.tDist().Quantile(1-t.alpha/2) * se
		return TwoSidedInterval(t.PointEstimate(), halfwidth)
	}
}

func (t *TTest) sequentialOneSided() bool { return false }

func (t *TTest) hasZeroVariance() bool {
	return t.statA.Variance() <= 0 || t.statB.Variance() <= 0
}

func (t *TTest) differenceType() experiment.DifferenceType {
	switch {
	case t.relative:
		return experiment.DifferenceRelative
	case t.scaled:
		return experiment.DifferenceScaled
	default:
		return experiment.DifferenceAbsolute
	}
}

// ComputeResult runs the validity gates and assembles the result.
func (t *TTest) ComputeResult() experiment.TestResult {
	return t.run(t)
}

// defaultOutput is the canonical uninformative result returned when the
// analysis cannot be performed adequately.
func defaultOutput(errMessage experiment.ErrorMessage, pValueErrMessage experiment.PValueErrorMessage) experiment.TestResult {
	one := 1.0
	return experiment.TestResult{
		Expected:           0,
		CI:                 [2]float64{0, 0},
		PValue:             &one,
		PValueErrorMessage: pValueErrMessage,
		Uplift:             experiment.Uplift{Dist: "normal"},
		ErrorMessage:       errMessage,
	}
}

// run applies the validity gates in order, short-circuiting to the default
// output, then assembles the result from the variant's p-value and interval
// policies. Degenerate inputs are data, not faults: every branch returns a
// well-formed result.
func (t *TTest) run(v variant) experiment.TestResult {
	if t.statA.Mean() == 0 {
		return defaultOutput(experiment.BaselineVariationZero, "")
	}
	if t.statA.UnadjustedMean() == 0 {
		return defaultOutput(experiment.BaselineVariationZero, "")
	}
	if t.hasZeroVariance() {
		return defaultOutput(experiment.ZeroNegativeVariance, "")
	}
	if v.sequentialOneSided() && t.alpha >= 0.5 {
		return defaultOutput("", experiment.AlphaTooLargeForSequentialOneSided)
	}

	pv := v.computePValue()
	result := experiment.TestResult{
		Expected:           t.PointEstimate(),
		CI:                 v.confidenceInterval(),
		PValue:             pv.pValue,
		PValueErrorMessage: pv.errMessage,
		Uplift: experiment.Uplift{
			Dist:   "normal",
			Mean:   t.PointEstimate(),
			Stddev: math.Sqrt(t.Variance()),
		},
	}
	if t.scaled {
		result = t.scaleResult(result)
	}
	return result
}

// scaleResult rescales an absolute-impact result to a total-population
// estimate using traffic allocation and experiment duration.
func (t *TTest) scaleResult(result experiment.TestResult) experiment.TestResult {
	if t.phaseLengthDays == 0 || t.trafficPercentage == 0 {
		return defaultOutput(experiment.ZeroScaledVariation, "")
	}
	if !statistics.SupportsScaledImpact(t.statA) {
		return defaultOutput(experiment.StatisticTypeMismatchForScaling, "")
	}
	if t.totalUsers == 0 {
		return defaultOutput(experiment.NoUnitsInVariation, "")
	}
	adjustment := t.totalUsers / (t.trafficPercentage * t.phaseLengthDays)
	return experiment.TestResult{
		Expected:           result.Expected * adjustment,
		CI:                 [2]float64{result.CI[0] * adjustment, result.CI[1] * adjustment},
		PValue:             result.PValue,
		PValueErrorMessage: result.PValueErrorMessage,
		Uplift: experiment.Uplift{
			Dist:   result.Uplift.Dist,
			Mean:   result.Uplift.Mean * adjustment,
			Stddev: result.Uplift.Stddev * adjustment,
		},
	}
}
