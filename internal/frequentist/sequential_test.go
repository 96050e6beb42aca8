package frequentist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abstats/domain/experiment"
	"abstats/domain/statistics"
)

func sequentialAbsoluteConfig() experiment.SequentialConfig {
	cfg := experiment.DefaultSequentialConfig()
	cfg.DifferenceType = experiment.DifferenceAbsolute
	return cfg
}

// shiftSampleMean shifts every underlying value by d, which moves the mean
// while keeping the sample variance identical.
func shiftSampleMean(s statistics.SampleMean, d float64) statistics.SampleMean {
	n := float64(s.N)
	return statistics.SampleMean{
		Sum:        s.Sum + n*d,
		SumSquares: s.SumSquares + 2*d*s.Sum + n*d*d,
		N:          s.N,
	}
}

// largeStat has mean 10 and unit sample variance over 500k units.
func largeStat() statistics.SampleMean {
	return statistics.SampleMean{Sum: 5e6, SumSquares: 5e7 + 499999, N: 500000}
}

func TestSequentialTwoSided_BasicResult(t *testing.T) {
	test := NewSequentialTwoSidedTTest(baselineStat(), treatmentStat(), sequentialAbsoluteConfig())
	result := test.ComputeResult()

	require.Empty(t, result.ErrorMessage)
	require.NotNil(t, result.PValue)
	assert.True(t, *result.PValue > 0 && *result.PValue <= 1)

	assert.InDelta(t, 1.0, result.Expected, 1e-12)
	assert.Less(t, result.CI[0], result.Expected)
	assert.Greater(t, result.CI[1], result.Expected)
}

func TestSequentialTwoSided_WiderThanFixedSample(t *testing.T) {
	cfg := sequentialAbsoluteConfig()
	seq := NewSequentialTwoSidedTTest(baselineStat(), treatmentStat(), cfg).ComputeResult()
	fixed := NewTwoSidedTTest(baselineStat(), treatmentStat(), cfg.FrequentistConfig).ComputeResult()

	// anytime validity costs width at any single look
	assert.Less(t, seq.CI[0], fixed.CI[0])
	assert.Greater(t, seq.CI[1], fixed.CI[1])
}

func TestSequentialTwoSided_PValueMonotoneInEffect(t *testing.T) {
	cfg := sequentialAbsoluteConfig()
	base := baselineStat()

	var prev = 2.0
	for _, shift := range []float64{0.5, 1.0, 2.0, 4.0} {
		result := NewSequentialTwoSidedTTest(base, shiftSampleMean(base, shift), cfg).ComputeResult()
		require.NotNil(t, result.PValue)
		assert.LessOrEqual(t, *result.PValue, prev, "shift %v", shift)
		prev = *result.PValue
	}
}

func TestSequentialTwoSided_EqualStatisticsGivePValueOne(t *testing.T) {
	result := NewSequentialTwoSidedTTest(baselineStat(), baselineStat(), sequentialAbsoluteConfig()).ComputeResult()
	require.NotNil(t, result.PValue)
	assert.Equal(t, 1.0, *result.PValue)
}

func TestSequentialRho(t *testing.T) {
	// two-sided, alpha 0.05, tuning 5000:
	// sqrt((-2 ln 0.05 + ln(-2 ln 0.05 + 1)) / 5000)
	want := math.Sqrt((-2*math.Log(0.05) + math.Log(-2*math.Log(0.05)+1)) / 5000)
	assert.InDelta(t, want, SequentialRho(0.05, 5000, true), 1e-15)

	// the one-sided mixture doubles alpha
	assert.InDelta(t, SequentialRho(0.1, 5000, true), SequentialRho(0.05, 5000, false), 1e-15)
}

func TestSequentialOneSided_AlphaGate(t *testing.T) {
	cfg := sequentialAbsoluteConfig()
	cfg.Alpha = 0.5

	result := NewSequentialOneSidedTreatmentGreaterTTest(baselineStat(), treatmentStat(), cfg).ComputeResult()

	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, experiment.AlphaTooLargeForSequentialOneSided, result.PValueErrorMessage)
	require.NotNil(t, result.PValue)
	assert.Equal(t, 1.0, *result.PValue)

	// the two-sided variant has no such gate
	twoSided := NewSequentialTwoSidedTTest(baselineStat(), treatmentStat(), cfg).ComputeResult()
	assert.Empty(t, twoSided.PValueErrorMessage)
}

func TestSequentialOneSided_BisectionRecoversBoundary(t *testing.T) {
	statA := largeStat()
	statB := shiftSampleMean(statA, 0.008)
	cfg := sequentialAbsoluteConfig()

	test := NewSequentialOneSidedTreatmentGreaterTTest(statA, statB, cfg)
	result := test.ComputeResult()

	require.Empty(t, result.ErrorMessage)
	require.Empty(t, result.PValueErrorMessage)
	require.NotNil(t, result.PValue)

	p := *result.PValue
	assert.Greater(t, p, bisectionMinAlpha)
	assert.Less(t, p, bisectionMaxAlpha)

	// the interval rebuilt at the recovered alpha must touch zero
	verify := sequentialAbsoluteConfig()
	verify.Alpha = p
	bound := NewSequentialOneSidedTreatmentGreaterTTest(statA, statB, verify).confidenceInterval()[0]
	assert.InDelta(t, 0.0, bound, 1e-4)
}

func TestSequentialOneSided_FastPaths(t *testing.T) {
	statA := largeStat()
	cfg := sequentialAbsoluteConfig()

	// overwhelming evidence: even the widest interval excludes zero
	huge := NewSequentialOneSidedTreatmentGreaterTTest(statA, shiftSampleMean(statA, 0.05), cfg)
	result := huge.ComputeResult()
	require.NotNil(t, result.PValue)
	assert.Equal(t, bisectionMinAlpha, *result.PValue)

	// effect in the wrong direction: every interval covers zero
	wrong := NewSequentialOneSidedTreatmentGreaterTTest(statA, shiftSampleMean(statA, -0.008), cfg)
	result = wrong.ComputeResult()
	require.NotNil(t, result.PValue)
	assert.Equal(t, bisectionMaxAlpha, *result.PValue)
}

func TestSequentialOneSided_LesserMirrorsGreater(t *testing.T) {
	statA := largeStat()
	cfg := sequentialAbsoluteConfig()

	greater := NewSequentialOneSidedTreatmentGreaterTTest(statA, shiftSampleMean(statA, 0.008), cfg).ComputeResult()
	lesser := NewSequentialOneSidedTreatmentLesserTTest(statA, shiftSampleMean(statA, -0.008), cfg).ComputeResult()

	require.NotNil(t, greater.PValue)
	require.NotNil(t, lesser.PValue)
	assert.InDelta(t, *greater.PValue, *lesser.PValue, 1e-6)

	assert.True(t, math.IsInf(greater.CI[1], 1))
	assert.True(t, math.IsInf(lesser.CI[0], -1))
}

func TestSequentialOneSided_IntervalShapes(t *testing.T) {
	cfg := sequentialAbsoluteConfig()

	greater := NewSequentialOneSidedTreatmentGreaterTTest(baselineStat(), treatmentStat(), cfg)
	gci := greater.confidenceInterval()
	assert.True(t, math.IsInf(gci[1], 1))
	assert.InDelta(t, greater.PointEstimate()-greater.halfwidth(), gci[0], 1e-12)

	lesser := NewSequentialOneSidedTreatmentLesserTTest(baselineStat(), treatmentStat(), cfg)
	lci := lesser.confidenceInterval()
	assert.True(t, math.IsInf(lci[0], -1))
	assert.InDelta(t, lesser.PointEstimate()+lesser.halfwidth(), lci[1], 1e-12)
}

func TestSequentialTTest_SharesValidityGates(t *testing.T) {
	zero := statistics.SampleMean{Sum: 0, SumSquares: 100, N: 100}
	result := NewSequentialTwoSidedTTest(zero, treatmentStat(), sequentialAbsoluteConfig()).ComputeResult()
	assert.Equal(t, experiment.BaselineVariationZero, result.ErrorMessage)

	constant := statistics.SampleMean{Sum: 100, SumSquares: 100, N: 100}
	result = NewSequentialTwoSidedTTest(baselineStat(), constant, sequentialAbsoluteConfig()).ComputeResult()
	assert.Equal(t, experiment.ZeroNegativeVariance, result.ErrorMessage)
}
