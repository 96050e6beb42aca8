package statistics

import (
	"errors"
	"fmt"

	montstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Validation errors for statistic construction. Degenerate values that can
// legitimately occur in aggregated data (zero variance, zero mean) are NOT
// errors; they are carried through and flagged by the engine.
var (
	ErrNegativeSampleSize = errors.New("sample size must be non-negative")
	ErrInvalidProportion  = errors.New("proportion sum must lie in [0, n]")
)

// Statistic is the read surface every per-variation summary statistic
// exposes to the test engine.
type Statistic interface {
	// SampleSize returns n, the number of units aggregated into the statistic.
	SampleSize() float64
	// Mean is the (possibly adjusted) estimate of the variation mean.
	Mean() float64
	// Variance is the per-unit variance of the estimate.
	Variance() float64
	// UnadjustedMean is the denominator used for relative effects. It equals
	// Mean for statistics without a regression adjustment.
	UnadjustedMean() float64
}

// SampleMean summarizes a numeric metric by its sufficient statistics.
type SampleMean struct {
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sum_squares"`
	N          int64   `json:"n"`
}

// NewSampleMean validates and builds a sample-mean statistic from sums.
func NewSampleMean(sum, sumSquares float64, n int64) (SampleMean, error) {
	if n < 0 {
		return SampleMean{}, fmt.Errorf("sample mean: %w (n=%d)", ErrNegativeSampleSize, n)
	}
	return SampleMean{Sum: sum, SumSquares: sumSquares, N: n}, nil
}

// NewSampleMeanFromSamples aggregates raw per-unit values into a statistic.
func NewSampleMeanFromSamples(values []float64) (SampleMean, error) {
	sum, err := montstats.Sum(values)
	if err != nil {
		return SampleMean{}, fmt.Errorf("sample mean from raw values: %w", err)
	}
	sumSquares := 0.0
	for _, v := range values {
		sumSquares += v * v
	}
	return SampleMean{Sum: sum, SumSquares: sumSquares, N: int64(len(values))}, nil
}

func (s SampleMean) SampleSize() float64 { return float64(s.N) }

func (s SampleMean) Mean() float64 {
	if s.N == 0 {
		return 0
	}
	return s.Sum / float64(s.N)
}

func (s SampleMean) Variance() float64 {
	if s.N <= 1 {
		return 0
	}
	n := float64(s.N)
	return (s.SumSquares - s.Sum*s.Sum/n) / (n - 1)
}

func (s SampleMean) UnadjustedMean() float64 { return s.Mean() }

// Proportion summarizes a binomial metric: Sum successes out of N units.
type Proportion struct {
	Sum float64 `json:"sum"`
	N   int64   `json:"n"`
}

// NewProportion validates and builds a proportion statistic.
func NewProportion(sum float64, n int64) (Proportion, error) {
	if n < 0 {
		return Proportion{}, fmt.Errorf("proportion: %w (n=%d)", ErrNegativeSampleSize, n)
	}
	if sum < 0 || sum > float64(n) {
		return Proportion{}, fmt.Errorf("proportion: %w (sum=%v, n=%d)", ErrInvalidProportion, sum, n)
	}
	return Proportion{Sum: sum, N: n}, nil
}

func (s Proportion) SampleSize() float64 { return float64(s.N) }

func (s Proportion) Mean() float64 {
	if s.N == 0 {
		return 0
	}
	return s.Sum / float64(s.N)
}

func (s Proportion) Variance() float64 {
	p := s.Mean()
	return p * (1 - p)
}

func (s Proportion) UnadjustedMean() float64 { return s.Mean() }

// RegressionAdjusted is a CUPED statistic: a post-period outcome adjusted by
// a pre-period covariate with coefficient Theta. Mean is the adjusted mean;
// UnadjustedMean keeps the raw post-period mean for relative effects.
type RegressionAdjusted struct {
	N                    int64      `json:"n"`
	Post                 SampleMean `json:"post_statistic"`
	Pre                  SampleMean `json:"pre_statistic"`
	PostPreSumOfProducts float64    `json:"post_pre_sum_of_products"`
	Theta                float64    `json:"theta"`
}

func (s RegressionAdjusted) SampleSize() float64 { return float64(s.N) }

func (s RegressionAdjusted) Mean() float64 {
	return s.Post.Mean() - s.Theta*s.Pre.Mean()
}

func (s RegressionAdjusted) UnadjustedMean() float64 { return s.Post.Mean() }

// Covariance is the sample covariance between the post and pre outcomes.
func (s RegressionAdjusted) Covariance() float64 {
	if s.N <= 1 {
		return 0
	}
	n := float64(s.N)
	return (s.PostPreSumOfProducts - s.Post.Sum*s.Pre.Sum/n) / (n - 1)
}

func (s RegressionAdjusted) Variance() float64 {
	return s.Post.Variance() + s.Theta*s.Theta*s.Pre.Variance() - 2*s.Theta*s.Covariance()
}

// RegressionAdjustedRatio is a CUPED ratio metric: numerator (M) and
// denominator (D) statistics for post and pre periods, plus the delta-method
// gradient Nabla over (m_post, d_post, m_pre, d_pre) and the covariance
// matrix Lambda of those component means.
type RegressionAdjustedRatio struct {
	N      int64         `json:"n"`
	MPost  SampleMean    `json:"m_statistic_post"`
	DPost  SampleMean    `json:"d_statistic_post"`
	MPre   SampleMean    `json:"m_statistic_pre"`
	DPre   SampleMean    `json:"d_statistic_pre"`
	Theta  float64       `json:"theta"`
	Nabla  *mat.VecDense `json:"-"`
	Lambda *mat.SymDense `json:"-"`
}

func (s RegressionAdjustedRatio) SampleSize() float64 { return float64(s.N) }

func (s RegressionAdjustedRatio) Mean() float64 {
	if s.DPost.Mean() == 0 {
		return 0
	}
	adjusted := s.MPost.Mean() / s.DPost.Mean()
	if s.Theta != 0 && s.DPre.Mean() != 0 {
		adjusted -= s.Theta * (s.MPre.Mean() / s.DPre.Mean())
	}
	return adjusted
}

func (s RegressionAdjustedRatio) UnadjustedMean() float64 {
	if s.DPost.Mean() == 0 {
		return 0
	}
	return s.MPost.Mean() / s.DPost.Mean()
}

// Variance is the per-unit delta-method variance nabla' Lambda nabla.
func (s RegressionAdjustedRatio) Variance() float64 {
	if s.Nabla == nil || s.Lambda == nil {
		return 0
	}
	return mat.Inner(s.Nabla, s.Lambda, s.Nabla)
}

// RegressionAdjustedPair reports whether both statistics carry a regression
// adjustment, returning the typed pair when they do. The engine uses this
// capability check to pick the CUPED variance formula.
func RegressionAdjustedPair(a, b Statistic) (RegressionAdjusted, RegressionAdjusted, bool) {
	ra, okA := a.(RegressionAdjusted)
	rb, okB := b.(RegressionAdjusted)
	return ra, rb, okA && okB
}

// RegressionAdjustedRatioPair is the ratio-metric analogue of
// RegressionAdjustedPair.
func RegressionAdjustedRatioPair(a, b Statistic) (RegressionAdjustedRatio, RegressionAdjustedRatio, bool) {
	ra, okA := a.(RegressionAdjustedRatio)
	rb, okB := b.(RegressionAdjustedRatio)
	return ra, rb, okA && okB
}

// SupportsScaledImpact reports whether a statistic's absolute effect can be
// rescaled to a total-population estimate. Ratio metrics cannot: their
// effect is not a per-unit count.
func SupportsScaledImpact(s Statistic) bool {
	switch s.(type) {
	case SampleMean, Proportion, RegressionAdjusted:
		return true
	default:
		return false
	}
}
