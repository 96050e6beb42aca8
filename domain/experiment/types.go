package experiment

// DifferenceType selects how the treatment effect is expressed.
type DifferenceType string

const (
	DifferenceAbsolute DifferenceType = "absolute"
	DifferenceRelative DifferenceType = "relative"
	DifferenceScaled   DifferenceType = "scaled"
)

// FrequentistConfig holds the numeric settings consumed by fixed-sample
// tests. Configs are immutable value objects: tests copy the fields they
// need at construction and never write back.
type FrequentistConfig struct {
	Alpha             float64        `json:"alpha"`
	TestValue         float64        `json:"test_value"`
	DifferenceType    DifferenceType `json:"difference_type"`
	TrafficPercentage float64        `json:"traffic_percentage"`
	TotalUsers        float64        `json:"total_users"`
	PhaseLengthDays   float64        `json:"phase_length_days"`
}

// DefaultFrequentistConfig returns the standard settings: alpha 0.05,
// relative effects, full traffic, one-day phase.
func DefaultFrequentistConfig() FrequentistConfig {
	return FrequentistConfig{
		Alpha:             0.05,
		TestValue:         0,
		DifferenceType:    DifferenceRelative,
		TrafficPercentage: 1,
		PhaseLengthDays:   1,
	}
}

// SequentialConfig extends the fixed-sample settings with the mixture
// tuning parameter controlling confidence-sequence width growth. The
// embedded FrequentistConfig is exactly what a nested fixed-sample test
// receives; no field stripping is ever needed.
type SequentialConfig struct {
	FrequentistConfig
	SequentialTuningParameter float64 `json:"sequential_tuning_parameter"`
}

// DefaultSequentialConfig returns DefaultFrequentistConfig plus the
// standard tuning parameter of 5000.
func DefaultSequentialConfig() SequentialConfig {
	return SequentialConfig{
		FrequentistConfig:         DefaultFrequentistConfig(),
		SequentialTuningParameter: 5000,
	}
}

// ErrorMessage identifies why a whole result is degenerate. The values are
// a closed enumeration of stable identifiers consumed downstream.
type ErrorMessage string

const (
	BaselineVariationZero           ErrorMessage = "BASELINE_VARIATION_ZERO"
	ZeroNegativeVariance            ErrorMessage = "ZERO_NEGATIVE_VARIANCE"
	ZeroScaledVariation             ErrorMessage = "ZERO_SCALED_VARIATION"
	NoUnitsInVariation              ErrorMessage = "NO_UNITS_IN_VARIATION"
	StatisticTypeMismatchForScaling ErrorMessage = "STATISTIC_TYPE_MISMATCH_FOR_SCALED_IMPACT"
)

// PValueErrorMessage identifies why a p-value specifically is missing or
// clamped while the rest of the result may still be informative.
type PValueErrorMessage string

const (
	NumericalPValueNotConverged        PValueErrorMessage = "NUMERICAL_PVALUE_NOT_CONVERGED"
	AlphaTooLargeForSequentialOneSided PValueErrorMessage = "ALPHA_GREATER_THAN_0.5_FOR_SEQUENTIAL_ONE_SIDED_TEST"
)

// Uplift describes the effect distribution for downstream visualization.
type Uplift struct {
	Dist   string  `json:"dist"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// TestResult is the output of one engine invocation. CI bounds may be
// infinite for one-sided tests. PValue is nil when the p-value could not be
// computed; PValueErrorMessage then carries the reason.
type TestResult struct {
	Expected           float64            `json:"expected"`
	CI                 [2]float64         `json:"ci"`
	PValue             *float64           `json:"p_value"`
	PValueErrorMessage PValueErrorMessage `json:"p_value_error_message,omitempty"`
	Uplift             Uplift             `json:"uplift"`
	ErrorMessage       ErrorMessage       `json:"error_message,omitempty"`
}
