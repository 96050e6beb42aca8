package frequentist

import "math"

// OneSidedInterval builds [-inf, point+halfwidth] when lesser, otherwise
// [point-halfwidth, +inf].
func OneSidedInterval(point, halfwidth float64, lesser bool) [2]float64 {
	if lesser {
		return [2]float64{math.Inf(-1), point + halfwidth}
	}
	return [2]float64{point - halfwidth, math.Inf(1)}
}

// TwoSidedInterval builds the symmetric interval around point.
func TwoSidedInterval(point, halfwidth float64) [2]float64 {
	return [2]float64{point - halfwidth, point + halfwidth}
}
