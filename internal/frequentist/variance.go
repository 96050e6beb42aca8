package frequentist

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"abstats/domain/statistics"
)

// Difference returns the treatment effect meanB - meanA, divided by the
// baseline's unadjusted mean when the effect is relative. A zero
// unadjustedMeanA falls back to meanA for statistics that do not track an
// unadjusted mean separately.
func Difference(meanA, meanB float64, relative bool, unadjustedMeanA float64) float64 {
	if unadjustedMeanA == 0 {
		unadjustedMeanA = meanA
	}
	if relative {
		return (meanB - meanA) / unadjustedMeanA
	}
	return meanB - meanA
}

// varianceOfRatios propagates the variance of meanM/meanD by a first-order
// delta method.
func varianceOfRatios(meanM, varM, meanD, varD, cov float64) float64 {
	return varM/(meanD*meanD) +
		varD*meanM*meanM/math.Pow(meanD, 4) -
		2*cov*meanM/math.Pow(meanD, 3)
}

// Variance returns the variance of the absolute or relative difference of
// two independent sample means. The relative case treats the covariance
// between the two groups as zero.
func Variance(varA, meanA, nA, varB, meanB, nB float64, relative bool) float64 {
	if relative {
		return varianceOfRatios(meanB, varB/nB, meanA, varA/nA, 0)
	}
	return varB/nB + varA/nA
}

// CupedRelativeVariance is the variance of the relative effect for a
// regression-adjusted pair: a treatment-side term from the adjusted
// variance, plus a control-side term from a first-order expansion of the
// ratio around the control's own adjusted mean. A zero denominator on
// either side is a degenerate input and yields 0, not a fault.
func CupedRelativeVariance(statA, statB statistics.RegressionAdjusted) float64 {
	denTrt := statB.SampleSize() * statA.UnadjustedMean() * statA.UnadjustedMean()
	denCtrl := statA.SampleSize() * statA.UnadjustedMean() * statA.UnadjustedMean()
	if denTrt == 0 || denCtrl == 0 {
		return 0
	}
	theta := statA.Theta

	numTrt := statB.Post.Variance() +
		theta*theta*statB.Pre.Variance() -
		2*theta*statB.Covariance()
	vTrt := numTrt / denTrt

	c := -statB.Post.Mean()
	numA := statA.Post.Variance() * c * c / (statA.Post.Mean() * statA.Post.Mean())
	numB := 2 * theta * statA.Covariance() * c / statA.Post.Mean()
	numC := theta * theta * statA.Pre.Variance()
	vCtrl := (numA + numB + numC) / denCtrl

	return vTrt + vCtrl
}

// CupedRelativeRatioVariance is the ratio-metric analogue of
// CupedRelativeVariance: per side, a combined gradient over the four ratio
// components is contracted against that side's covariance matrix and
// divided by its sample size. Zero control denominators yield 0.
func CupedRelativeRatioVariance(statA, statB statistics.RegressionAdjustedRatio) float64 {
	if statA.UnadjustedMean() == 0 || statA.DPost.Mean() == 0 {
		return 0
	}
	gAbs := statB.Mean() - statA.Mean()
	gRelDen := math.Abs(statA.UnadjustedMean())

	dPostA := statA.DPost.Mean()
	nablaCtrl0 := (-(gRelDen + gAbs) / dPostA) / (gRelDen * gRelDen)
	nablaCtrl1 := (statA.MPost.Mean()*gRelDen/(dPostA*dPostA) +
		statA.MPost.Mean()*gAbs/(dPostA*dPostA)) / (gRelDen * gRelDen)

	nablaA := mat.NewVecDense(4, []float64{
		nablaCtrl0,
		nablaCtrl1,
		-statA.Nabla.AtVec(2) / gRelDen,
		-statA.Nabla.AtVec(3) / gRelDen,
	})
	nablaB := mat.NewVecDense(4, nil)
	nablaB.ScaleVec(1/gRelDen, statB.Nabla)

	return mat.Inner(nablaA, statA.Lambda, nablaA)/statA.SampleSize() +
		mat.Inner(nablaB, statB.Lambda, nablaB)/statB.SampleSize()
}
