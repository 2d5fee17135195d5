// Package chart turns rolling sensor histories into fixed-size area charts:
// windowed buffering, axis scaling, coordinate mapping and SVG output.
package chart

import "math"

// noDataCeiling is the axis maximum used when there is nothing to scale.
const noDataCeiling = 1

// NiceMax rounds peak up to a readable axis ceiling. The magnitude of peak
// picks a power-of-two divisor and a decimal multiplier; the result is the
// next multiple of their product strictly above peak. Non-positive, NaN and
// infinite peaks yield a small positive ceiling.
func NiceMax(peak float64) float64 {
	if math.IsNaN(peak) || math.IsInf(peak, 0) || peak <= 0 {
		return noDataCeiling
	}

	size := math.Floor(math.Log2(peak))
	divisor := math.Pow(2, size-math.Mod(size, 10))
	ratio := peak / divisor

	var mult float64
	switch {
	case ratio < 5:
		mult = 2
	case ratio < 50:
		mult = 10
	case ratio < 500:
		mult = 100
	default:
		mult = 1000
	}

	step := mult * divisor
	return peak + step - math.Mod(peak, step)
}
