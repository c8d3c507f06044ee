package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Average is the arithmetic mean of the finite values, 0 for none.
func Average(values []float64) float64 {
	finite := finiteOnly(values)
	if len(finite) == 0 {
		return 0
	}
	return stat.Mean(finite, nil)
}

// StdDev is the sample standard deviation of the finite values.
func StdDev(values []float64) float64 {
	finite := finiteOnly(values)
	if len(finite) < 2 {
		return 0
	}
	return stat.StdDev(finite, nil)
}

// MaxValue is the largest finite value, 0 for none.
func MaxValue(values []float64) float64 {
	max := 0.0
	found := false
	for _, v := range values {
		if !IsFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	if !found {
		return 0
	}
	return max
}

// Sum adds the finite values.
func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		if IsFinite(v) {
			total += v
		}
	}
	return total
}

// RelativeChange is (end-start)/start, 0 when start is 0.
func RelativeChange(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start
}

// PctChange is RelativeChange expressed in percent.
func PctChange(start, end float64) float64 {
	return RelativeChange(start, end) * 100.0
}

// SafeDiv divides, returning 0 for a non-positive denominator.
func SafeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// SafePositive maps non-finite and non-positive values to 0.
func SafePositive(v float64) float64 {
	if !IsFinite(v) || v <= 0 {
		return 0
	}
	return v
}

// Clamp bounds value to [minValue, maxValue].
func Clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Float64Ptr returns a pointer to a copy of v.
func Float64Ptr(v float64) *float64 {
	return &v
}

func finiteOnly(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if IsFinite(v) {
			out = append(out, v)
		}
	}
	return out
}
