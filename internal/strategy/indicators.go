package strategy

import "math"

// tail returns the last n values (or all of them when fewer exist).
func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// volatilityPct is the population standard deviation of values as a
// percentage of their mean.
func volatilityPct(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0, false
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))
	return std / mean * 100, true
}

// linearForecast fits y = a + b*x over x = 0..n-1 by ordinary least squares
// and returns the projection at x = n.
func linearForecast(values []float64) (float64, bool) {
	n := float64(len(values))
	if len(values) < 2 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	return intercept + slope*n, true
}

func pctChange(current, previous float64) (float64, bool) {
	if previous == 0 || math.IsNaN(previous) || math.IsInf(previous, 0) {
		return 0, false
	}
	return (current - previous) / previous * 100, true
}
