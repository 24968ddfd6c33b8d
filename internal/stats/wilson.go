package stats

import "math"

// WilsonInterval returns the Wilson score interval for successes out of
// trials at the given two-sided confidence. Zero trials yield (0, 0).
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}

	z := ZScore(confidence)
	n := float64(trials)
	p := float64(successes) / n
	z2 := z * z

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	spread := z / denom * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	return math.Max(0, center-spread), math.Min(1, center+spread)
}

// ZScore is the two-sided critical value for a confidence level, e.g.
// 0.95 -> 1.96.
func ZScore(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		return math.Inf(1)
	}
	return math.Sqrt2 * math.Erfinv(confidence)
}
