package policy

import "math"

func sqrtSafe(x float64) float64 {
	if x < 0 {
		return 0
	}
	return math.Sqrt(x)
}

func logSafe(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return math.Log(x)
}

func expSafe(x float64) float64 { return math.Exp(x) }
