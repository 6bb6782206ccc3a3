package source

import "math"

// MuLawCompress applies mu-law companding to x, whose peak magnitude is
// xmax, producing values bounded by ymax. mu = 0 returns a copy of x.
func MuLawCompress(x []float64, mu, xmax, ymax float64) []float64 {
	out := make([]float64, len(x))
	if mu == 0 || xmax == 0 {
		copy(out, x)
		return out
	}
	norm := math.Log1p(mu)
	for i, v := range x {
		out[i] = ymax * math.Log1p(mu*math.Abs(v)/xmax) * sign(v) / norm
	}
	return out
}

// MuLawExpand inverts MuLawCompress.
func MuLawExpand(y []float64, mu, xmax, ymax float64) []float64 {
	out := make([]float64, len(y))
	if mu == 0 || ymax == 0 {
		copy(out, y)
		return out
	}
	for i, v := range y {
		out[i] = xmax * (math.Pow(1+mu, math.Abs(v)/ymax) - 1) * sign(v) / mu
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
