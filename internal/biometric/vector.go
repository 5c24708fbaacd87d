package biometric

import (
	"gonum.org/v1/gonum/floats"
)

const normEpsilon = 1e-10

// Normalize returns a unit-length float64 copy of v.
func Normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	normalizeInPlace(out)
	return out
}

func normalizeInPlace(v []float64) {
	floats.Scale(1/(floats.Norm(v, 2)+normEpsilon), v)
}

// ToFloat32 converts a float64 vector to float32 storage form.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(Normalize(a), Normalize(b))
}

// Blend moves old towards next by alpha and renormalizes:
// normalize(old*(1-alpha) + next*alpha).
func Blend(old, next []float32, alpha float64) []float32 {
	o := Normalize(old)
	n := Normalize(next)
	floats.Scale(1-alpha, o)
	floats.AddScaled(o, alpha, n)
	normalizeInPlace(o)
	return ToFloat32(o)
}

// RunningMean folds v into the mean acc of n-1 previous samples and returns
// the mean of n samples. A nil acc starts a new mean.
func RunningMean(acc []float64, v []float32, n int) []float64 {
	if acc == nil || n <= 1 {
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	}
	for i, x := range v {
		acc[i] += (float64(x) - acc[i]) / float64(n)
	}
	return acc
}
