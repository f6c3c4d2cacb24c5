package policy

import "math"

// Small dense linear algebra helpers for the contextual policies. No
// linear-algebra library appears anywhere in the retrieval pack, so this
// is hand-rolled over the standard library (see DESIGN.md).

func identity(n int) []float64 {
	m := make([]float64, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1
	}
	return m
}

// invert computes the inverse of an n x n matrix (row-major) via
// Gauss-Jordan elimination with partial pivoting. Returns ok=false on a
// singular (or near-singular) matrix.
func invert(m []float64, n int) ([]float64, bool) {
	a := make([]float64, len(m))
	copy(a, m)
	inv := identity(n)

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(a[col*n+col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(a[r*n+col]); v > best {
				best, pivot = v, r
			}
		}
		if best < 1e-12 {
			return nil, false
		}
		if pivot != col {
			swapRow(a, n, col, pivot)
			swapRow(inv, n, col, pivot)
		}
		pv := a[col*n+col]
		for c := 0; c < n; c++ {
			a[col*n+c] /= pv
			inv[col*n+c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := a[r*n+col]
			if factor == 0 {
				continue
			}
			for c := 0; c < n; c++ {
				a[r*n+c] -= factor * a[col*n+c]
				inv[r*n+c] -= factor * inv[col*n+c]
			}
		}
	}
	return inv, true
}

func swapRow(m []float64, n, i, j int) {
	for c := 0; c < n; c++ {
		m[i*n+c], m[j*n+c] = m[j*n+c], m[i*n+c]
	}
}

// invertOrPseudo tries a direct inverse, then a Tikhonov-regularized
// inverse (the standard pseudo-inverse stand-in for a near-singular
// design matrix), matching the original's inv -> pinv -> zero fallback
// chain for LinUCB/LinTS.
func invertOrPseudo(m []float64, n int) ([]float64, bool) {
	if inv, ok := invert(m, n); ok {
		return inv, true
	}
	reg := make([]float64, len(m))
	copy(reg, m)
	for i := 0; i < n; i++ {
		reg[i*n+i] += 1e-6
	}
	if inv, ok := invert(reg, n); ok {
		return inv, true
	}
	return nil, false
}

func matVec(m []float64, n int, v []float64) []float64 {
	out := make([]float64, n)
	for r := 0; r < n; r++ {
		sum := 0.0
		for c := 0; c < n; c++ {
			sum += m[r*n+c] * v[c]
		}
		out[r] = sum
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// outerAdd computes m += x * x^T for an n x n row-major matrix m.
func outerAdd(m []float64, n int, x []float64) {
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			m[r*n+c] += x[r] * x[c]
		}
	}
}

func vecAddScaled(dst []float64, x []float64, scale float64) {
	for i := range dst {
		dst[i] += x[i] * scale
	}
}

// cholesky computes the lower-triangular Cholesky factor of a symmetric
// positive-definite n x n matrix (row-major). Returns ok=false if the
// matrix is not PD to working precision.
func cholesky(m []float64, n int) ([]float64, bool) {
	l := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i*n+j]
			for k := 0; k < j; k++ {
				sum -= l[i*n+k] * l[j*n+k]
			}
			if i == j {
				if sum <= 1e-12 {
					return nil, false
				}
				l[i*n+j] = math.Sqrt(sum)
			} else {
				l[i*n+j] = sum / l[j*n+j]
			}
		}
	}
	return l, true
}
