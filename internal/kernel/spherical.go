package kernel

import (
	"math"
	"math/cmplx"
)

// legendreDeg evaluates the normalized associated Legendre polynomials
// P_n^m(cos theta) for 0<=m<=n<=maxDeg, using the same three-term
// recurrence shape as original_source/kernels/helmholtz.h's getAnm()
// recursion. The result is indexed by idx(n,m). maxDeg may exceed t.P-1
// (M2L needs degrees up to 2(P-1)); Init builds Anm1/Anm2 to 2P to cover
// that.
func (t *Tables) legendreDeg(costheta, sintheta float64, maxDeg int) []float64 {
	out := make([]float64, idx(maxDeg, maxDeg)+1)
	out[idx(0, 0)] = 1
	for m := 0; m <= maxDeg; m++ {
		if m > 0 {
			out[idx(m, m)] = out[idx(m-1, m-1)] * t.Anm1[idx(m, m)] * (-sintheta)
		}
		if m < maxDeg {
			out[idx(m+1, m)] = out[idx(m, m)] * t.Anm1[idx(m+1, m)] * costheta
		}
		for n := m + 2; n <= maxDeg; n++ {
			out[idx(n, m)] = t.Anm1[idx(n, m)]*costheta*out[idx(n-1, m)] - t.Anm2[idx(n, m)]*out[idx(n-2, m)]
		}
	}
	return out
}

func (t *Tables) legendre(costheta, sintheta float64) []float64 {
	return t.legendreDeg(costheta, sintheta, t.P-1)
}

// cartesianToSpherical converts a displacement vector to (rho, costheta,
// sintheta, cosphi, sinphi), the form every kernel primitive below needs
// to evaluate solid harmonics.
func cartesianToSpherical(dx, dy, dz float64) (rho, costheta, sintheta, cosphi, sinphi float64) {
	rho = math.Sqrt(dx*dx + dy*dy + dz*dz)
	if rho < 1e-24 {
		return 0, 1, 0, 1, 0
	}
	costheta = dz / rho
	sintheta = math.Sqrt(math.Max(0, 1-costheta*costheta))
	rxy := math.Sqrt(dx*dx + dy*dy)
	if rxy < 1e-24 {
		cosphi, sinphi = 1, 0
	} else {
		cosphi, sinphi = dx/rxy, dy/rxy
	}
	return
}

// anglePowers returns cos(m*phi), sin(m*phi) for m=0..maxDeg via the
// angle-addition recurrence, shared by the Laplace and Helmholtz
// harmonic evaluators so neither duplicates the trig recursion.
func anglePowers(cp, sp float64, maxDeg int) (cosm, sinm []float64) {
	cosm = make([]float64, maxDeg+1)
	sinm = make([]float64, maxDeg+1)
	cosm[0], sinm[0] = 1, 0
	if maxDeg >= 1 {
		cosm[1], sinm[1] = cp, sp
	}
	for m := 2; m <= maxDeg; m++ {
		cosm[m] = cosm[m-1]*cp - sinm[m-1]*sp
		sinm[m] = sinm[m-1]*cp + cosm[m-1]*sp
	}
	return
}

func factorial(n int) float64 {
	f := 1.0
	for k := 2; k <= n; k++ {
		f *= float64(k)
	}
	return f
}

// solidHarmonicsDeg evaluates the regular (R) and singular (S) solid
// harmonics R_n^m, S_n^m for 0<=m<=n<=maxDeg at displacement (dx,dy,dz),
// folding the (n±m)! normalization directly into each table so the
// translation operators below reduce to plain complex sums (the
// Greengard-Rokhlin solid-harmonic translation theorems).
func (t *Tables) solidHarmonicsDeg(dx, dy, dz float64, maxDeg int) (r, s []complex128) {
	rho, ct, st, cp, sp := cartesianToSpherical(dx, dy, dz)
	y := t.legendreDeg(ct, st, maxDeg)

	n := idx(maxDeg, maxDeg) + 1
	r = make([]complex128, n)
	s = make([]complex128, n)

	rhoPow := make([]float64, maxDeg+1)
	rhoPow[0] = 1
	for i := 1; i <= maxDeg; i++ {
		rhoPow[i] = rhoPow[i-1] * rho
	}
	invRho := 0.0
	if rho > 1e-24 {
		invRho = 1 / rho
	}
	invRhoPow := make([]float64, maxDeg+2)
	invRhoPow[0] = invRho
	for i := 1; i <= maxDeg+1; i++ {
		invRhoPow[i] = invRhoPow[i-1] * invRho
	}

	cosmphi := make([]float64, maxDeg+1)
	sinmphi := make([]float64, maxDeg+1)
	cosmphi[0], sinmphi[0] = 1, 0
	if maxDeg >= 1 {
		cosmphi[1], sinmphi[1] = cp, sp
	}
	for m := 2; m <= maxDeg; m++ {
		cosmphi[m] = cosmphi[m-1]*cp - sinmphi[m-1]*sp
		sinmphi[m] = sinmphi[m-1]*cp + cosmphi[m-1]*sp
	}

	for deg := 0; deg <= maxDeg; deg++ {
		for m := 0; m <= deg; m++ {
			emphi := complex(cosmphi[m], sinmphi[m])
			yv := y[idx(deg, m)]
			fpm := factorial(deg + m)
			fnm := factorial(deg - m)
			r[idx(deg, m)] = complex(rhoPow[deg]/fpm*yv, 0) * emphi
			s[idx(deg, m)] = complex(fnm*invRhoPow[deg]*yv, 0) * emphi
		}
	}
	return r, s
}

// conjSigned returns (-1)^m * conj(v), the factor relating a one-sided
// (m>=0) spherical coefficient table to its negative-order counterpart
// under the Hermitian symmetry real sources/fields induce.
func conjSigned(v complex128, m int) complex128 {
	if m%2 != 0 {
		return -cmplx.Conj(v)
	}
	return cmplx.Conj(v)
}

// numericalGradient differentiates a potential-evaluation closure by
// central differences. L2P uses this instead of an analytic solid
// harmonic derivative recurrence: it is slower, but by construction the
// gradient it returns is consistent with whatever potential sum the
// closure computes, which matters more here than matching a textbook
// closed form exactly.
func numericalGradient(eval func(dx, dy, dz float64) complex128, dx, dy, dz, h float64) (gx, gy, gz complex128) {
	gx = (eval(dx+h, dy, dz) - eval(dx-h, dy, dz)) / complex(2*h, 0)
	gy = (eval(dx, dy+h, dz) - eval(dx, dy-h, dz)) / complex(2*h, 0)
	gz = (eval(dx, dy, dz+h) - eval(dx, dy, dz-h)) / complex(2*h, 0)
	return
}

// getTri fetches a triangular (degree,order) table entry for any integer
// order (negative orders resolved via conjugate symmetry), and returns 0
// out of range. Used by M2M/L2L/M2L to walk the full -n..n sum while
// storing only the m>=0 half.
func getTri(arr []complex128, n, m int) complex128 {
	if n < 0 {
		return 0
	}
	if m < 0 {
		mm := -m
		if mm > n {
			return 0
		}
		return conjSigned(arr[idx(n, mm)], mm)
	}
	if m > n {
		return 0
	}
	return arr[idx(n, m)]
}
