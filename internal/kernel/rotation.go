package kernel

import "math"

// directionAngles converts a unit vector to the (costheta, sintheta,
// cosphi, sinphi) quintuple the harmonic evaluators use, defaulting to
// the pole's arbitrary azimuth when the vector sits on the z-axis.
func directionAngles(v [3]float64) (ct, st, cp, sp float64) {
	ct = v[2]
	st = math.Sqrt(math.Max(0, 1-ct*ct))
	rxy := math.Sqrt(v[0]*v[0] + v[1]*v[1])
	if rxy < 1e-12 {
		return ct, st, 1, 0
	}
	return ct, st, v[0] / rxy, v[1] / rxy
}

// rotatedDirection maps a direction (theta,phi) given in a frame whose
// z-axis points along the ambient-frame direction (ct0,st0,cp0,sp0) back
// into the ambient frame: v_ambient = Rz(phi0) Ry(theta0) v_local. This
// is the "rotate-to-Z" half of Helmholtz's rotate/translate/rotate-back
// M2M and M2L: resampling an ambient-frame coefficient vector on a grid
// defined in the z-aligned frame is exactly evaluating the ambient
// function at rotatedDirection(grid angle).
func rotatedDirection(ct0, st0, cp0, sp0, theta, phi float64) (ct, st, cp, sp float64) {
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	sinP, cosP := math.Sin(phi), math.Cos(phi)
	v := [3]float64{sinT * cosP, sinT * sinP, cosT}

	vy := [3]float64{ct0*v[0] + st0*v[2], v[1], -st0*v[0] + ct0*v[2]}
	vz := [3]float64{cp0*vy[0] - sp0*vy[1], sp0*vy[0] + cp0*vy[1], vy[2]}
	return directionAngles(vz)
}

// inverseRotatedDirection is rotatedDirection's inverse, mapping an
// ambient-frame direction to the z-aligned local frame:
// v_local = Ry(-theta0) Rz(-phi0) v_ambient. Resampling a z-aligned-frame
// coefficient vector on an ambient-frame grid is evaluating it at
// inverseRotatedDirection(grid angle) — the "rotate-back" half.
func inverseRotatedDirection(ct0, st0, cp0, sp0, theta, phi float64) (ct, st, cp, sp float64) {
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	sinP, cosP := math.Sin(phi), math.Cos(phi)
	v := [3]float64{sinT * cosP, sinT * sinP, cosT}

	vz := [3]float64{cp0*v[0] + sp0*v[1], -sp0*v[0] + cp0*v[1], v[2]}
	vy := [3]float64{ct0*vz[0] - st0*vz[2], vz[1], st0*vz[0] + ct0*vz[2]}
	return directionAngles(vy)
}

// synthesize evaluates Σ M[n,m]*Y_n^m at the given direction, where
// Y_n^m for m>=0 is t.legendreDeg's normalized associated Legendre value
// times e^{i m phi}, and Y_n^{-m} = conjSigned(Y_n^m, m) — the same
// Condon-Shortley relation helmholtzHarmonics already builds its r/s
// tables with.
func (t *Tables) synthesize(M []complex128, maxDeg int, ct, st, cp, sp float64) complex128 {
	y := t.legendreDeg(ct, st, maxDeg)
	cosm, sinm := anglePowers(cp, sp, maxDeg)
	var out complex128
	for n := 0; n <= maxDeg; n++ {
		for m := -n; m <= n; m++ {
			mm := m
			if mm < 0 {
				mm = -mm
			}
			base := complex(y[idx(n, mm)], 0) * complex(cosm[mm], sinm[mm])
			angular := base
			if m < 0 {
				angular = conjSigned(base, mm)
			}
			out += M[hidx(n, m)] * angular
		}
	}
	return out
}

// rotateCoeffs numerically rotates a degree-maxDeg coefficient vector by
// resampling the function it represents on an (xq,wq) Gauss-Legendre
// grid in cos(theta) crossed with an exact equally-spaced azimuthal
// grid, then re-projecting. Gauss-Legendre quadrature of nq nodes
// integrates polynomials of degree <= 2*nq-1 exactly, and legendreDeg's
// normalized associated Legendre functions are orthonormal in cos(theta)
// for fixed order, so this round-trips exactly for band-limited
// (degree <= maxDeg) input given nq >= maxDeg+1 — the Gauss-Legendre
// quadrature spec.md's kernel library names for the rotation-and-
// projection scheme, used here as the numerical rotation operator
// itself rather than a hand-derived Wigner-d recurrence.
func (t *Tables) rotateCoeffs(M []complex128, maxDeg int, xq, wq []float64, dirMap func(theta, phi float64) (ct, st, cp, sp float64)) []complex128 {
	nphi := 2*maxDeg + 1
	out := make([]complex128, len(M))
	hm := make([]complex128, 2*maxDeg+1)
	for k, xk := range xq {
		xk := clampUnit(xk)
		stk := math.Sqrt(math.Max(0, 1-xk*xk))
		thetaK := math.Acos(xk)
		for i := range hm {
			hm[i] = 0
		}
		for j := 0; j < nphi; j++ {
			phiJ := 2 * math.Pi * float64(j) / float64(nphi)
			ct, st, cp, sp := dirMap(thetaK, phiJ)
			fval := t.synthesize(M, maxDeg, ct, st, cp, sp)
			for m := -maxDeg; m <= maxDeg; m++ {
				ang := -float64(m) * phiJ
				hm[m+maxDeg] += fval * complex(math.Cos(ang), math.Sin(ang))
			}
		}
		for i := range hm {
			hm[i] /= complex(float64(nphi), 0)
		}
		yk := t.legendreDeg(xk, stk, maxDeg)
		for n := 0; n <= maxDeg; n++ {
			for m := -n; m <= n; m++ {
				mm := m
				sign := 1.0
				if mm < 0 {
					mm = -mm
					if mm%2 != 0 {
						sign = -1
					}
				}
				out[hidx(n, m)] += complex(wq[k]*sign*yk[idx(n, mm)], 0) * hm[m+maxDeg]
			}
		}
	}
	return out
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
