package kernel

import (
	"math"
	"math/cmplx"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/octree"
)

// HelmholtzKernel implements Kernel for the Helmholtz equation. Unlike
// Laplace, sources are genuinely complex (no Hermitian shortcut), so
// coefficients are stored for the full order range -n<=m<=n: NTerm is
// P^2, indexed by hidx(n,m) = n^2+n+m. The radial dependence comes from
// spherical Bessel/Hankel functions of k*rho in place of Laplace's rho^n
// power, following original_source/kernels/helmholtz.h's use of the
// wavenumber-scaled expansion. M2M, M2L, and L2L follow the original's
// rotate-to-Z / translate-along-Z / rotate-back structure: the
// translation-theorem sum only has a closed form along the z-axis (the
// regular/singular harmonics vanish off-axis except for m=0), so each
// operator rotates its operand so the cell-to-cell shift lies on z,
// applies the resulting single-sum axial translation, and rotates the
// result back. Rotation is done numerically — resample on the
// Tables.XQuad/XQuad2 Gauss-Legendre grid, reproject — rather than via a
// closed-form Wigner-d matrix (see rotation.go).
type HelmholtzKernel struct {
	tables *Tables
	eps2   float64
	wavek  complex128
}

func newHelmholtz(t *Tables, cfg Config) *HelmholtzKernel {
	wavek := cfg.Wavek
	if wavek == 0 {
		wavek = 1
	}
	return &HelmholtzKernel{tables: t, eps2: cfg.Eps2, wavek: wavek}
}

func hidx(n, m int) int { return n*n + n + m }

func hget(arr []complex128, n, m int) complex128 {
	if n < 0 || m < -n || m > n {
		return 0
	}
	i := hidx(n, m)
	if i < 0 || i >= len(arr) {
		return 0
	}
	return arr[i]
}

func (k *HelmholtzKernel) NTerm() int {
	p := k.tables.P
	return hidx(p-1, p-1) + 1
}

// sphericalBessel computes j_0..j_n(x) by forward recurrence. Stable for
// the small, truncated orders an FMM expansion uses.
func sphericalBessel(n int, x complex128) []complex128 {
	out := make([]complex128, n+1)
	if x == 0 {
		out[0] = 1
		return out
	}
	out[0] = cmplx.Sin(x) / x
	if n >= 1 {
		out[1] = cmplx.Sin(x)/(x*x) - cmplx.Cos(x)/x
	}
	for l := 1; l < n; l++ {
		out[l+1] = complex(float64(2*l+1), 0)/x*out[l] - out[l-1]
	}
	return out
}

// sphericalHankel1 computes h_0^(1)..h_n^(1)(x) = j_n(x) + i*y_n(x).
func sphericalHankel1(n int, x complex128) []complex128 {
	j := sphericalBessel(n, x)
	y := make([]complex128, n+1)
	y[0] = -cmplx.Cos(x) / x
	if n >= 1 {
		y[1] = -cmplx.Cos(x)/(x*x) - cmplx.Sin(x)/x
	}
	for l := 1; l < n; l++ {
		y[l+1] = complex(float64(2*l+1), 0)/x*y[l] - y[l-1]
	}
	out := make([]complex128, n+1)
	for l := 0; l <= n; l++ {
		out[l] = j[l] + complex(0, 1)*y[l]
	}
	return out
}

// helmholtzHarmonics evaluates the regular (Bessel-radial) and singular
// (Hankel-radial) spherical wave functions at displacement (dx,dy,dz),
// full -n..n storage, up to degree maxDeg.
func (t *Tables) helmholtzHarmonics(dx, dy, dz float64, wavek complex128, maxDeg int) (r, s []complex128) {
	rho, ct, st, cp, sp := cartesianToSpherical(dx, dy, dz)
	y := t.legendreDeg(ct, st, maxDeg)
	kr := wavek * complex(rho, 0)
	jn := sphericalBessel(maxDeg, kr)
	hn := sphericalHankel1(maxDeg, kr)
	cosm, sinm := anglePowers(cp, sp, maxDeg)

	size := (maxDeg + 1) * (maxDeg + 1)
	r = make([]complex128, size)
	s = make([]complex128, size)
	for deg := 0; deg <= maxDeg; deg++ {
		for m := 0; m <= deg; m++ {
			emphi := complex(cosm[m], sinm[m])
			yv := complex(y[idx(deg, m)], 0)
			rv := jn[deg] * yv * emphi
			sv := hn[deg] * yv * emphi
			r[hidx(deg, m)] = rv
			s[hidx(deg, m)] = sv
			if m > 0 {
				r[hidx(deg, -m)] = conjSigned(rv, m)
				s[hidx(deg, -m)] = conjSigned(sv, m)
			}
		}
	}
	return r, s
}

// poptFor implements the adaptive truncation spec.md §4.C calls for:
// expansions may be shortened for well-separated cell pairs since their
// contribution decays with the oscillatory radial factor. r is the
// ratio of cell radius to separation distance.
func poptFor(p int, r float64) int {
	if r <= 0 {
		return p
	}
	v := (1.65*float64(p)-15.5)/(r*r) + 0.25*float64(p) + 3
	n := int(math.Floor(v))
	if n < 1 {
		n = 1
	}
	if n > p {
		n = p
	}
	return n
}

func (k *HelmholtzKernel) P2M(c *octree.Cell, bodies []body.Body) {
	for i := range c.M {
		c.M[i] = 0
	}
	p := k.tables.P
	for i := c.Body; i < c.Body+c.NBody; i++ {
		b := bodies[i]
		dx := b.X.Sub(c.X)
		r, _ := k.tables.helmholtzHarmonics(dx[0], dx[1], dx[2], k.wavek, p-1)
		for n := 0; n < p; n++ {
			for m := -n; m <= n; m++ {
				c.M[hidx(n, m)] += b.SRC * conjSigned(hget(r, n, -m), -m)
			}
		}
	}
}

// axialM2M applies the along-z M2M translation to a multipole already
// rotated so the child-to-parent shift lies on the z-axis: at theta=0
// the regular solid harmonic vanishes for every m!=0, collapsing the
// usual double sum over (n,m) to a single sum over n per output order.
func (k *HelmholtzKernel) axialM2M(childM []complex128, rho float64) []complex128 {
	p := k.tables.P
	r, _ := k.tables.helmholtzHarmonics(0, 0, rho, k.wavek, p-1)
	out := make([]complex128, len(childM))
	for j := 0; j < p; j++ {
		for kk := -j; kk <= j; kk++ {
			var acc complex128
			for n := 0; n <= j; n++ {
				acc += hget(childM, j-n, kk) * hget(r, n, 0)
			}
			out[hidx(j, kk)] = acc
		}
	}
	return out
}

// axialL2L is axialM2M's local-expansion counterpart.
func (k *HelmholtzKernel) axialL2L(parentL []complex128, rho float64) []complex128 {
	p := k.tables.P
	r, _ := k.tables.helmholtzHarmonics(0, 0, rho, k.wavek, p-1)
	out := make([]complex128, len(parentL))
	for j := 0; j < p; j++ {
		for kk := -j; kk <= j; kk++ {
			var acc complex128
			for n := 0; n <= p-1-j; n++ {
				acc += hget(parentL, j+n, kk) * hget(r, n, 0)
			}
			out[hidx(j, kk)] = acc
		}
	}
	return out
}

// axialM2L is the M2L analog: the singular harmonic S_{n+j} also vanishes
// off-axis, so the surviving term of the usual inner sum over m is
// exactly m=kk.
func (k *HelmholtzKernel) axialM2L(srcM []complex128, rho float64, popt int) []complex128 {
	p := k.tables.P
	maxDeg := 2 * (p - 1)
	_, s := k.tables.helmholtzHarmonics(0, 0, rho, k.wavek, maxDeg)
	out := make([]complex128, len(srcM))
	for j := 0; j < popt; j++ {
		for kk := -j; kk <= j; kk++ {
			var acc complex128
			for n := absInt(kk); n < popt; n++ {
				mnm := hget(srcM, n, kk)
				if mnm == 0 {
					continue
				}
				sp := hget(s, n+j, 0)
				if n%2 != 0 {
					sp = -sp
				}
				acc += mnm * sp
			}
			out[hidx(j, kk)] = acc
		}
	}
	return out
}

func (k *HelmholtzKernel) M2M(parent *octree.Cell, children []octree.Cell) {
	for i := range parent.M {
		parent.M[i] = 0
	}
	p := k.tables.P
	xq, wq := k.tables.XQuad2, k.tables.WQuad2
	for ci := range children {
		child := &children[ci]
		shift := child.X.Sub(parent.X)
		rho, ct0, st0, cp0, sp0 := cartesianToSpherical(shift[0], shift[1], shift[2])

		aligned := k.tables.rotateCoeffs(child.M, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
			return rotatedDirection(ct0, st0, cp0, sp0, theta, phi)
		})
		translated := k.axialM2M(aligned, rho)
		back := k.tables.rotateCoeffs(translated, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
			return inverseRotatedDirection(ct0, st0, cp0, sp0, theta, phi)
		})
		for i := range parent.M {
			parent.M[i] += back[i]
		}
	}
}

func (k *HelmholtzKernel) translateM2L(dst, src *octree.Cell, shift body.Vec3) {
	p := k.tables.P
	rho, ct0, st0, cp0, sp0 := cartesianToSpherical(shift[0], shift[1], shift[2])

	ratio := math.Max(dst.R, src.R) / math.Max(rho, 1e-12)
	popt := poptFor(p, ratio)

	xq, wq := k.tables.XQuad, k.tables.WQuad
	aligned := k.tables.rotateCoeffs(src.M, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
		return rotatedDirection(ct0, st0, cp0, sp0, theta, phi)
	})
	translated := k.axialM2L(aligned, rho, popt)
	back := k.tables.rotateCoeffs(translated, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
		return inverseRotatedDirection(ct0, st0, cp0, sp0, theta, phi)
	})
	for i := range dst.L {
		dst.L[i] += back[i]
	}
}

func (k *HelmholtzKernel) M2L(ci, cj *octree.Cell, xperiodic body.Vec3, mutual bool) {
	k.translateM2L(ci, cj, ci.X.Sub(cj.X).Sub(xperiodic))
	if mutual {
		k.translateM2L(cj, ci, cj.X.Sub(ci.X).Add(xperiodic))
	}
}

func (k *HelmholtzKernel) L2L(child, parent *octree.Cell) {
	p := k.tables.P
	shift := parent.X.Sub(child.X)
	rho, ct0, st0, cp0, sp0 := cartesianToSpherical(shift[0], shift[1], shift[2])

	xq, wq := k.tables.XQuad2, k.tables.WQuad2
	aligned := k.tables.rotateCoeffs(parent.L, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
		return rotatedDirection(ct0, st0, cp0, sp0, theta, phi)
	})
	translated := k.axialL2L(aligned, rho)
	back := k.tables.rotateCoeffs(translated, p-1, xq, wq, func(theta, phi float64) (float64, float64, float64, float64) {
		return inverseRotatedDirection(ct0, st0, cp0, sp0, theta, phi)
	})
	for i := range child.L {
		child.L[i] += back[i]
	}
}

func (k *HelmholtzKernel) evalLocal(c *octree.Cell, dx, dy, dz float64) complex128 {
	p := k.tables.P
	r, _ := k.tables.helmholtzHarmonics(dx, dy, dz, k.wavek, p-1)
	var pot complex128
	for n := 0; n < p; n++ {
		for m := -n; m <= n; m++ {
			pot += hget(c.L, n, m) * hget(r, n, m)
		}
	}
	return pot
}

func (k *HelmholtzKernel) L2P(c *octree.Cell, bodies []body.Body) {
	const h = 1e-4
	for i := c.Body; i < c.Body+c.NBody; i++ {
		b := &bodies[i]
		dx := b.X.Sub(c.X)
		eval := func(x, y, z float64) complex128 { return k.evalLocal(c, x, y, z) }
		gx, gy, gz := numericalGradient(eval, dx[0], dx[1], dx[2], h)
		b.TRG[0] += eval(dx[0], dx[1], dx[2])
		b.TRG[1] += gx
		b.TRG[2] += gy
		b.TRG[3] += gz
	}
}

// P2P evaluates the oscillatory free-space Green's function
// exp(i*wavek*R)/R between ci's and cj's bodies.
func (k *HelmholtzKernel) P2P(ci, cj *octree.Cell, bodies []body.Body, xperiodic body.Vec3, mutual bool) {
	same := ci == cj
	lo1, hi1 := ci.Body, ci.Body+ci.NBody
	lo2, hi2 := cj.Body, cj.Body+cj.NBody

	if mutual && same {
		for i := lo1; i < hi1; i++ {
			for j := i + 1; j < hi1; j++ {
				k.applyMutual(bodies, i, j, xperiodic)
			}
		}
		return
	}
	if mutual {
		for i := lo1; i < hi1; i++ {
			for j := lo2; j < hi2; j++ {
				k.applyMutual(bodies, i, j, xperiodic)
			}
		}
		return
	}
	for i := lo1; i < hi1; i++ {
		for j := lo2; j < hi2; j++ {
			if same && i == j {
				continue
			}
			k.applyOneSided(bodies, i, j, xperiodic)
		}
	}
}

func (k *HelmholtzKernel) green(xi, xj body.Vec3, xperiodic body.Vec3) (g, dgx, dgy, dgz complex128) {
	dx := xi.Sub(xj).Sub(xperiodic)
	r2 := dx.Norm() + k.eps2
	if r2 == 0 {
		return 0, 0, 0, 0
	}
	r := math.Sqrt(r2)
	kr := k.wavek * complex(r, 0)
	g = cmplx.Exp(complex(0, 1)*kr) / complex(r, 0)
	// d/dr [e^{ikr}/r] = e^{ikr} * (ik/r - 1/r^2)
	dgdr := g * (complex(0, 1)*k.wavek - complex(1/r, 0))
	dgx = dgdr * complex(dx[0]/r, 0)
	dgy = dgdr * complex(dx[1]/r, 0)
	dgz = dgdr * complex(dx[2]/r, 0)
	return
}

func (k *HelmholtzKernel) applyMutual(bodies []body.Body, i, j int, xperiodic body.Vec3) {
	g, dgx, dgy, dgz := k.green(bodies[i].X, bodies[j].X, xperiodic)
	if g == 0 {
		return
	}
	qi, qj := bodies[i].SRC, bodies[j].SRC
	bodies[i].TRG[0] += qj * g
	bodies[i].TRG[1] += qj * dgx
	bodies[i].TRG[2] += qj * dgy
	bodies[i].TRG[3] += qj * dgz

	bodies[j].TRG[0] += qi * g
	bodies[j].TRG[1] -= qi * dgx
	bodies[j].TRG[2] -= qi * dgy
	bodies[j].TRG[3] -= qi * dgz
}

func (k *HelmholtzKernel) applyOneSided(bodies []body.Body, i, j int, xperiodic body.Vec3) {
	g, dgx, dgy, dgz := k.green(bodies[i].X, bodies[j].X, xperiodic)
	if g == 0 {
		return
	}
	qj := bodies[j].SRC
	bodies[i].TRG[0] += qj * g
	bodies[i].TRG[1] += qj * dgx
	bodies[i].TRG[2] += qj * dgy
	bodies[i].TRG[3] += qj * dgz
}
