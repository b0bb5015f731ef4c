package kernel

import (
	"math"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/octree"
)

// LaplaceKernel implements Kernel for the Laplace equation. Sources are
// real (the imaginary part of Body.SRC is ignored), so multipole and
// local coefficients need only be stored for order m>=0: the m<0 half
// follows from the Hermitian symmetry M[n,-m] = (-1)^m conj(M[n,m]).
// NTerm is therefore the triangular count P(P+1)/2, not P^2.
type LaplaceKernel struct {
	tables *Tables
	eps2   float64
}

func newLaplace(t *Tables, cfg Config) *LaplaceKernel {
	return &LaplaceKernel{tables: t, eps2: cfg.Eps2}
}

func (k *LaplaceKernel) NTerm() int {
	p := k.tables.P
	return idx(p-1, p-1) + 1
}

// P2M forms c's multipole expansion about c.X from its source bodies.
func (k *LaplaceKernel) P2M(c *octree.Cell, bodies []body.Body) {
	for i := range c.M {
		c.M[i] = 0
	}
	p := k.tables.P
	for i := c.Body; i < c.Body+c.NBody; i++ {
		b := bodies[i]
		dx := b.X.Sub(c.X)
		r, _ := k.tables.solidHarmonicsDeg(dx[0], dx[1], dx[2], p-1)
		q := complex(real(b.SRC), 0)
		for n := 0; n < p; n++ {
			for m := 0; m <= n; m++ {
				c.M[idx(n, m)] += q * conjSigned(r[idx(n, m)], m)
			}
		}
	}
}

// M2M accumulates every child's multipole, translated about its own
// center, into parent.M.
func (k *LaplaceKernel) M2M(parent *octree.Cell, children []octree.Cell) {
	for i := range parent.M {
		parent.M[i] = 0
	}
	p := k.tables.P
	for ci := range children {
		child := &children[ci]
		shift := child.X.Sub(parent.X)
		r, _ := k.tables.solidHarmonicsDeg(shift[0], shift[1], shift[2], p-1)
		for j := 0; j < p; j++ {
			for kk := 0; kk <= j; kk++ {
				var acc complex128
				for n := 0; n <= j; n++ {
					lo, hi := kk-(j-n), kk+(j-n)
					if lo < -n {
						lo = -n
					}
					if hi > n {
						hi = n
					}
					for m := lo; m <= hi; m++ {
						acc += getTri(child.M, j-n, kk-m) * getTri(r, n, m)
					}
				}
				parent.M[idx(j, kk)] += acc
			}
		}
	}
}

// translateM2L adds the local-expansion contribution src.M produces at
// dst, src and dst separated by shift = dst.X - src.X(+image).
func (k *LaplaceKernel) translateM2L(dst, src *octree.Cell, shift body.Vec3) {
	p := k.tables.P
	maxDeg := 2 * (p - 1)
	_, s := k.tables.solidHarmonicsDeg(shift[0], shift[1], shift[2], maxDeg)
	for j := 0; j < p; j++ {
		for kk := 0; kk <= j; kk++ {
			var acc complex128
			for n := 0; n < p; n++ {
				for m := -n; m <= n; m++ {
					mnm := getTri(src.M, n, m)
					if mnm == 0 {
						continue
					}
					sp := getTri(s, n+j, m-kk)
					if n%2 != 0 {
						sp = -sp
					}
					acc += mnm * sp
				}
			}
			dst.L[idx(j, kk)] += acc
		}
	}
}

// M2L translates cj's multipole into a local contribution added to
// ci.L (and, when mutual, the symmetric contribution to cj.L).
func (k *LaplaceKernel) M2L(ci, cj *octree.Cell, xperiodic body.Vec3, mutual bool) {
	k.translateM2L(ci, cj, ci.X.Sub(cj.X).Sub(xperiodic))
	if mutual {
		k.translateM2L(cj, ci, cj.X.Sub(ci.X).Add(xperiodic))
	}
}

// L2L translates parent's local expansion, about parent.X, into a
// contribution added to child.L about child.X.
func (k *LaplaceKernel) L2L(child, parent *octree.Cell) {
	p := k.tables.P
	shift := parent.X.Sub(child.X)
	r, _ := k.tables.solidHarmonicsDeg(shift[0], shift[1], shift[2], p-1)
	for j := 0; j < p; j++ {
		for kk := 0; kk <= j; kk++ {
			var acc complex128
			for n := 0; n <= p-1-j; n++ {
				for m := -n; m <= n; m++ {
					acc += getTri(parent.L, j+n, kk+m) * getTri(r, n, m)
				}
			}
			child.L[idx(j, kk)] += acc
		}
	}
}

func (k *LaplaceKernel) evalLocal(c *octree.Cell, dx, dy, dz float64) complex128 {
	p := k.tables.P
	r, _ := k.tables.solidHarmonicsDeg(dx, dy, dz, p-1)
	var pot complex128
	for n := 0; n < p; n++ {
		for m := -n; m <= n; m++ {
			pot += getTri(c.L, n, m) * getTri(r, n, m)
		}
	}
	return pot
}

// L2P evaluates c's local expansion at each body, writing potential
// into TRG[0] and the (numerically differentiated) gradient into
// TRG[1:4].
func (k *LaplaceKernel) L2P(c *octree.Cell, bodies []body.Body) {
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

func (k *LaplaceKernel) pairTerm(xi, xj body.Vec3, xperiodic body.Vec3) (invR, invR2 float64, dx body.Vec3) {
	dx = xi.Sub(xj).Sub(xperiodic)
	r2 := dx.Norm() + k.eps2
	if r2 == 0 {
		return 0, 0, dx
	}
	invR2 = 1 / r2
	invR = math.Sqrt(invR2)
	return invR, invR2, dx
}

// P2P evaluates the direct 1/r kernel between ci's and cj's bodies,
// matching the formulation of original_source's uniform-serial direct()
// loop: accumulate q/R into TRG[0] and -q*dX/R^3 into TRG[1:4].
func (k *LaplaceKernel) P2P(ci, cj *octree.Cell, bodies []body.Body, xperiodic body.Vec3, mutual bool) {
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

func (k *LaplaceKernel) applyMutual(bodies []body.Body, i, j int, xperiodic body.Vec3) {
	invR, invR2, dx := k.pairTerm(bodies[i].X, bodies[j].X, xperiodic)
	if invR == 0 {
		return
	}
	qi := complex(real(bodies[i].SRC), 0)
	qj := complex(real(bodies[j].SRC), 0)

	bodies[i].TRG[0] += qj * complex(invR, 0)
	fi := qj * complex(invR2*invR, 0)
	bodies[i].TRG[1] -= complex(dx[0], 0) * fi
	bodies[i].TRG[2] -= complex(dx[1], 0) * fi
	bodies[i].TRG[3] -= complex(dx[2], 0) * fi

	bodies[j].TRG[0] += qi * complex(invR, 0)
	fj := qi * complex(invR2*invR, 0)
	bodies[j].TRG[1] += complex(dx[0], 0) * fj
	bodies[j].TRG[2] += complex(dx[1], 0) * fj
	bodies[j].TRG[3] += complex(dx[2], 0) * fj
}

func (k *LaplaceKernel) applyOneSided(bodies []body.Body, i, j int, xperiodic body.Vec3) {
	invR, invR2, dx := k.pairTerm(bodies[i].X, bodies[j].X, xperiodic)
	if invR == 0 {
		return
	}
	qj := complex(real(bodies[j].SRC), 0)
	bodies[i].TRG[0] += qj * complex(invR, 0)
	f := qj * complex(invR2*invR, 0)
	bodies[i].TRG[1] -= complex(dx[0], 0) * f
	bodies[i].TRG[2] -= complex(dx[1], 0) * f
	bodies[i].TRG[3] -= complex(dx[2], 0) * f
}
