// Package kernel implements Component C of spec.md: P2P, P2M, M2M, M2L,
// L2L, and L2P for the Laplace and Helmholtz equations in 3D, plus the
// process-wide coefficient and quadrature tables those operators share.
//
// Polymorphism over equation type is modeled as a capability set selected
// once at setup (spec.md §9), not dispatched per-cell: New returns one of
// two concrete *LaplaceKernel / *HelmholtzKernel values behind the Kernel
// interface, mirroring how the teacher monomorphizes model problems
// (Euler1D, Maxwell1D, ...) behind a single Model interface in main.go.
package kernel

import "math"

// Tables holds the read-only, process-wide recurrence and quadrature
// data used by the kernel primitives: the normalized associated-Legendre
// recurrence coefficients Anm1/Anm2, and two Gauss-Legendre quadrature
// sets (P nodes and 2P nodes), per spec.md §4.C. The kernel primitives
// receive a *Tables handle rather than reading ambient globals, per the
// design note in spec.md §9 ("expose them behind a handle... not as
// ambient globals").
type Tables struct {
	P int

	// Anm1, Anm2 are triangular (n,m) tables, indexed by idx(n,m) =
	// n*(n+1)/2+m for 0<=m<=n<=2P, used by the normalized associated
	// Legendre recurrence — same layout as
	// original_source/kernels/helmholtz.h's getAnm().
	Anm1, Anm2 []float64

	// XQuad/WQuad are the order max(6,P) Gauss-Legendre nodes/weights
	// (used by M2L rotation quadrature); XQuad2/WQuad2 are order
	// max(6,2P) (used by M2M/L2L rotation quadrature).
	XQuad, WQuad   []float64
	XQuad2, WQuad2 []float64
}

func idx(n, m int) int { return n*(n+1)/2 + m }

// Init precomputes Anm1/Anm2 and both quadrature sets for expansion order
// P, matching the teacher's one-time setup convention (cf.
// InputParameters.Parse being called once before a solve).
func Init(p int) *Tables {
	t := &Tables{P: p}
	// M2L re-expands a degree-n multipole into a degree-j local term via
	// S_{n+j}, so the Legendre recurrence must reach 2(P-1); build the
	// Anm tables to that depth once, up front.
	t.Anm1, t.Anm2 = buildAnmTables(2 * p)

	nq := maxInt(6, p)
	nq2 := maxInt(6, 2*p)
	t.XQuad, t.WQuad = GaussLegendre(nq)
	t.XQuad2, t.WQuad2 = GaussLegendre(nq2)
	return t
}

// Finalize releases the tables. Go's GC reclaims the backing arrays once
// the caller drops its last reference; Finalize exists to mirror the
// explicit init()/finalize() pairing spec.md §4.C and §5 require of the
// core's process-wide state S.
func (t *Tables) Finalize() {
	t.Anm1, t.Anm2 = nil, nil
	t.XQuad, t.WQuad = nil, nil
	t.XQuad2, t.WQuad2 = nil, nil
}

// buildAnmTables computes the recurrence coefficients for the normalized
// associated Legendre polynomials, the same recurrence
// original_source/kernels/helmholtz.h's getAnm() builds, generalized to
// an arbitrary order p.
func buildAnmTables(p int) (anm1, anm2 []float64) {
	size := idx(p, p) + 1
	anm1 = make([]float64, size)
	anm2 = make([]float64, size)
	anm1[0] = 1
	anm2[0] = 1
	for m := 0; m <= p; m++ {
		ms := idx(m, m)
		if m > 0 {
			anm1[ms] = math.Sqrt((2*float64(m) - 1) / (2 * float64(m)))
		}
		if m < p {
			mps := idx(m+1, m)
			anm1[mps] = math.Sqrt(2*float64(m) + 1)
		}
		for n := m + 2; n <= p; n++ {
			nms := idx(n, m)
			fn, fm := float64(n), float64(m)
			anm1[nms] = (2*fn - 1) / math.Sqrt((fn-fm)*(fn+fm))
			anm2[nms] = math.Sqrt((fn+fm-1)*(fn-fm-1)) / math.Sqrt((fn-fm)*(fn+fm))
		}
	}
	return anm1, anm2
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
