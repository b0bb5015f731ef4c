package kernel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// GaussLegendre computes n-node Gauss-Legendre quadrature nodes and
// weights on [-1,1] via the Golub-Welsch algorithm: the nodes are the
// eigenvalues of the symmetric tridiagonal Jacobi matrix for the Legendre
// recurrence, and the weights come from the first component of each
// eigenvector. This is the same technique as the teacher's
// DG1D.JacobiGQ (build a Jacobi matrix, diagonalize it with gonum)
// specialized to alpha=beta=0.
func GaussLegendre(n int) (x, w []float64) {
	if n == 1 {
		return []float64{0}, []float64{2}
	}
	diag := make([]float64, n)
	offdiag := make([]float64, n-1)
	for i := 1; i < n; i++ {
		fi := float64(i)
		offdiag[i-1] = fi / math.Sqrt(4*fi*fi-1)
	}

	var sym mat.SymDense
	symData := make([]float64, n*n)
	for i := 0; i < n; i++ {
		symData[i*n+i] = diag[i]
		if i > 0 {
			symData[i*n+i-1] = offdiag[i-1]
			symData[(i-1)*n+i] = offdiag[i-1]
		}
	}
	sym = *mat.NewSymDense(n, symData)

	var eig mat.EigenSym
	ok := eig.Factorize(&sym, true)
	if !ok {
		panic("gofmm/kernel: Gauss-Legendre Jacobi matrix eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type node struct{ x, w float64 }
	nodes := make([]node, n)
	for i := 0; i < n; i++ {
		v0 := vectors.At(0, i)
		nodes[i] = node{x: values[i], w: 2 * v0 * v0}
	}
	// Sort ascending by x (EigenSym does not guarantee order).
	for i := 1; i < n; i++ {
		for j := i; j > 0 && nodes[j-1].x > nodes[j].x; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
	x = make([]float64, n)
	w = make([]float64, n)
	for i, nd := range nodes {
		x[i], w[i] = nd.x, nd.w
	}
	return x, w
}
