package let

import (
	"math"

	"github.com/james-bowman/sparse"

	"github.com/notargets/gofmm/internal/body"
)

// GraftAdjacency builds a sparse near-neighbor matrix among rank
// super-bodies (spec.md §4.G's optional graft): entry (i,j) is nonzero
// when rank i's and rank j's root boxes are too close for the graft
// tree's single coarse multipole to satisfy the MAC between them, the
// same CSR-backed adjacency bookkeeping style as the teacher's
// utils/sparse.go DOK-then-ToCSR pattern. A caller can use a dense row
// of this matrix to decide which rank pairs still need a true pairwise
// LET exchange even when graft is enabled.
func GraftAdjacency(superBodies []body.Body, radii []float64, theta float64) *sparse.CSR {
	n := len(superBodies)
	dok := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := math.Sqrt(superBodies[i].X.Sub(superBodies[j].X).Norm())
			if d < (radii[i]+radii[j])/theta {
				dok.Set(i, j, 1)
			}
		}
	}
	return dok.ToCSR()
}
