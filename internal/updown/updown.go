// Package updown implements Component D of spec.md: the upward pass
// (P2M/M2M) and downward pass (L2L/L2P) that bracket the dual tree
// traversal, plus the dipole correction scenario S2 calls for. Both
// passes are expressed as flat index scans rather than recursion:
// octree.Build appends every cell's children after the cell itself, so
// a reverse scan visits children before parents (post-order) and a
// forward scan visits parents before children (pre-order) with no
// explicit stack (spec.md §9's "convert to an explicit work queue").
package updown

import (
	"math"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/kernel"
	"github.com/notargets/gofmm/internal/octree"
)

// AllocateExpansions sizes every cell's M and L to the active kernel's
// NTerm. octree.Build leaves M/L nil since it doesn't know which
// equation is active.
func AllocateExpansions(cells []octree.Cell, k kernel.Kernel) {
	n := k.NTerm()
	for i := range cells {
		cells[i].M = make([]complex128, n)
		cells[i].L = make([]complex128, n)
	}
}

// UpwardPass runs P2M on every leaf and M2M on every internal cell,
// post-order, then divides every cell's R by theta so the traversal's
// MAC test reduces to a plain distance comparison (spec.md §4.D).
func UpwardPass(cells []octree.Cell, bodies []body.Body, k kernel.Kernel, theta float64) {
	for i := len(cells) - 1; i >= 0; i-- {
		c := &cells[i]
		c.Scale = 2 * c.R
		if c.IsLeaf() {
			k.P2M(c, bodies)
		} else {
			k.M2M(c, cells[c.IChild:c.IChild+c.NChild])
		}
	}
	for i := range cells {
		cells[i].R /= theta
	}
}

// DownwardPass runs L2L from every internal cell into its children and
// L2P at every leaf, pre-order starting at root's children (root itself
// has no parent to receive a local expansion from).
func DownwardPass(cells []octree.Cell, bodies []body.Body, k kernel.Kernel) {
	for i := range cells {
		c := &cells[i]
		if c.IsLeaf() {
			k.L2P(c, bodies)
			continue
		}
		for ci := c.IChild; ci < c.IChild+c.NChild; ci++ {
			k.L2L(&cells[ci], c)
		}
	}
}

// PropagateWeight pushes each cell's Weight down to its children and,
// at leaves, to its bodies, the optional load-accounting propagation
// spec.md §4.D allows downwardPass to perform.
func PropagateWeight(cells []octree.Cell, bodies []body.Body) {
	for i := range cells {
		c := &cells[i]
		if c.IsLeaf() {
			if c.NBody == 0 {
				continue
			}
			share := c.Weight / float64(c.NBody)
			for b := c.Body; b < c.Body+c.NBody; b++ {
				bodies[b].Weight = share
			}
			continue
		}
		if c.NChild == 0 {
			continue
		}
		share := c.Weight / float64(c.NChild)
		for ci := c.IChild; ci < c.IChild+c.NChild; ci++ {
			cells[ci].Weight = share
		}
	}
}

// DipoleCorrection implements scenario S2's periodic dipole correction
// (spec.md §9, original_source/include/up_down_pass.h's dipoleCorrection):
// a periodic lattice sum truncated to the multipole order used here loses
// the lattice's net dipole moment, which otherwise shows up as a spurious
// uniform field. The moment is the position-weighted sum of source
// strength about the root center, Σ(X-X0)·SRC; the correction it implies
// is a potential shift of coef*|dipole|²/(N·SRC) and a force shift of
// coef*dipole[d], where coef comes from the periodic cell volume
// (cycle^3, cycle being the root cell's full side length).
func DipoleCorrection(cells []octree.Cell, bodies []body.Body, cycle float64) {
	if len(cells) == 0 || len(bodies) == 0 {
		return
	}
	x0 := cells[0].X
	var dipole body.Vec3
	for _, b := range bodies {
		rel := b.X.Sub(x0)
		src := real(b.SRC)
		for d := 0; d < 3; d++ {
			dipole[d] += rel[d] * src
		}
	}
	norm := dipole[0]*dipole[0] + dipole[1]*dipole[1] + dipole[2]*dipole[2]
	volume := cycle * cycle * cycle
	coef := 4 * math.Pi / (3 * volume)
	n := float64(len(bodies))
	for i := range bodies {
		src := real(bodies[i].SRC)
		bodies[i].TRG[0] -= complex(coef*norm/n/src, 0)
		for d := 0; d < 3; d++ {
			bodies[i].TRG[d+1] -= complex(coef*dipole[d], 0)
		}
	}
}
