// Package octree implements Component B of spec.md: the bucket-sort tree
// builder that groups bodies by Morton key into a sibling-contiguous cell
// array. Cells are flat structs with integer offsets
// (ICHILD/NCHILD/IPARENT/BODY/NBODY), never an owning-pointer graph, so a
// cell array can be serialized and shipped whole as an LET payload
// (spec.md §9).
package octree

import "github.com/notargets/gofmm/internal/body"

// Cell is a node of the octree (spec.md §3 "Cell"). M and L are
// allocated with NTerm slots by the caller (the kernel decides NTerm for
// the active equation); this package never interprets their contents.
type Cell struct {
	X Vec3
	R float64
	// Scale is 2R, set during the upward pass for the Helmholtz kernel
	// (spec.md §4.D).
	Scale float64

	Body  int
	NBody int

	IChild int
	NChild int
	IParent int

	M []complex128
	L []complex128

	Weight float64
}

// Vec3 aliases body.Vec3 so octree callers don't need to import body for
// cell centers.
type Vec3 = body.Vec3

// IsLeaf reports whether the cell has no children (NChild == 0).
func (c *Cell) IsLeaf() bool { return c.NChild == 0 }
