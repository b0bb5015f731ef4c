package octree

import (
	"sort"

	"github.com/notargets/gofmm/internal/body"
)

// Build implements the adaptive top-down bucket-sort tree builder of
// spec.md §4.B: bodies are assigned a Morton key at maxLevel, bucket
// sorted, and scanned to discover cell boundaries. Subdivision stops when
// a cell's body count is <= ncrit or depth == maxLevel.
//
// Build returns the cell array (root at index 0, children of any cell
// forming the contiguous range [IChild, IChild+NChild)) and the body
// slice permuted into leaf-contiguous order. M and L are left nil; the
// caller (internal/updown) allocates them sized to the active kernel's
// NTerm once the equation is known.
func Build(bodies []body.Body, bounds body.Bounds, ncrit, maxLevel int) (cells []Cell, sorted []body.Body) {
	if len(bodies) == 0 {
		return nil, nil
	}
	sorted, keys := sortByMorton(bodies, bounds, maxLevel)

	center, radius := bounds.Center()
	cells = make([]Cell, 0, len(bodies))
	cells = append(cells, Cell{X: center, R: radius, Body: 0, NBody: len(sorted)})

	type item struct {
		idx, depth int
	}
	queue := []item{{0, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		lo := cells[it.idx].Body
		hi := lo + cells[it.idx].NBody
		if cells[it.idx].NBody <= ncrit || it.depth == maxLevel {
			continue // leaf: NChild stays 0
		}
		starts := octantRanges(keys, lo, hi, it.depth, maxLevel)
		childStart := len(cells)
		nChild := 0
		parentX, parentR := cells[it.idx].X, cells[it.idx].R
		for oct := 0; oct < 8; oct++ {
			a, b := starts[oct], starts[oct+1]
			if a == b {
				continue // adaptive variant skips empty octants
			}
			cx, cr := childBox(parentX, parentR, oct)
			cells = append(cells, Cell{X: cx, R: cr, Body: a, NBody: b - a, IParent: it.idx})
			nChild++
			queue = append(queue, item{childStart + nChild - 1, it.depth + 1})
		}
		cells[it.idx].IChild = childStart
		cells[it.idx].NChild = nChild
	}
	return cells, sorted
}

// BuildUniform implements the uniform variant (spec.md §4.B): maxLevel is
// fixed and every node is subdivided into all 8 children down to
// maxLevel, regardless of population, producing the complete octree —
// the shape original_source/uniform-serial/fmm.h builds via its flat
// Leafs[ileaf][2] table (SPEC_FULL.md supplement #2).
func BuildUniform(bodies []body.Body, bounds body.Bounds, maxLevel int) (cells []Cell, sorted []body.Body) {
	if len(bodies) == 0 {
		return nil, nil
	}
	sorted, keys := sortByMorton(bodies, bounds, maxLevel)

	center, radius := bounds.Center()
	cells = make([]Cell, 0, 1<<uint(3*(maxLevel+1)))
	cells = append(cells, Cell{X: center, R: radius, Body: 0, NBody: len(sorted)})

	type item struct {
		idx, depth int
	}
	queue := []item{{0, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.depth == maxLevel {
			continue
		}
		lo := cells[it.idx].Body
		hi := lo + cells[it.idx].NBody
		starts := octantRanges(keys, lo, hi, it.depth, maxLevel)
		childStart := len(cells)
		parentX, parentR := cells[it.idx].X, cells[it.idx].R
		for oct := 0; oct < 8; oct++ {
			a, b := starts[oct], starts[oct+1]
			cx, cr := childBox(parentX, parentR, oct)
			cells = append(cells, Cell{X: cx, R: cr, Body: a, NBody: b - a, IParent: it.idx})
			queue = append(queue, item{childStart + oct, it.depth + 1})
		}
		cells[it.idx].IChild = childStart
		cells[it.idx].NChild = 8
	}
	return cells, sorted
}

// sortByMorton assigns each body its key at maxLevel and bucket-sorts,
// returning the permuted bodies alongside their keys in the same order.
func sortByMorton(bodies []body.Body, bounds body.Bounds, maxLevel int) (sorted []body.Body, sortedKeys []body.Key) {
	n := len(bodies)
	keys := make([]body.Key, n)
	for i, b := range bodies {
		keys[i] = body.Encode(b.X, bounds, maxLevel)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	sorted = make([]body.Body, n)
	sortedKeys = make([]body.Key, n)
	for i, j := range idx {
		sorted[i] = bodies[j]
		sortedKeys[i] = keys[j]
	}
	return sorted, sortedKeys
}

// octant extracts the 3-bit octant index a key belongs to at the given
// depth: bit d is the sign of coordinate d's split at that depth.
func octant(k body.Key, maxLevel, depth int) int {
	l := maxLevel - 1 - depth
	shift := uint(3 * l)
	return int((k >> shift) & 0x7)
}

// octantRanges scans the sorted [lo,hi) run and returns the 9 boundaries
// splitting it into (up to) 8 contiguous octant buckets at the given
// depth, some possibly empty (starts[i] == starts[i+1]).
func octantRanges(keys []body.Key, lo, hi, depth, maxLevel int) (starts [9]int) {
	starts[0] = lo
	i := lo
	for oct := 0; oct < 8; oct++ {
		j := i
		for j < hi && octant(keys[j], maxLevel, depth) == oct {
			j++
		}
		starts[oct+1] = j
		i = j
	}
	return starts
}

// childBox computes the center and half-side radius of the given octant
// child of a cube with center cx and half-side radius cr.
func childBox(cx Vec3, cr float64, oct int) (Vec3, float64) {
	childR := cr / 2
	var c Vec3
	for d := 0; d < 3; d++ {
		if (oct>>uint(d))&1 == 1 {
			c[d] = cx[d] + childR
		} else {
			c[d] = cx[d] - childR
		}
	}
	return c, childR
}
