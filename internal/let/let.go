// Package let implements Component G of spec.md: the three Locally
// Essential Tree protocols — commBodies, setLET/commCells/getLET, and
// the optional graft — built on top of internal/comm's MailBox
// post/deliver/receive protocol (itself adapted from the teacher's
// utils.MailBox[T]).
package let

import (
	"math"
	"sort"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/comm"
	"github.com/notargets/gofmm/internal/octree"
)

// CommBodies implements spec.md §4.G's commBodies protocol: every rank's
// initial shard is regrouped by each body's IRank (set by the
// partitioner) and delivered to its owner, an all-to-all exchange
// modeled with comm.MailBox rather than MPI's count+payload pair since
// ranks here are in-process, not separate address spaces. Each shard is
// bucketed by destination and handed to MailBox.PostBatch in one call per
// destination rather than one PostMessage per body, the batched shape the
// protocol is meant for. The result is ordered by IBody per rank for
// determinism.
func CommBodies(initialShards [][]body.Body, np int) [][]body.Body {
	mb := comm.NewMailBox[body.Body](np)
	for rank, shard := range initialShards {
		byTarget := make(map[int][]body.Body, np)
		for _, b := range shard {
			byTarget[b.IRank] = append(byTarget[b.IRank], b)
		}
		for target, msgs := range byTarget {
			mb.PostBatch(rank, target, msgs)
		}
	}
	for rank := range initialShards {
		mb.DeliverMyMessages(rank)
	}
	result := make([][]body.Body, np)
	for rank := 0; rank < np; rank++ {
		mb.ReceiveMyMessages(rank)
		result[rank] = append([]body.Body(nil), mb.Inbox[rank]...)
		sort.Slice(result[rank], func(i, j int) bool { return result[rank][i].IBody < result[rank][j].IBody })
	}
	return result
}

// copyCellShell copies a cell's geometry, scale, weight, and multipole
// (read-only after the upward pass per spec.md §9), leaving body range
// and child range to be filled in by the LET walk.
func copyCellShell(c octree.Cell) octree.Cell {
	return octree.Cell{
		X: c.X, R: c.R, Scale: c.Scale, Weight: c.Weight,
		M: append([]complex128(nil), c.M...),
	}
}

// BuildLET implements setLET/commCells: walk this rank's tree against a
// peer's remote root cube using the traversal's own MAC test, marking
// and serializing (in breadth-first order, not pre-order, with
// receiver-local offsets) exactly the cells
// the peer needs to close its own traversal — cells that already
// satisfy the MAC are included without descending further (their M
// suffices), leaves that don't are included with their bodies attached
// (the peer will need direct P2P against them), and everything else is
// subdivided. BFS-queue construction (not recursion) to guarantee
// contiguous sibling blocks, the same pattern octree.Build uses.
func BuildLET(cells []octree.Cell, bodies []body.Body, rootIdx int, peerX body.Vec3, peerR float64) (outCells []octree.Cell, outBodies []body.Body) {
	if len(cells) == 0 {
		return nil, nil
	}
	root := cells[rootIdx]
	outCells = append(outCells, copyCellShell(root))

	type item struct{ srcIdx, outIdx int }
	queue := []item{{rootIdx, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		c := cells[it.srcIdx]
		d := math.Sqrt(c.X.Sub(peerX).Norm())

		if d >= c.R+peerR || c.IsLeaf() {
			if c.IsLeaf() {
				lo := len(outBodies)
				outCells[it.outIdx].Body = lo
				outCells[it.outIdx].NBody = c.NBody
				outBodies = append(outBodies, bodies[c.Body:c.Body+c.NBody]...)
			}
			continue
		}

		childStart := len(outCells)
		for cc := c.IChild; cc < c.IChild+c.NChild; cc++ {
			outCells = append(outCells, copyCellShell(cells[cc]))
			queue = append(queue, item{cc, len(outCells) - 1})
		}
		outCells[it.outIdx].IChild = childStart
		outCells[it.outIdx].NChild = c.NChild
	}
	return outCells, outBodies
}

// MergeLET implements getLET: append a received LET fragment to this
// rank's local cell/body arrays, rewriting the fragment's internal
// offsets to the merged array's index space. The returned letRoot is
// where the fragment's root landed, the value a remote traversal starts
// from. IParent is left at -1 for fragment cells since traversal only
// ever walks IChild downward.
func MergeLET(localCells []octree.Cell, localBodies []body.Body, letCells []octree.Cell, letBodies []body.Body) (mergedCells []octree.Cell, mergedBodies []body.Body, letRoot int) {
	cellOffset := len(localCells)
	bodyOffset := len(localBodies)

	mergedCells = make([]octree.Cell, 0, len(localCells)+len(letCells))
	mergedCells = append(mergedCells, localCells...)
	mergedCells = append(mergedCells, letCells...)
	for i := cellOffset; i < len(mergedCells); i++ {
		if mergedCells[i].NChild > 0 {
			mergedCells[i].IChild += cellOffset
		}
		if mergedCells[i].IsLeaf() && mergedCells[i].NBody > 0 {
			mergedCells[i].Body += bodyOffset
		}
		mergedCells[i].IParent = -1
	}

	mergedBodies = make([]body.Body, 0, len(localBodies)+len(letBodies))
	mergedBodies = append(mergedBodies, localBodies...)
	mergedBodies = append(mergedBodies, letBodies...)
	return mergedCells, mergedBodies, cellOffset
}

// PromoteToSuperBody implements graft step 1: a rank's root cell becomes
// a point mass at the root's center carrying its monopole moment, the
// "super-body" every rank contributes to the global gather.
func PromoteToSuperBody(root octree.Cell, rank int) body.Body {
	var monopole complex128
	if len(root.M) > 0 {
		monopole = root.M[0]
	}
	return body.Body{X: root.X, SRC: monopole, IRank: rank, Weight: float64(root.NBody)}
}

// BuildGlobalTree implements graft step 2: build a small tree over the
// gathered super-bodies, one per rank, so every rank can traverse its
// local tree against this single global coarse tree instead of
// exchanging pairwise LETs (spec.md §4.G "graft (optional)").
func BuildGlobalTree(superBodies []body.Body) (cells []octree.Cell, sorted []body.Body) {
	const graftMaxLevel = 10
	bounds := body.ComputeBounds(superBodies)
	return octree.Build(superBodies, bounds, 1, graftMaxLevel)
}
