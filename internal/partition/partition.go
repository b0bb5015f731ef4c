// Package partition implements Component F of spec.md: the recursive
// bisection partitioner that stamps every body's IRank, plus an
// alternate METIS-backed graph partitioner grounded in the teacher's
// DG3D/mesh.MeshPartitioner (same buildGraph → PartGraphKwayWeighted →
// stamp-assignment shape, generalized from mesh elements to a coarse
// spatial grid over bodies).
package partition

import (
	"fmt"
	"sort"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/comm"
	"github.com/notargets/gofmm/internal/octree"
)

// RecursiveBisection implements spec.md §4.F: recursively split bodies
// by the longest axis of their bounding box, choosing the splitting
// coordinate so weight left of it approximates the target rank-count
// ratio, until every rank range has narrowed to one rank. No sort is
// done: every body whose coordinate equals the split value goes to the
// left half, so ties are not broken by original index.
func RecursiveBisection(bodies []body.Body, np int) {
	if np <= 0 {
		panic("partition: np must be positive")
	}
	idx := make([]int, len(bodies))
	for i := range idx {
		idx[i] = i
	}
	bisect(bodies, idx, 0, np)
}

// bisect assigns ranks [rankLo, rankLo+np) to the bodies indexed by idx.
func bisect(bodies []body.Body, idx []int, rankLo, np int) {
	if np <= 1 {
		for _, i := range idx {
			bodies[i].IRank = rankLo
		}
		return
	}
	if len(idx) == 0 {
		return
	}
	npLeft := np / 2
	npRight := np - npLeft

	axis, bmin, bmax := longestAxis(bodies, idx)

	totalWeight := 0.0
	for _, i := range idx {
		totalWeight += weightOf(bodies[i])
	}
	target := totalWeight * float64(npLeft) / float64(np)

	var split int
	if bmax > bmin {
		// Find the splitting coordinate with the same bucket-sampling
		// nth-element search the original uses instead of a full sort,
		// then do a single left/right partition against it.
		splitValue := weightedSplitValue(bodies, idx, axis, target)
		left := make([]int, 0, len(idx))
		right := make([]int, 0, len(idx))
		for _, i := range idx {
			if bodies[i].X[axis] <= splitValue {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		copy(idx, left)
		copy(idx[len(left):], right)
		split = len(left)
	} else {
		// Degenerate (all bodies share one coordinate): split by count.
		split = len(idx) * npLeft / np
	}
	if split == 0 {
		split = 1
	}
	if split == len(idx) && len(idx) > 1 {
		split = len(idx) - 1
	}

	bisect(bodies, idx[:split], rankLo, npLeft)
	bisect(bodies, idx[split:], rankLo+npLeft, npRight)
}

// bisectMaxBucket caps the number of candidate split values sampled per
// round, the same role the original's maxBucket=1000 plays for getBucket.
const bisectMaxBucket = 64

// weightedSplitValue implements the original's distributed nth-element
// search (original_source/include/mympi.h's nth_element/getBucket) over a
// single in-process address space instead of across MPI ranks: rather than
// a full sort, it samples candidate split values from the considered range,
// buckets every element's weight against those samples, and narrows to
// whichever bucket contains the target cumulative weight, repeating until a
// single distinct value remains. The MPI_Gather/MPI_Reduce/MPI_Bcast rounds
// collapse to plain slice operations since every "rank" here is a goroutine
// sharing one address space, but the iterative bucket narrowing and the
// original's "nth==-1 don't split" floor — an empty leading bucket falls
// back to bucket 0 instead of underflowing — are unchanged.
func weightedSplitValue(bodies []body.Body, idx []int, axis int, targetWeight float64) float64 {
	consider := append([]int(nil), idx...)
	for {
		n := len(consider)
		numSample := bisectMaxBucket
		if numSample > n {
			numSample = n
		}
		stride := n / numSample
		if stride == 0 {
			stride = 1
		}
		samples := make([]float64, 0, numSample)
		for i := 0; i < n; i += stride {
			samples = append(samples, bodies[consider[i]].X[axis])
		}
		sort.Float64s(samples)
		samples = uniqueFloat64s(samples)
		numBucket := len(samples)
		if numBucket <= 1 {
			return samples[0]
		}

		bucketOf := func(v float64) int {
			b := sort.SearchFloat64s(samples, v)
			if b >= numBucket {
				b = numBucket - 1
			}
			return b
		}

		bucketWeight := make([]float64, numBucket)
		for _, i := range consider {
			bucketWeight[bucketOf(bodies[i].X[axis])] += weightOf(bodies[i])
		}
		cum := make([]float64, numBucket)
		for i := 1; i < numBucket; i++ {
			cum[i] = cum[i-1] + bucketWeight[i-1]
		}

		nth := 0
		for nth < numBucket && targetWeight > cum[nth] {
			nth++
		}
		nth--
		if nth == -1 {
			nth = 0
		}
		targetWeight -= cum[nth]

		next := consider[:0:0]
		for _, i := range consider {
			if bucketOf(bodies[i].X[axis]) == nth {
				next = append(next, i)
			}
		}
		consider = next
	}
}

func uniqueFloat64s(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	out := v[:1]
	for _, x := range v[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func weightOf(b body.Body) float64 {
	if b.Weight > 0 {
		return b.Weight
	}
	return 1
}

func longestAxis(bodies []body.Body, idx []int) (axis int, lo, hi float64) {
	var mins, maxs [3]float64
	for d := 0; d < 3; d++ {
		mins[d], maxs[d] = bodies[idx[0]].X[d], bodies[idx[0]].X[d]
	}
	for _, i := range idx {
		for d := 0; d < 3; d++ {
			v := bodies[i].X[d]
			if v < mins[d] {
				mins[d] = v
			}
			if v > maxs[d] {
				maxs[d] = v
			}
		}
	}
	best, bestSpan := 0, -1.0
	for d := 0; d < 3; d++ {
		span := maxs[d] - mins[d]
		if span > bestSpan {
			best, bestSpan = d, span
		}
	}
	return best, mins[best], maxs[best]
}

// MetisPartition is the alternate partitioning backend spec.md §4.F's
// "callers may supply interaction-count weights" note allows for: it
// builds a coarse uniform grid over the body cloud, treats grid cells
// as graph vertices weighted by body count, connects face-adjacent
// cells, and lets METIS balance the cut the same way
// DG3D/mesh.MeshPartitioner.Partition balances mesh elements across
// ranks.
func MetisPartition(bodies []body.Body, bounds body.Bounds, np, gridLevel int) error {
	cells, sorted := octree.BuildUniform(bodies, bounds, gridLevel)
	if len(cells) == 0 {
		return nil
	}
	side := 1 << uint(gridLevel)

	leafIdx := make([]int, 0, len(cells))
	for i, c := range cells {
		if c.IsLeaf() {
			leafIdx = append(leafIdx, i)
		}
	}
	gridOf := make(map[int][3]int, len(leafIdx))
	posOf := make(map[[3]int]int, len(leafIdx))
	cellSize := bounds.Xmax.Sub(bounds.Xmin)
	for rank, ci := range leafIdx {
		c := cells[ci]
		var g [3]int
		for d := 0; d < 3; d++ {
			span := cellSize[d]
			if span <= 0 {
				g[d] = 0
				continue
			}
			frac := (c.X[d] - bounds.Xmin[d]) / span
			gi := int(frac * float64(side))
			if gi >= side {
				gi = side - 1
			}
			if gi < 0 {
				gi = 0
			}
			g[d] = gi
		}
		gridOf[rank] = g
		posOf[g] = rank
	}

	nv := int32(len(leafIdx))
	vwgt := make([]int32, nv)
	for rank, ci := range leafIdx {
		vwgt[rank] = int32(cells[ci].NBody)
		if vwgt[rank] == 0 {
			vwgt[rank] = 1
		}
	}

	xadj := make([]int32, nv+1)
	var adjncy []int32
	dirs := [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	for rank := 0; rank < int(nv); rank++ {
		g := gridOf[rank]
		for _, d := range dirs {
			nb := [3]int{g[0] + d[0], g[1] + d[1], g[2] + d[2]}
			if other, ok := posOf[nb]; ok {
				adjncy = append(adjncy, int32(other))
			}
		}
		xadj[rank+1] = int32(len(adjncy))
	}

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return fmt.Errorf("partition: metis options: %w", err)
	}
	opts[metis.OptionObjType] = metis.ObjTypeVol

	part, _, err := metis.PartGraphKwayWeighted(xadj, adjncy, vwgt, nil, int32(np), nil, nil, opts)
	if err != nil {
		return fmt.Errorf("partition: metis partitioning: %w", err)
	}

	for rank, ci := range leafIdx {
		c := cells[ci]
		for b := c.Body; b < c.Body+c.NBody; b++ {
			sorted[b].IRank = int(part[rank])
		}
	}
	copy(bodies, sorted)
	return nil
}

// BlockPartition implements the cheapest alternate of all: split the body
// array's existing order into np contiguous blocks via comm.PartitionMap
// and look up each index's owner with PartitionMap.RankOf, without
// sorting by coordinate or Morton key at all. Meaningful only when the
// caller already hands bodies in a spatially coherent order (e.g. read
// back from a prior Hilbert- or Morton-ordered run, or generated in
// scanline order), the same "trust the caller's order" shortcut
// spec.md §4.F allows alternate weighting/strategies to take.
func BlockPartition(bodies []body.Body, np int) {
	if len(bodies) == 0 {
		return
	}
	pm := comm.NewPartitionMap(np, len(bodies))
	for i := range bodies {
		bodies[i].IRank = pm.RankOf(i)
	}
}

// MortonPartition implements a third, cheaper alternate: sort bodies by
// Morton key at maxLevel (locality-preserving, so each contiguous chunk
// stays spatially compact) and split the sorted order into np ranges
// with comm.PartitionMap — the same contiguous-range-with-at-most-one-
// item-imbalance scheme spec.md §4.F's default uses for cell/body index
// ranges, reused here at the partitioning stage itself for body clouds
// where a full weighted-median bisection isn't worth the cost.
func MortonPartition(bodies []body.Body, bounds body.Bounds, np, maxLevel int) {
	n := len(bodies)
	if n == 0 {
		return
	}
	keys := make([]body.Key, n)
	idx := make([]int, n)
	for i, b := range bodies {
		keys[i] = body.Encode(b.X, bounds, maxLevel)
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	pm := comm.NewPartitionMap(np, n)
	rank := 0
	_, hi := pm.GetBucketRange(rank)
	for pos, i := range idx {
		for pos >= hi && rank < np-1 {
			rank++
			_, hi = pm.GetBucketRange(rank)
		}
		bodies[i].IRank = rank
	}
}
