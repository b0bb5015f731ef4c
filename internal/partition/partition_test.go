package partition

import (
	"math/rand"
	"testing"

	"github.com/notargets/gofmm/internal/body"
	"github.com/stretchr/testify/require"
)

func randomBodies(n int, seed int64) []body.Body {
	r := rand.New(rand.NewSource(seed))
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), r.Float64()}, IBody: i}
	}
	return bodies
}

func TestRecursiveBisectionBalancesTwoRanks(t *testing.T) {
	bodies := randomBodies(2000, 11)
	RecursiveBisection(bodies, 2)

	counts := map[int]int{}
	for _, b := range bodies {
		counts[b.IRank]++
	}
	require.Len(t, counts, 2)
	require.InDelta(t, 1000, counts[0], 200)
	require.InDelta(t, 1000, counts[1], 200)
}

func TestRecursiveBisectionCoversAllRanksAndBodies(t *testing.T) {
	bodies := randomBodies(500, 3)
	const np = 5
	RecursiveBisection(bodies, np)

	seenBody := make([]bool, len(bodies))
	counts := make([]int, np)
	for _, b := range bodies {
		require.False(t, seenBody[b.IBody])
		seenBody[b.IBody] = true
		require.GreaterOrEqual(t, b.IRank, 0)
		require.Less(t, b.IRank, np)
		counts[b.IRank]++
	}
	for _, ok := range seenBody {
		require.True(t, ok)
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	require.Equal(t, len(bodies), total)
}

func TestRecursiveBisectionSingleRank(t *testing.T) {
	bodies := randomBodies(50, 4)
	RecursiveBisection(bodies, 1)
	for _, b := range bodies {
		require.Equal(t, 0, b.IRank)
	}
}

func TestRecursiveBisectionMoreRanksThanBodies(t *testing.T) {
	bodies := randomBodies(3, 5)
	RecursiveBisection(bodies, 8)
	for _, b := range bodies {
		require.GreaterOrEqual(t, b.IRank, 0)
		require.Less(t, b.IRank, 8)
	}
}

func TestMortonPartitionCoversAllRanksAndBalances(t *testing.T) {
	bodies := randomBodies(2000, 21)
	bounds := body.ComputeBounds(bodies)
	const np = 4
	MortonPartition(bodies, bounds, np, 10)

	counts := make([]int, np)
	for _, b := range bodies {
		require.GreaterOrEqual(t, b.IRank, 0)
		require.Less(t, b.IRank, np)
		counts[b.IRank]++
	}
	for _, c := range counts {
		require.InDelta(t, 500, c, 50)
	}
}

func TestMortonPartitionSpatiallyCoherent(t *testing.T) {
	// Bodies split cleanly into a lower half and an upper half along z,
	// the axis a Morton key's most significant bit encodes; a
	// locality-preserving partition should keep each half on its own
	// rank rather than interleaving them.
	r := rand.New(rand.NewSource(9))
	n := 2000
	bodies := make([]body.Body, n)
	for i := range bodies {
		z := r.Float64() * 0.4
		if i >= n/2 {
			z = 0.6 + r.Float64()*0.4
		}
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), z}, IBody: i}
	}
	bounds := body.ComputeBounds(bodies)
	MortonPartition(bodies, bounds, 2, 10)

	leftRank, rightRank := map[int]int{}, map[int]int{}
	for i, b := range bodies {
		if i < n/2 {
			leftRank[b.IRank]++
		} else {
			rightRank[b.IRank]++
		}
	}
	require.Len(t, leftRank, 1)
	require.Len(t, rightRank, 1)
}

func TestBlockPartitionCoversAllRanksInOrder(t *testing.T) {
	bodies := randomBodies(1003, 31)
	const np = 4
	BlockPartition(bodies, np)

	counts := make([]int, np)
	for i, b := range bodies {
		require.GreaterOrEqual(t, b.IRank, 0)
		require.Less(t, b.IRank, np)
		if i > 0 {
			require.GreaterOrEqual(t, b.IRank, bodies[i-1].IRank)
		}
		counts[b.IRank]++
	}
	for _, c := range counts {
		require.InDelta(t, 1003/np, c, 1)
	}
}
