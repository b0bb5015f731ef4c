package octree

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
		bodies[i] = body.Body{
			X:     body.Vec3{r.Float64(), r.Float64(), r.Float64()},
			SRC:   complex(1.0/float64(n), 0),
			IBody: i,
		}
	}
	return bodies
}

func TestTreeCoverage(t *testing.T) {
	bodies := randomBodies(1000, 1)
	bounds := body.ComputeBounds(bodies)
	cells, sorted := Build(bodies, bounds, 16, 10)
	require.Equal(t, len(bodies), len(sorted))

	total := 0
	for _, c := range cells {
		if c.IsLeaf() {
			total += c.NBody
		}
	}
	require.Equal(t, len(bodies), total)

	// Leaf ranges union to [0, N).
	covered := make([]bool, len(sorted))
	for _, c := range cells {
		if !c.IsLeaf() {
			continue
		}
		for i := c.Body; i < c.Body+c.NBody; i++ {
			require.False(t, covered[i], "body %d covered twice", i)
			covered[i] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "body %d not covered", i)
	}
}

func TestTreeContainment(t *testing.T) {
	bodies := randomBodies(2000, 2)
	bounds := body.ComputeBounds(bodies)
	cells, _ := Build(bodies, bounds, 32, 12)

	require.Equal(t, 0, cells[0].IParent)
	for i, c := range cells {
		if i == 0 {
			continue
		}
		p := cells[c.IParent]
		for d := 0; d < 3; d++ {
			require.LessOrEqual(t, p.X[d]-p.R, c.X[d]-c.R+1e-12)
			require.GreaterOrEqual(t, p.X[d]+p.R, c.X[d]+c.R-1e-12)
			require.GreaterOrEqual(t, c.X[d], p.X[d]-p.R-1e-12)
			require.LessOrEqual(t, c.X[d], p.X[d]+p.R+1e-12)
		}
	}
}

func TestTreeEmptyBodySet(t *testing.T) {
	cells, sorted := Build(nil, body.Bounds{}, 16, 10)
	require.Nil(t, cells)
	require.Nil(t, sorted)
}

func TestNCritRespected(t *testing.T) {
	bodies := randomBodies(5000, 3)
	bounds := body.ComputeBounds(bodies)
	ncrit := 64
	cells, _ := Build(bodies, bounds, ncrit, 12)
	for _, c := range cells {
		if c.IsLeaf() {
			require.LessOrEqual(t, c.NBody, ncrit)
		}
	}
}

func TestUniformTreeComplete(t *testing.T) {
	bodies := randomBodies(500, 4)
	bounds := body.ComputeBounds(bodies)
	cells, sorted := BuildUniform(bodies, bounds, 3)
	require.Equal(t, len(bodies), len(sorted))
	leafCount := 0
	for _, c := range cells {
		if c.IsLeaf() {
			leafCount++
		} else {
			require.Equal(t, 8, c.NChild)
		}
	}
	require.Equal(t, 1<<(3*3), leafCount)
}

func TestDuplicatePointsCoexistInDeepestLeaf(t *testing.T) {
	bodies := make([]body.Body, 10)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{0.5, 0.5, 0.5}, SRC: complex(1, 0), IBody: i}
	}
	bounds := body.Bounds{Xmin: body.Vec3{0, 0, 0}, Xmax: body.Vec3{1, 1, 1}}
	cells, sorted := Build(bodies, bounds, 4, 6)
	require.Equal(t, 10, len(sorted))
	foundLeafWithAll := false
	for _, c := range cells {
		if c.IsLeaf() && c.NBody == 10 {
			foundLeafWithAll = true
		}
	}
	require.True(t, foundLeafWithAll)
}
