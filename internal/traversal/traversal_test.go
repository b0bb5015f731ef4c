package traversal

import (
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/kernel"
	"github.com/notargets/gofmm/internal/octree"
	"github.com/notargets/gofmm/internal/updown"
	"github.com/stretchr/testify/require"
)

func directLaplace(bodies []body.Body, eps2 float64) [][4]complex128 {
	out := make([][4]complex128, len(bodies))
	for i := range bodies {
		for j := range bodies {
			if i == j {
				continue
			}
			dx := bodies[i].X.Sub(bodies[j].X)
			r2 := dx.Norm() + eps2
			invR2 := 1 / r2
			invR := math.Sqrt(invR2)
			qj := complex(real(bodies[j].SRC), 0)
			out[i][0] += qj * complex(invR, 0)
			f := qj * complex(invR2*invR, 0)
			out[i][1] -= complex(dx[0], 0) * f
			out[i][2] -= complex(dx[1], 0) * f
			out[i][3] -= complex(dx[2], 0) * f
		}
	}
	return out
}

func TestTraversalSingleLeafMatchesDirectSum(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	n := 20
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), r.Float64()}, SRC: complex(r.Float64()-0.5, 0), IBody: i}
	}
	want := directLaplace(bodies, 0)

	bounds := body.ComputeBounds(bodies)
	cells, sorted := octree.Build(bodies, bounds, 64, 10) // ncrit > n: single leaf
	require.Len(t, cells, 1)

	k, err := kernel.New("laplace", kernel.Init(6), kernel.Config{P: 6})
	require.NoError(t, err)
	updown.AllocateExpansions(cells, k)

	tr := &Traversal{Kernel: k, Cells: cells, Bodies: sorted, NSpawn: 1000, Mutual: true, SameTree: true}
	tr.Run(0, 0, ImageShifts(0, body.Vec3{}))

	for i := range sorted {
		require.InDelta(t, real(want[sorted[i].IBody][0]), real(sorted[i].TRG[0]), 1e-9)
	}
}

func TestTraversalFarFieldApproximatesDirectSum(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	n := 400
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), r.Float64()}, SRC: complex(r.Float64()-0.5, 0), IBody: i}
	}
	want := directLaplace(bodies, 0)

	bounds := body.ComputeBounds(bodies)
	cells, sorted := octree.Build(bodies, bounds, 16, 10)

	tables := kernel.Init(8)
	k, err := kernel.New("laplace", tables, kernel.Config{P: 8})
	require.NoError(t, err)
	updown.AllocateExpansions(cells, k)

	updown.UpwardPass(cells, sorted, k, 0.5)
	tr := &Traversal{Kernel: k, Cells: cells, Bodies: sorted, NSpawn: 1000, Mutual: true, SameTree: true}
	tr.Run(0, 0, ImageShifts(0, body.Vec3{}))
	updown.DownwardPass(cells, sorted, k)

	var maxAbs, maxErr float64
	for i := range sorted {
		got := real(sorted[i].TRG[0])
		exact := real(want[sorted[i].IBody][0])
		if math.Abs(exact) > maxAbs {
			maxAbs = math.Abs(exact)
		}
		if d := math.Abs(got - exact); d > maxErr {
			maxErr = d
		}
	}
	require.Less(t, maxErr/maxAbs, 0.1)
}

// TestTraversalSameTreeIgnoresMutualFlag checks that a SameTree walk
// produces identical results whether the caller's Mutual flag is true or
// false: the halved sibling-pair enumeration always needs the symmetric
// write to reach both sides of a pair, so toggling Mutual must never change
// the answer, only (in principle) which code path inside the kernel gets
// exercised.
func TestTraversalSameTreeIgnoresMutualFlag(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	n := 500
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), r.Float64()}, SRC: complex(r.Float64()-0.5, 0), IBody: i}
	}

	runWith := func(mutual bool) []body.Body {
		bounds := body.ComputeBounds(bodies)
		cells, sorted := octree.Build(bodies, bounds, 16, 10)
		tables := kernel.Init(8)
		defer tables.Finalize()
		k, err := kernel.New("laplace", tables, kernel.Config{P: 8})
		require.NoError(t, err)
		updown.AllocateExpansions(cells, k)
		updown.UpwardPass(cells, sorted, k, 0.5)
		tr := &Traversal{Kernel: k, Cells: cells, Bodies: sorted, NSpawn: 1000, Mutual: mutual, SameTree: true}
		tr.Run(0, 0, ImageShifts(0, body.Vec3{}))
		updown.DownwardPass(cells, sorted, k)
		out := make([]body.Body, n)
		for _, b := range sorted {
			out[b.IBody] = b
		}
		return out
	}

	withMutual := runWith(true)
	withoutMutual := runWith(false)

	for i := range withMutual {
		for c := 0; c < 4; c++ {
			require.InDelta(t, real(withMutual[i].TRG[c]), real(withoutMutual[i].TRG[c]), 1e-9)
			require.InDelta(t, imag(withMutual[i].TRG[c]), imag(withoutMutual[i].TRG[c]), 1e-9)
		}
	}
}

func TestImageShiftsCountsTwentySevenForOneShell(t *testing.T) {
	shifts := ImageShifts(1, body.Vec3{1, 1, 1})
	require.Len(t, shifts, 27)
	var foundZero bool
	for _, s := range shifts {
		if s == (body.Vec3{}) {
			foundZero = true
		}
	}
	require.True(t, foundZero)
}

func TestImageShiftsZeroImagesIsSingleZeroShift(t *testing.T) {
	shifts := ImageShifts(0, body.Vec3{1, 1, 1})
	require.Equal(t, []body.Vec3{{}}, shifts)
}

// TestTraversalLowNSpawnMatchesSerialFarField forces NSpawn down to 1 so
// nearly every MAC-rejected split fans out over goroutines (run under
// -race this is what exercises splitSource's concurrent writes into a
// shared undivided side's cells/bodies and would catch a reintroduced
// data race on L or TRG; run without -race it still checks the fanned-out
// answer against a high-NSpawn serial run of the same tree).
func TestTraversalLowNSpawnMatchesSerialFarField(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	n := 2000
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{X: body.Vec3{r.Float64(), r.Float64(), r.Float64()}, SRC: complex(r.Float64()-0.5, 0), IBody: i}
	}

	runWith := func(nspawn int) []body.Body {
		bounds := body.ComputeBounds(bodies)
		cells, sorted := octree.Build(bodies, bounds, 16, 10)
		tables := kernel.Init(6)
		defer tables.Finalize()
		k, err := kernel.New("laplace", tables, kernel.Config{P: 6})
		require.NoError(t, err)
		updown.AllocateExpansions(cells, k)
		updown.UpwardPass(cells, sorted, k, 0.5)
		tr := &Traversal{Kernel: k, Cells: cells, Bodies: sorted, NSpawn: nspawn, Mutual: true, SameTree: true}
		tr.Run(0, 0, ImageShifts(0, body.Vec3{}))
		updown.DownwardPass(cells, sorted, k)
		out := make([]body.Body, n)
		for _, b := range sorted {
			out[b.IBody] = b
		}
		return out
	}

	serial := runWith(1000000)
	concurrent := runWith(1)

	var maxAbs, maxErr float64
	for i := range serial {
		exact := real(serial[i].TRG[0])
		got := real(concurrent[i].TRG[0])
		if math.Abs(exact) > maxAbs {
			maxAbs = math.Abs(exact)
		}
		if d := math.Abs(got - exact); d > maxErr {
			maxErr = d
		}
	}
	require.Less(t, maxErr/maxAbs, 1e-9)
}
