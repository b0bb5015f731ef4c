package engine

import (
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/config"
	"github.com/notargets/gofmm/internal/octree"
	"github.com/notargets/gofmm/internal/updown"
	"github.com/stretchr/testify/require"
)

func randomBodies(n int, seed int64) []body.Body {
	r := rand.New(rand.NewSource(seed))
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{
			X:     body.Vec3{r.Float64(), r.Float64(), r.Float64()},
			SRC:   complex(r.Float64()-0.5, 0),
			IBody: i,
		}
	}
	return bodies
}

func directLaplace(bodies []body.Body) []float64 {
	out := make([]float64, len(bodies))
	for i := range bodies {
		for j := range bodies {
			if i == j {
				continue
			}
			dx := bodies[i].X.Sub(bodies[j].X)
			out[i] += real(bodies[j].SRC) / math.Sqrt(dx.Norm())
		}
	}
	return out
}

// TestSolveSingleRankMatchesDirectSum covers scenario S1: default
// configuration accuracy against a brute-force reference.
func TestSolveSingleRankMatchesDirectSum(t *testing.T) {
	bodies := randomBodies(500, 11)
	want := directLaplace(bodies)

	cfg := config.Default()
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Solve(bodies, 1)
	require.NoError(t, err)
	require.Len(t, out, len(bodies))

	var maxAbs, maxErr float64
	for i := range out {
		got := real(out[i].TRG[0])
		exact := want[out[i].IBody]
		if math.Abs(exact) > maxAbs {
			maxAbs = math.Abs(exact)
		}
		if d := math.Abs(got - exact); d > maxErr {
			maxErr = d
		}
	}
	require.Less(t, maxErr/maxAbs, 0.05)
}

// TestSolveMutualFlagDoesNotAffectResult covers spec.md's "mutual" config
// option: it names a P2P optimization, so toggling it must never change the
// computed potentials, only (in principle) which code path the kernel takes
// to get there.
func TestSolveMutualFlagDoesNotAffectResult(t *testing.T) {
	bodies := randomBodies(500, 12)

	cfgMutual := config.Default()
	cfgMutual.Mutual = true
	eMutual, err := New(cfgMutual)
	require.NoError(t, err)
	defer eMutual.Close()
	withMutual, err := eMutual.Solve(bodies, 1)
	require.NoError(t, err)

	cfgNonMutual := config.Default()
	cfgNonMutual.Mutual = false
	eNonMutual, err := New(cfgNonMutual)
	require.NoError(t, err)
	defer eNonMutual.Close()
	withoutMutual, err := eNonMutual.Solve(bodies, 1)
	require.NoError(t, err)

	for i := range withMutual {
		for c := 0; c < 4; c++ {
			require.InDelta(t, real(withMutual[i].TRG[c]), real(withoutMutual[i].TRG[c]), 1e-9)
			require.InDelta(t, imag(withMutual[i].TRG[c]), imag(withoutMutual[i].TRG[c]), 1e-9)
		}
	}
}

// TestSolveTwoRanksConservesBodiesAndMatchesSingleRank covers property 7
// (partitioning conserves the body multiset) and property 8 (the LET is
// sufficient: splitting across ranks changes the answer by no more than
// the single-rank approximation error already tolerates).
func TestSolveMultiRankConservesBodiesAndMatchesSingleRank(t *testing.T) {
	bodies := randomBodies(600, 22)

	cfg := config.Default()
	cfg.NCrit = 32
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	single, err := e.Solve(bodies, 1)
	require.NoError(t, err)

	multi, err := e.Solve(bodies, 3)
	require.NoError(t, err)
	require.Len(t, multi, len(bodies))

	seen := make([]bool, len(bodies))
	for _, b := range multi {
		require.False(t, seen[b.IBody], "body %d duplicated across ranks", b.IBody)
		seen[b.IBody] = true
	}
	for i, ok := range seen {
		require.True(t, ok, "body %d missing from multi-rank result", i)
	}

	var maxAbs, maxErr float64
	for i := range bodies {
		a := real(single[i].TRG[0])
		b := real(multi[i].TRG[0])
		if math.Abs(a) > maxAbs {
			maxAbs = math.Abs(a)
		}
		if d := math.Abs(a - b); d > maxErr {
			maxErr = d
		}
	}
	require.Less(t, maxErr/maxAbs, 0.05)
}

// TestSolveGraftedMatchesPairwiseLET covers the graft optimization path
// of spec.md §4.G: it should agree with the pairwise LET path to within
// the same tolerance, since both approximate the identical sum.
func TestSolveGraftedMatchesPairwiseLET(t *testing.T) {
	bodies := randomBodies(500, 33)

	cfgPairwise := config.Default()
	cfgPairwise.NCrit = 32
	cfgPairwise.Graft = false
	ePairwise, err := New(cfgPairwise)
	require.NoError(t, err)
	defer ePairwise.Close()
	pairwise, err := ePairwise.Solve(bodies, 4)
	require.NoError(t, err)

	cfgGraft := cfgPairwise
	cfgGraft.Graft = true
	eGraft, err := New(cfgGraft)
	require.NoError(t, err)
	defer eGraft.Close()
	grafted, err := eGraft.Solve(bodies, 4)
	require.NoError(t, err)

	var maxAbs, maxErr float64
	for i := range bodies {
		a := real(pairwise[i].TRG[0])
		b := real(grafted[i].TRG[0])
		if math.Abs(a) > maxAbs {
			maxAbs = math.Abs(a)
		}
		if d := math.Abs(a - b); d > maxErr {
			maxErr = d
		}
	}
	require.Less(t, maxErr/maxAbs, 0.1)
}

// TestDipoleCorrectionMatchesClosedForm covers scenario S2's periodic
// dipole correction: given a body cloud's position-weighted dipole moment
// about the root center, DipoleCorrection should shift every body's
// potential and force by the exact closed-form amount the formula implies,
// not merely drive some aggregate statistic toward zero.
func TestDipoleCorrectionMatchesClosedForm(t *testing.T) {
	// All y,z components are zero so the dipole moment is purely along x,
	// making the expected shift easy to compute by hand.
	bodies := []body.Body{
		{X: body.Vec3{1, 0, 0}, SRC: complex(2, 0)},
		{X: body.Vec3{-1, 0, 0}, SRC: complex(3, 0)},
		{X: body.Vec3{2, 0, 0}, SRC: complex(-1, 0)},
		{X: body.Vec3{0, 0, 0}, SRC: complex(0.5, 0)},
	}
	for i := range bodies {
		bodies[i].TRG = [4]complex128{complex(10, 0), complex(1, 0), complex(2, 0), complex(3, 0)}
	}
	cells := []octree.Cell{{X: body.Vec3{0, 0, 0}}}
	cycle := 10.0

	dipoleX := 1*2.0 + -1*3.0 + 2*-1.0 + 0*0.5 // Σ(X-X0)·SRC along x
	volume := cycle * cycle * cycle
	coef := 4 * math.Pi / (3 * volume)
	n := float64(len(bodies))
	normSq := dipoleX * dipoleX

	updown.DipoleCorrection(cells, bodies, cycle)

	srcs := []float64{2, 3, -1, 0.5}
	for i, b := range bodies {
		wantPotShift := -coef * normSq / n / srcs[i]
		require.InDelta(t, 10+wantPotShift, real(b.TRG[0]), 1e-9)

		wantForceXShift := -coef * dipoleX
		require.InDelta(t, 1+wantForceXShift, real(b.TRG[1]), 1e-9)
		// y and z dipole components are zero, so those force axes are untouched.
		require.InDelta(t, 2, real(b.TRG[2]), 1e-9)
		require.InDelta(t, 3, real(b.TRG[3]), 1e-9)
	}
}
