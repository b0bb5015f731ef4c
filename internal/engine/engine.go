// Package engine implements Component H of spec.md, the orchestrator
// that sequences Components A-G into one solve: init kernels, init
// bodies, partition, buildTree, upwardPass, (commBodies+commCells in
// parallel with localTraverse), remoteTraverse, downwardPass, and
// per-body result extraction (spec.md §4.H). Ranks are simulated as
// goroutines within one process rather than MPI ranks, but the phase
// ordering and the read/write disjointness the spec requires between
// phases are preserved: local traversal writes L on local cells while
// LET fragments are built read-only from the same cells, and remote
// traversal only begins once every rank's LET fragments have arrived.
package engine

import (
	"fmt"
	"math"
	"sync"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/comm"
	"github.com/notargets/gofmm/internal/config"
	"github.com/notargets/gofmm/internal/kernel"
	"github.com/notargets/gofmm/internal/let"
	"github.com/notargets/gofmm/internal/octree"
	"github.com/notargets/gofmm/internal/partition"
	"github.com/notargets/gofmm/internal/trace"
	"github.com/notargets/gofmm/internal/traversal"
	"github.com/notargets/gofmm/internal/updown"
)

// Engine holds the process-wide state spec.md §9 calls for: the
// coefficient/quadrature Tables and the selected Kernel, both built
// once in New and reused across solves.
type Engine struct {
	Config config.SolverConfig
	Tables *kernel.Tables
	Kernel kernel.Kernel
	Trace  *trace.Logger

	// bodies backs the SetBodies/GetBodies/Partition external-interface
	// trio (spec.md §6); Solve takes its own bodies argument directly and
	// does not touch this field.
	bodies []body.Body
}

// New performs the one-time init(...) setup spec.md §6 describes:
// validate the configuration, build the Tables for the requested
// expansion order, and select the Laplace or Helmholtz kernel behind
// the Kernel interface.
func New(cfg config.SolverConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid configuration: %w", err)
	}
	tables := kernel.Init(cfg.P)
	k, err := kernel.New(string(cfg.Equation), tables, kernel.Config{
		P:     cfg.P,
		Eps2:  cfg.Eps2,
		Wavek: complex(cfg.WavekReal, cfg.WavekImag),
	})
	if err != nil {
		tables.Finalize()
		return nil, err
	}
	return &Engine{Config: cfg, Tables: tables, Kernel: k, Trace: trace.New(false)}, nil
}

// Close releases the process-wide tables.
func (e *Engine) Close() { e.Tables.Finalize() }

// SetVerbose toggles named-section timing output for subsequent solves.
func (e *Engine) SetVerbose(v bool) { e.Trace = trace.New(v) }

// SetBodies ingests a body cloud for subsequent Partition/GetBodies calls,
// the set_bodies() half of spec.md §6's external interface — the
// acoustics wrapper shape (original_source/wrappers/acoustics.cxx) sets
// sources/targets this way before calling solve and reading TRG back.
func (e *Engine) SetBodies(bodies []body.Body) {
	e.bodies = make([]body.Body, len(bodies))
	copy(e.bodies, bodies)
}

// GetBodies returns the currently loaded bodies, preserving IBody
// identity, matching spec.md §6's get_bodies().
func (e *Engine) GetBodies() []body.Body {
	out := make([]body.Body, len(e.bodies))
	copy(out, e.bodies)
	return out
}

// Partition redistributes the bodies most recently passed to SetBodies
// across np simulated ranks, stamping IRank in place — the standalone
// partition() step of spec.md §6, using whichever PartitionStrategy the
// configuration names.
func (e *Engine) Partition(np int) error {
	if np < 1 {
		return fmt.Errorf("engine: np must be >= 1, got %d", np)
	}
	bounds := body.ComputeBounds(e.bodies)
	return e.partitionInto(e.bodies, bounds, np)
}

// partitionInto stamps IRank on bodies in place according to e.Config's
// PartitionStrategy. np==1 always collapses to a single rank regardless
// of strategy.
func (e *Engine) partitionInto(bodies []body.Body, bounds body.Bounds, np int) error {
	if np == 1 {
		for i := range bodies {
			bodies[i].IRank = 0
		}
		return nil
	}
	switch e.Config.Partition {
	case config.Metis:
		return partition.MetisPartition(bodies, bounds, np, e.Config.MetisGridLevel)
	case config.Morton:
		partition.MortonPartition(bodies, bounds, np, e.Config.MaxLevel)
		return nil
	case config.Block:
		partition.BlockPartition(bodies, np)
		return nil
	default:
		partition.RecursiveBisection(bodies, np)
		return nil
	}
}

func nonZeroShift(v body.Vec3) bool { return v[0] != 0 || v[1] != 0 || v[2] != 0 }

// Direct implements spec.md §6's direct(targets, sources): an O(N²)
// reference evaluator that sums every source's contribution into every
// target's potential and gradient. It honors the same eps2 softening and
// periodic image shells Solve applies (SPEC_FULL's "direct() O(N²)
// reference evaluator with periodic image summation",
// original_source/uniform-serial/fmm.h's direct), so direct and Solve
// answers stay comparable whenever images>0 or eps2>0 is configured.
// targets is not mutated; the returned slice holds the same bodies with
// TRG populated.
func (e *Engine) Direct(targets, sources []body.Body) []body.Body {
	out := make([]body.Body, len(targets))
	copy(out, targets)
	if len(sources) == 0 {
		return out
	}

	all := make([]body.Body, 0, len(targets)+len(sources))
	all = append(all, targets...)
	all = append(all, sources...)
	bounds := body.ComputeBounds(all)
	period := body.Vec3{
		bounds.Xmax[0] - bounds.Xmin[0],
		bounds.Xmax[1] - bounds.Xmin[1],
		bounds.Xmax[2] - bounds.Xmin[2],
	}
	shifts := traversal.ImageShifts(e.Config.Images, period)
	eps2 := e.Config.Eps2

	for i := range out {
		var pot complex128
		var grad [3]complex128
		for _, xp := range shifts {
			for _, s := range sources {
				if !nonZeroShift(xp) && s.IBody == out[i].IBody {
					continue // a body never sources its own potential at zero shift
				}
				dx := out[i].X.Sub(s.X).Sub(xp)
				r2 := dx.Norm() + eps2
				if r2 == 0 {
					continue
				}
				invR := 1 / math.Sqrt(r2)
				invR3 := invR * invR * invR
				pot += s.SRC * complex(invR, 0)
				f := s.SRC * complex(invR3, 0)
				grad[0] -= complex(dx[0], 0) * f
				grad[1] -= complex(dx[1], 0) * f
				grad[2] -= complex(dx[2], 0) * f
			}
		}
		out[i].TRG[0] += pot
		out[i].TRG[1] += grad[0]
		out[i].TRG[2] += grad[1]
		out[i].TRG[3] += grad[2]
	}
	return out
}

// rank bundles everything one simulated rank owns between phases.
type rank struct {
	cells      []octree.Cell // grows as remote LET fragments are merged in
	bodies     []body.Body   // grows in lockstep
	localCells int           // cells[:localCells] is this rank's own tree
	localBody  int           // bodies[:localBody] is this rank's own bodies
	root       octree.Cell
}

// Solve runs one full evaluation over bodies, simulating np ranks. The
// input slice is not mutated; the returned slice holds every body
// (ordered by IBody) with TRG populated.
func (e *Engine) Solve(bodies []body.Body, np int) ([]body.Body, error) {
	if np < 1 {
		return nil, fmt.Errorf("engine: np must be >= 1, got %d", np)
	}
	n := len(bodies)
	if n == 0 {
		return nil, nil
	}

	globalBounds := body.ComputeBounds(bodies)
	period := body.Vec3{
		globalBounds.Xmax[0] - globalBounds.Xmin[0],
		globalBounds.Xmax[1] - globalBounds.Xmin[1],
		globalBounds.Xmax[2] - globalBounds.Xmin[2],
	}
	shifts := traversal.ImageShifts(e.Config.Images, period)
	_, rootRadius := globalBounds.Center()
	cycle := 2 * rootRadius

	working := make([]body.Body, n)
	copy(working, bodies)
	if err := e.partitionInto(working, globalBounds, np); err != nil {
		return nil, err
	}

	// commBodies (spec.md §4.G step 1): all bodies originate from one
	// logical sender in this in-process simulation, but the exchange
	// still runs the real post/deliver/receive protocol.
	shards := make([][]body.Body, np)
	shards[0] = working
	owned := let.CommBodies(shards, np)

	ranks := make([]rank, np)
	var wg sync.WaitGroup

	// buildTree + upwardPass, one goroutine per rank.
	e.Trace.StartTimer("buildTree+upwardPass")
	wg.Add(np)
	for r := 0; r < np; r++ {
		r := r
		go func() {
			defer wg.Done()
			cells, sorted := octree.Build(owned[r], globalBounds, e.Config.NCrit, e.Config.MaxLevel)
			if len(cells) == 0 {
				return
			}
			updown.AllocateExpansions(cells, e.Kernel)
			updown.UpwardPass(cells, sorted, e.Kernel, e.Config.Theta)
			ranks[r] = rank{cells: cells, bodies: sorted, localCells: len(cells), localBody: len(sorted), root: cells[0]}
		}()
	}
	wg.Wait()
	e.Trace.StopTimer("buildTree+upwardPass")

	e.Trace.StartTimer("traverse")
	if np > 1 {
		if e.Config.Graft {
			e.solveGrafted(ranks, np, shifts)
		} else {
			e.solvePairwiseLET(ranks, np, shifts)
		}
	} else {
		e.traverseLocal(&ranks[0], shifts)
	}
	e.Trace.StopTimer("traverse")

	// downwardPass runs only over each rank's own subtree: LET fragment
	// cells merged in during remote traversal are read-only foreign
	// copies and must never receive an L2L/L2P write.
	e.Trace.StartTimer("downwardPass")
	wg.Add(np)
	for r := 0; r < np; r++ {
		r := r
		go func() {
			defer wg.Done()
			rk := &ranks[r]
			if rk.localCells == 0 {
				return
			}
			updown.DownwardPass(rk.cells[:rk.localCells], rk.bodies[:rk.localBody], e.Kernel)
			if e.Config.Images > 0 {
				updown.DipoleCorrection(rk.cells[:rk.localCells], rk.bodies[:rk.localBody], cycle)
			}
		}()
	}
	wg.Wait()
	e.Trace.StopTimer("downwardPass")

	out := make([]body.Body, n)
	for r := range ranks {
		for _, b := range ranks[r].bodies[:ranks[r].localBody] {
			out[b.IBody] = b
		}
	}
	return out, nil
}

// traverseLocal runs the self-interaction dual tree traversal within a
// single rank's tree (used directly for np==1, and as the "localTraverse"
// half of the concurrent phase for np>1).
func (e *Engine) traverseLocal(rk *rank, shifts []body.Vec3) {
	if rk.localCells == 0 {
		return
	}
	tr := &traversal.Traversal{
		Kernel:   e.Kernel,
		Cells:    rk.cells[:rk.localCells],
		Bodies:   rk.bodies[:rk.localBody],
		NSpawn:   e.Config.NSpawn,
		Mutual:   e.Config.Mutual,
		SameTree: true,
	}
	tr.Run(0, 0, shifts)
}

// solvePairwiseLET implements the non-grafted path of spec.md §4.G:
// every ordered pair of ranks exchanges a LET fragment, and each rank
// traverses its own tree against every fragment it receives.
func (e *Engine) solvePairwiseLET(ranks []rank, np int, shifts []body.Vec3) {
	outgoing := make([][][]octree.Cell, np)
	outgoingBodies := make([][][]body.Body, np)
	for r := range outgoing {
		outgoing[r] = make([][]octree.Cell, np)
		outgoingBodies[r] = make([][]body.Body, np)
	}

	var wg sync.WaitGroup
	wg.Add(2 * np)
	for r := 0; r < np; r++ {
		r := r
		// localTraverse
		go func() {
			defer wg.Done()
			e.traverseLocal(&ranks[r], shifts)
		}()
		// build outgoing LET fragments for every peer, read-only on this
		// rank's own tree, safe to run concurrently with the traversal
		// above since it only writes L on local cells.
		go func() {
			defer wg.Done()
			rk := &ranks[r]
			if rk.localCells == 0 {
				return
			}
			for p := 0; p < np; p++ {
				if p == r || ranks[p].localCells == 0 {
					continue
				}
				fc, fb := let.BuildLET(rk.cells[:rk.localCells], rk.bodies[:rk.localBody], 0, ranks[p].root.X, ranks[p].root.R)
				outgoing[r][p] = fc
				outgoingBodies[r][p] = fb
			}
		}()
	}
	wg.Wait()

	// remoteTraverse: each rank merges every fragment addressed to it,
	// then traverses its own root against each merged-in fragment root.
	wg.Add(np)
	for p := 0; p < np; p++ {
		p := p
		go func() {
			defer wg.Done()
			rk := &ranks[p]
			if rk.localCells == 0 {
				return
			}
			for r := 0; r < np; r++ {
				if r == p || outgoing[r][p] == nil {
					continue
				}
				merged, mergedBodies, letRoot := let.MergeLET(rk.cells, rk.bodies, outgoing[r][p], outgoingBodies[r][p])
				rk.cells, rk.bodies = merged, mergedBodies
				tr := &traversal.Traversal{
					Kernel: e.Kernel,
					Cells:  rk.cells,
					Bodies: rk.bodies,
					NSpawn: e.Config.NSpawn,
					Mutual: false,
				}
				tr.Run(0, letRoot, shifts)
			}
		}()
	}
	wg.Wait()
}

// solveGrafted implements spec.md §4.G's graft optimization: every
// rank's root becomes a super-body, all super-bodies are gathered into
// one small global tree, and each rank traverses its local tree against
// that single graft tree instead of exchanging np-1 pairwise LETs.
func (e *Engine) solveGrafted(ranks []rank, np int, shifts []body.Vec3) {
	var wg sync.WaitGroup
	wg.Add(np)
	for r := 0; r < np; r++ {
		r := r
		go func() {
			defer wg.Done()
			e.traverseLocal(&ranks[r], shifts)
		}()
	}
	wg.Wait()

	superBodies := make([]body.Body, 0, np)
	radii := make([]float64, 0, np)
	for r, rk := range ranks {
		if rk.localCells == 0 {
			continue
		}
		superBodies = append(superBodies, let.PromoteToSuperBody(rk.root, r))
		// root.R already carries the upward pass's 1/theta MAC scaling and
		// GraftAdjacency divides by theta itself, so pass the box radius.
		radii = append(radii, rk.root.R*e.Config.Theta)
	}
	if len(superBodies) < 2 {
		return
	}

	// Diagnostic only: build the adjacency of rank pairs whose root boxes
	// are too close for the graft tree's single coarse multipole to
	// satisfy the MAC, and log its size; the matrix is not used further.
	adj := let.GraftAdjacency(superBodies, radii, e.Config.Theta)
	rows, cols := adj.Dims()
	e.Trace.Printf("graft: %d rank super-bodies, adjacency dims=%dx%d", len(superBodies), rows, cols)

	graftCells, graftBodies := let.BuildGlobalTree(superBodies)
	if len(graftCells) == 0 {
		return
	}
	// The builder returns graft cells without expansions; give them the
	// same P2M/M2M the rank trees got so remote M2L reads a real multipole.
	updown.AllocateExpansions(graftCells, e.Kernel)
	updown.UpwardPass(graftCells, graftBodies, e.Kernel, e.Config.Theta)

	// Broadcast the (identical, small) graft tree to every rank over a
	// MailBox rather than handing every goroutine a direct reference to
	// the shared slices: the coordinator posts from a virtual rank (index
	// np, outside the real [0,np) range) via PostToAll, the same
	// broadcast-to-every-peer primitive spec.md §4.G's MPI-wrapper shape
	// names (SPEC_FULL supplement #5's alltoall/alltoallv), so the graft
	// path exercises the same post/deliver/receive protocol commBodies
	// does rather than relying on in-process memory sharing alone.
	mb := comm.NewMailBox[graftFragment](np + 1)
	mb.PostToAll(np, graftFragment{Cells: graftCells, Bodies: graftBodies})
	mb.DeliverMyMessages(np)

	// The graft tree is small (one leaf per rank at most) so every rank
	// merges the whole thing rather than a per-peer pruned fragment, then
	// traverses its own root against the graft root. A rank's own
	// super-body falls inside the merged-in graft tree too; the MAC test
	// against a zero-size same-point cell simply forces it down to a
	// direct P2P against itself, which traversal already treats as a
	// same-cell no-op via sameCell.
	wg.Add(np)
	for r := 0; r < np; r++ {
		r := r
		go func() {
			defer wg.Done()
			rk := &ranks[r]
			if rk.localCells == 0 {
				return
			}
			mb.ReceiveMyMessages(r)
			if len(mb.Inbox[r]) == 0 {
				return
			}
			frag := mb.Inbox[r][0]
			merged, mergedBodies, letRoot := let.MergeLET(rk.cells, rk.bodies, frag.Cells, frag.Bodies)
			rk.cells, rk.bodies = merged, mergedBodies
			tr := &traversal.Traversal{
				Kernel: e.Kernel,
				Cells:  rk.cells,
				Bodies: rk.bodies,
				NSpawn: e.Config.NSpawn,
				Mutual: false,
			}
			tr.Run(0, letRoot, shifts)
		}()
	}
	wg.Wait()
}

// graftFragment is the message type broadcast over comm.MailBox to every
// rank during the graft path: the global coarse tree built once from all
// ranks' super-bodies.
type graftFragment struct {
	Cells  []octree.Cell
	Bodies []body.Body
}
