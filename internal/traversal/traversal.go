// Package traversal implements Component E of spec.md: the MAC-driven
// dual tree traversal that walks a target cell against a source cell
// (the same tree for a local pass, or a local tree against a merged-in
// LET subtree for a remote pass — per spec.md §4.G, LET cells/bodies
// are appended to the local arrays with rewritten offsets, so one
// traversal implementation serves both cases) and emits P2P/M2L work.
package traversal

import (
	"math"
	"sync"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/kernel"
	"github.com/notargets/gofmm/internal/octree"
)

// Stats accumulates P2P and M2L interaction counts. Per-cell weights
// are not tracked.
type Stats struct {
	mu        sync.Mutex
	P2PCount  int64
	M2LCount  int64
}

func (s *Stats) addP2P(n int64) {
	s.mu.Lock()
	s.P2PCount += n
	s.mu.Unlock()
}

func (s *Stats) addM2L(n int64) {
	s.mu.Lock()
	s.M2LCount += n
	s.mu.Unlock()
}

// Traversal holds the configuration one dual tree walk needs: the
// kernel to dispatch P2P/M2L through, the cell and body universe (local
// cells plus any LET cells merged in with rewritten offsets), and the
// nspawn threshold below which recursion runs serially instead of
// spawning a goroutine per branch.
type Traversal struct {
	Kernel kernel.Kernel
	Cells  []octree.Cell
	Bodies []body.Body
	NSpawn int
	// Mutual is accepted for parity with spec.md's documented "mutual"
	// config option but no longer gates any write decision here: SameTree
	// traversal visits each unordered sibling-cell pair once (selfChildren)
	// and always relies on the kernel's mutual write to reach both sides,
	// so the choice isn't optional once that enumeration is in play, and
	// cross-rank (non-SameTree) traversal is never mutual regardless of
	// this field, per spec.md's "mutual P2P must be disabled across rank
	// boundaries". See dual's self-pair and general-pair branches.
	Mutual bool
	// SameTree is true when target and source are the same tree, enabling
	// self-pair dedup and mutual P2P/M2L.
	SameTree bool
	Stats    *Stats

	// cellLocks guards concurrent writes into a cell's L and its bodies'
	// TRG. Splitting the larger side of a MAC-rejected pair fans out over
	// goroutines that all share the other, undivided side (every child of
	// the split source still reports into the same target, or every child
	// of the split target still reports back into the same source under
	// the mutual write); the shared cell's index is locked for the
	// duration of the P2P/M2L call that writes it.
	cellLocks []sync.Mutex
}

// ImageShifts returns the periodic shift vectors for numImages shells
// (spec.md §4.E): an empty single zero shift when numImages==0,
// otherwise every integer combination in [-range,range]^3 scaled by the
// domain period, range = (3^numImages-1)/2.
func ImageShifts(numImages int, period body.Vec3) []body.Vec3 {
	if numImages <= 0 {
		return []body.Vec3{{}}
	}
	r := (intPow(3, numImages) - 1) / 2
	var shifts []body.Vec3
	for ix := -r; ix <= r; ix++ {
		for iy := -r; iy <= r; iy++ {
			for iz := -r; iz <= r; iz++ {
				shifts = append(shifts, body.Vec3{
					float64(ix) * period[0],
					float64(iy) * period[1],
					float64(iz) * period[2],
				})
			}
		}
	}
	return shifts
}

func intPow(base, exp int) int {
	out := 1
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// Run walks targetRoot against sourceRoot for every shift in shifts,
// dispatching P2P/M2L through tr.Kernel.
func (tr *Traversal) Run(targetRoot, sourceRoot int, shifts []body.Vec3) {
	if tr.cellLocks == nil {
		tr.cellLocks = make([]sync.Mutex, len(tr.Cells))
	}
	for _, xp := range shifts {
		tr.dual(targetRoot, sourceRoot, xp, 0)
	}
}

// lockCells locks the one or two distinct cell indices a P2P/M2L write
// touches, in index order so concurrent callers that share a subset of the
// same indices can never deadlock against each other, and returns the
// matching unlock func.
func (tr *Traversal) lockCells(a, b int) func() {
	if tr.cellLocks == nil {
		return func() {}
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	tr.cellLocks[lo].Lock()
	if hi != lo {
		tr.cellLocks[hi].Lock()
	}
	return func() {
		if hi != lo {
			tr.cellLocks[hi].Unlock()
		}
		tr.cellLocks[lo].Unlock()
	}
}

func nonZero(v body.Vec3) bool { return v[0] != 0 || v[1] != 0 || v[2] != 0 }

func (tr *Traversal) dual(ti, si int, xp body.Vec3, depth int) {
	ct, cs := &tr.Cells[ti], &tr.Cells[si]

	if tr.SameTree && ti == si && !nonZero(xp) {
		// A cell never needs a multipole contribution from itself at
		// zero periodic shift: a leaf evaluates its own bodies directly,
		// an internal cell descends into child pairs.
		if ct.IsLeaf() {
			// Self-pair P2P always writes mutually, regardless of
			// Config.Mutual: there is only one side here (ct==cs), so a
			// non-mutual call would silently skip half the interactions
			// within the cell rather than express a real one-sided P2P.
			unlock := tr.lockCells(ti, ti)
			tr.Kernel.P2P(ct, ct, tr.Bodies, xp, true)
			unlock()
			if tr.Stats != nil {
				tr.Stats.addP2P(int64(ct.NBody) * int64(ct.NBody))
			}
			return
		}
		tr.selfChildren(ti, xp, depth)
		return
	}

	d := dist(ct.X, cs.X, xp)
	// selfChildren visits each unordered sibling pair exactly once, so a
	// SameTree walk's general (non-self) pair must always write mutually
	// to reach both ct and cs; cross-rank walks must never write mutually
	// regardless of the caller's Mutual setting, since the remote side
	// can't observe the symmetric write. Neither case is a free choice, so
	// this doesn't consult tr.Mutual.
	mutual := tr.SameTree
	if d >= ct.R+cs.R {
		unlock := tr.lockCells(ti, si)
		tr.Kernel.M2L(ct, cs, xp, mutual && !sameCell(ti, si))
		unlock()
		if tr.Stats != nil {
			tr.Stats.addM2L(1)
		}
		return
	}

	if ct.IsLeaf() && cs.IsLeaf() {
		unlock := tr.lockCells(ti, si)
		tr.Kernel.P2P(ct, cs, tr.Bodies, xp, mutual)
		unlock()
		if tr.Stats != nil {
			tr.Stats.addP2P(int64(ct.NBody) * int64(cs.NBody))
		}
		return
	}

	// Subdivide the larger (or only divisible) cell, the standard
	// dual-tree descent rule. A radius tie (the common case for same-depth
	// siblings, since every cell's radius comes from repeated exact
	// halving) falls back to whichever side has more children to split,
	// and failing that, splits the source.
	var splitSource bool
	switch {
	case ct.IsLeaf():
		splitSource = true
	case cs.IsLeaf():
		splitSource = false
	case cs.R != ct.R:
		splitSource = cs.R > ct.R
	case cs.NChild != ct.NChild:
		splitSource = cs.NChild > ct.NChild
	default:
		splitSource = true
	}

	var pairs [][2]int
	if splitSource {
		for ci := cs.IChild; ci < cs.IChild+cs.NChild; ci++ {
			pairs = append(pairs, [2]int{ti, ci})
		}
	} else {
		for ci := ct.IChild; ci < ct.IChild+ct.NChild; ci++ {
			pairs = append(pairs, [2]int{ci, si})
		}
	}

	grain := ct.NBody + cs.NBody
	if grain >= tr.NSpawn && depth < 12 {
		var wg sync.WaitGroup
		for _, p := range pairs {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				tr.dual(p[0], p[1], xp, depth+1)
			}()
		}
		wg.Wait()
		return
	}
	for _, p := range pairs {
		tr.dual(p[0], p[1], xp, depth+1)
	}
}

// selfChildren enumerates the within-cell child pairs of a self-pair at
// zero shift: each ordered pair (i,j) with i<=j is visited once, mutual
// handles the symmetric half.
func (tr *Traversal) selfChildren(ti int, xp body.Vec3, depth int) {
	c := &tr.Cells[ti]
	for a := c.IChild; a < c.IChild+c.NChild; a++ {
		tr.dual(a, a, xp, depth+1)
		for b := a + 1; b < c.IChild+c.NChild; b++ {
			tr.dual(a, b, xp, depth+1)
		}
	}
}

func sameCell(a, b int) bool { return a == b }

func dist(a, b, xp body.Vec3) float64 {
	d := a.Sub(b).Sub(xp)
	return math.Sqrt(d.Norm())
}
