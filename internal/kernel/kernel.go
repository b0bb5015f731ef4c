package kernel

import "github.com/notargets/gofmm/internal/octree"
import "github.com/notargets/gofmm/internal/body"

// Kernel is the capability set spec.md §9 calls for: P2M, M2M, M2L, L2L,
// L2P, P2P, plus NTerm, selected once at setup rather than dispatched
// per-cell. New returns a *LaplaceKernel or *HelmholtzKernel behind this
// interface.
type Kernel interface {
	NTerm() int

	// P2P evaluates the direct pairwise kernel between bodies of ci and
	// cj, shifted by xperiodic. When mutual is true, both ci and cj's
	// bodies receive contributions in one pass; otherwise only ci's
	// bodies are updated (spec.md §4.C).
	P2P(ci, cj *octree.Cell, bodies []body.Body, xperiodic body.Vec3, mutual bool)

	// P2M converts the sources of leaf cell c into a multipole
	// expansion about c.X.
	P2M(c *octree.Cell, bodies []body.Body)

	// M2M translates every child's multipole into parent's multipole.
	M2M(parent *octree.Cell, children []octree.Cell)

	// M2L translates cj's multipole into a local expansion contribution
	// added to ci.L. When mutual is true, the symmetric contribution to
	// cj.L is also added in the same call.
	M2L(ci, cj *octree.Cell, xperiodic body.Vec3, mutual bool)

	// L2L translates parent's local expansion into child.L.
	L2L(child, parent *octree.Cell)

	// L2P evaluates the local expansion of leaf cell c at each of its
	// bodies, writing potential and gradient into TRG.
	L2P(c *octree.Cell, bodies []body.Body)
}

// Config is the subset of internal/config.SolverConfig the kernel layer
// needs, kept separate so kernel does not import config (and vice
// versa) — only the orchestrator wires the two together.
type Config struct {
	P     int
	Eps2  float64
	Wavek complex128
}
