// Package body implements the data model of spec.md §3: bodies, bounds,
// and the Morton (Z-order) codec of Component A. Coordinates are packed
// as plain arrays rather than an owning-pointer graph, per spec.md §9's
// "re-express as flat arrays plus integer offsets" design note.
package body

// Vec3 is a 3-vector of real coordinates, gradient components, or shift
// offsets.
type Vec3 [3]float64

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a[0] * s, a[1] * s, a[2] * s} }

func (a Vec3) Norm() float64 { return a[0]*a[0] + a[1]*a[1] + a[2]*a[2] }

// Body is a single source/target point (spec.md §3). SRC and TRG are
// complex so one type serves both the real Laplace kernel (imaginary
// parts left at zero) and the complex Helmholtz kernel.
type Body struct {
	X       Vec3
	SRC     complex128
	QWeight float64
	TRG     [4]complex128

	IBody  int
	IRank  int
	Weight float64
}

// Bounds is the (Xmin, Xmax) pair reduced across ranks (spec.md §3).
type Bounds struct {
	Xmin Vec3
	Xmax Vec3
}

// ComputeBounds computes the elementwise min/max of positions across a
// local body slice (the rank-local half of all_reduce_bounds).
func ComputeBounds(bodies []Body) Bounds {
	if len(bodies) == 0 {
		return Bounds{}
	}
	b := Bounds{Xmin: bodies[0].X, Xmax: bodies[0].X}
	for _, body := range bodies[1:] {
		for d := 0; d < 3; d++ {
			if body.X[d] < b.Xmin[d] {
				b.Xmin[d] = body.X[d]
			}
			if body.X[d] > b.Xmax[d] {
				b.Xmax[d] = body.X[d]
			}
		}
	}
	return b
}

// Merge combines two Bounds by taking the elementwise min of Xmin and max
// of Xmax, the reduction operator used by all_reduce_bounds across ranks.
func (b Bounds) Merge(o Bounds) Bounds {
	out := b
	for d := 0; d < 3; d++ {
		if o.Xmin[d] < out.Xmin[d] {
			out.Xmin[d] = o.Xmin[d]
		}
		if o.Xmax[d] > out.Xmax[d] {
			out.Xmax[d] = o.Xmax[d]
		}
	}
	return out
}

// Center returns the cube center and half-side radius that contains
// Bounds, the seed for the root cell.
func (b Bounds) Center() (center Vec3, radius float64) {
	r := 0.0
	for d := 0; d < 3; d++ {
		diam := b.Xmax[d] - b.Xmin[d]
		if diam > r {
			r = diam
		}
		center[d] = (b.Xmax[d] + b.Xmin[d]) / 2
	}
	return center, r/2 + 1e-9
}

// ResetSRC lets the caller reset source strengths between solves while
// preserving position/identity, the one mutation spec.md §3 grants to the
// caller.
func ResetSRC(bodies []Body, src []complex128) {
	for i := range bodies {
		bodies[i].SRC = src[i]
		bodies[i].TRG = [4]complex128{}
	}
}
