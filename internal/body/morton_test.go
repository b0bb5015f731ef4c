package body

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMortonRoundTrip(t *testing.T) {
	b := Bounds{Xmin: Vec3{0, 0, 0}, Xmax: Vec3{8, 8, 8}}
	level := 3 // 2^3 = 8 cells per axis
	for ix := 0; ix < 8; ix++ {
		for iy := 0; iy < 8; iy++ {
			for iz := 0; iz < 8; iz++ {
				x := Vec3{float64(ix) + 0.5, float64(iy) + 0.5, float64(iz) + 0.5}
				k := Encode(x, b, level)
				got := Decode(k, level)
				require.Equal(t, [3]int{ix, iy, iz}, got, "x=%v", x)
			}
		}
	}
}

func TestMortonClampsAtUpperFace(t *testing.T) {
	b := Bounds{Xmin: Vec3{0, 0, 0}, Xmax: Vec3{1, 1, 1}}
	k := Encode(Vec3{1, 1, 1}, b, 4)
	got := Decode(k, 4)
	require.Equal(t, [3]int{15, 15, 15}, got)
}

func TestMortonPrefixSharedAncestor(t *testing.T) {
	b := Bounds{Xmin: Vec3{0, 0, 0}, Xmax: Vec3{16, 16, 16}}
	maxLevel := 4
	a := Encode(Vec3{0.1, 0.1, 0.1}, b, maxLevel)
	c := Encode(Vec3{1.9, 0.1, 0.1}, b, maxLevel) // same depth-1 octant (both < 8)
	d := Encode(Vec3{9.0, 0.1, 0.1}, b, maxLevel) // different depth-1 octant

	require.Equal(t, a.Prefix(maxLevel, 1), c.Prefix(maxLevel, 1))
	require.NotEqual(t, a.Prefix(maxLevel, 1), d.Prefix(maxLevel, 1))
}
