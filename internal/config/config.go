// Package config holds the YAML-parsed solver configuration, the same
// shape as the teacher's InputParameters.InputParameters2D
// (github.com/ghodss/yaml over a tagged struct with a Parse/Print pair).
package config

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Equation selects the kernel family (spec.md §4.C).
type Equation string

const (
	Laplace   Equation = "laplace"
	Helmholtz Equation = "helmholtz"
)

// PartitionStrategy selects the algorithm Component F uses to stamp
// every body's IRank (spec.md §4.F names recursive bisection as the
// default and allows callers to supply an alternate weighting/strategy).
type PartitionStrategy string

const (
	// RCB is the recursive coordinate bisection of spec.md §4.F.
	RCB PartitionStrategy = "rcb"
	// Metis balances a coarse spatial grid graph with go-metis instead,
	// better suited to highly clustered (non-uniform) body clouds.
	Metis PartitionStrategy = "metis"
	// Morton sorts bodies by Morton key and splits the sorted order into
	// np contiguous, locality-preserving ranges — cheaper than RCB or
	// Metis when an approximately balanced, approximately spatial split
	// is good enough.
	Morton PartitionStrategy = "morton"
	// Block splits the bodies' existing array order into np contiguous
	// blocks with no sort at all, for callers that already hand bodies
	// in a spatially coherent order.
	Block PartitionStrategy = "block"
)

// SolverConfig collects the configuration options recognized by the core
// (spec.md §6): theta, P, ncrit, nspawn, images, maxLevel, mutual, graft,
// plus softening and wavenumber.
type SolverConfig struct {
	Equation Equation `yaml:"Equation"`

	Theta    float64 `yaml:"Theta"`
	P        int     `yaml:"P"`
	NCrit    int     `yaml:"NCrit"`
	MaxLevel int     `yaml:"MaxLevel"`
	Images   int     `yaml:"Images"`
	Eps2     float64 `yaml:"Eps2"`

	WavekReal float64 `yaml:"WavekReal"`
	WavekImag float64 `yaml:"WavekImag"`

	Mutual bool `yaml:"Mutual"`
	Graft  bool `yaml:"Graft"`

	NSpawn  int `yaml:"NSpawn"`
	Threads int `yaml:"Threads"`

	Uniform bool `yaml:"Uniform"`

	Partition     PartitionStrategy `yaml:"Partition"`
	MetisGridLevel int              `yaml:"MetisGridLevel"`
}

// Default returns the configuration used by scenario S1 of spec.md §8:
// theta=0.4, P=7, ncrit=64, images=0, Laplace.
func Default() SolverConfig {
	return SolverConfig{
		Equation: Laplace,
		Theta:    0.4,
		P:        7,
		NCrit:    64,
		MaxLevel: 10,
		Images:   0,
		Eps2:     0,
		Mutual:   true,
		Graft:    false,
		NSpawn:   1000,
		Threads:  0,
		Uniform:  false,

		Partition:      RCB,
		MetisGridLevel: 3,
	}
}

// Parse unmarshals YAML bytes into the receiver, matching the teacher's
// InputParameters2D.Parse signature.
func (c *SolverConfig) Parse(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// Validate rejects configuration errors before the first collective
// operation, per spec.md §7's "Configuration errors...fail before the
// first collective" rule.
func (c *SolverConfig) Validate() error {
	if c.Theta <= 0 || c.Theta > 1 {
		return fmt.Errorf("theta must be in (0, 1], got %v", c.Theta)
	}
	if c.P < 1 || c.P > 50 {
		return fmt.Errorf("P out of supported range [1,50], got %d", c.P)
	}
	if c.NCrit < 1 {
		return fmt.Errorf("ncrit must be >= 1, got %d", c.NCrit)
	}
	if c.MaxLevel < 1 || c.MaxLevel > 21 {
		return fmt.Errorf("maxLevel out of supported range [1,21], got %d", c.MaxLevel)
	}
	if c.Images < 0 {
		return fmt.Errorf("images must be >= 0, got %d", c.Images)
	}
	if c.Eps2 < 0 {
		return fmt.Errorf("eps2 must be >= 0, got %v", c.Eps2)
	}
	if c.Equation != Laplace && c.Equation != Helmholtz {
		return fmt.Errorf("unknown equation %q, want %q or %q", c.Equation, Laplace, Helmholtz)
	}
	if c.NSpawn < 1 {
		return fmt.Errorf("nspawn must be >= 1, got %d", c.NSpawn)
	}
	if c.Partition != RCB && c.Partition != Metis && c.Partition != Morton && c.Partition != Block {
		return fmt.Errorf("unknown partition strategy %q, want %q, %q, %q, or %q", c.Partition, RCB, Metis, Morton, Block)
	}
	if c.Partition == Metis && (c.MetisGridLevel < 1 || c.MetisGridLevel > 10) {
		return fmt.Errorf("metisGridLevel out of supported range [1,10], got %d", c.MetisGridLevel)
	}
	return nil
}

// Print mirrors the teacher's InputParameters2D.Print for quick operator
// visibility during a solve.
func (c *SolverConfig) Print() {
	fmt.Printf("%8s\t\t= Equation\n", c.Equation)
	fmt.Printf("%8.5f\t\t= Theta\n", c.Theta)
	fmt.Printf("%8d\t\t= P\n", c.P)
	fmt.Printf("%8d\t\t= NCrit\n", c.NCrit)
	fmt.Printf("%8d\t\t= MaxLevel\n", c.MaxLevel)
	fmt.Printf("%8d\t\t= Images\n", c.Images)
	fmt.Printf("%8.5v\t\t= Eps2\n", c.Eps2)
	fmt.Printf("%8v\t\t= Mutual\n", c.Mutual)
	fmt.Printf("%8v\t\t= Graft\n", c.Graft)
	fmt.Printf("%8s\t\t= Partition\n", c.Partition)
}
