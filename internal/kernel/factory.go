package kernel

import "fmt"

// New selects the kernel implementation for equation ("laplace" or
// "helmholtz"), the one polymorphism point spec.md §9 calls for: the
// orchestrator picks a concrete Kernel once at setup and every
// subsequent call site only sees the Kernel interface.
func New(equation string, t *Tables, cfg Config) (Kernel, error) {
	switch equation {
	case "laplace":
		return newLaplace(t, cfg), nil
	case "helmholtz":
		return newHelmholtz(t, cfg), nil
	default:
		return nil, fmt.Errorf("kernel: unknown equation %q", equation)
	}
}
