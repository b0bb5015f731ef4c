/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"math"
	"math/rand"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gofmm/internal/body"
	"github.com/notargets/gofmm/internal/config"
	"github.com/notargets/gofmm/internal/engine"
)

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Evaluate an N-body potential/gradient sum via the Fast Multipole Method",
	Long: `
Builds a random body cloud from --seed (the configuration file sets
solver options only, not bodies), partitions it
across a simulated number of ranks, and evaluates the Laplace or Helmholtz
potential and gradient sum with the Fast Multipole Method.

gofmm solve `,
	Run: func(cmd *cobra.Command, args []string) {
		if cpuProfile, _ := cmd.Flags().GetBool("cpuprofile"); cpuProfile {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		cfg := config.Default()
		if cfgPath, _ := cmd.Flags().GetString("cfgFile"); cfgPath != "" {
			data, err := ioutil.ReadFile(cfgPath)
			cobra.CheckErr(err)
			cobra.CheckErr(yaml.Unmarshal(data, &cfg))
		}
		if eq, _ := cmd.Flags().GetString("equation"); eq != "" {
			cfg.Equation = config.Equation(eq)
		}
		if v, _ := cmd.Flags().GetFloat64("theta"); v != 0 {
			cfg.Theta = v
		}
		if v, _ := cmd.Flags().GetInt("p"); v != 0 {
			cfg.P = v
		}
		if v, _ := cmd.Flags().GetInt("ncrit"); v != 0 {
			cfg.NCrit = v
		}
		if v, _ := cmd.Flags().GetInt("images"); v != 0 {
			cfg.Images = v
		}
		if mutual, _ := cmd.Flags().GetBool("mutual"); cmd.Flags().Changed("mutual") {
			cfg.Mutual = mutual
		}
		if graft, _ := cmd.Flags().GetBool("graft"); cmd.Flags().Changed("graft") {
			cfg.Graft = graft
		}
		if v, _ := cmd.Flags().GetInt("nspawn"); v != 0 {
			cfg.NSpawn = v
		}
		cfg.Print()

		n, _ := cmd.Flags().GetInt("n")
		np, _ := cmd.Flags().GetInt("np")
		seed, _ := cmd.Flags().GetInt64("seed")

		bodies := randomBodies(n, seed)

		e, err := engine.New(cfg)
		cobra.CheckErr(err)
		defer e.Close()
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			e.SetVerbose(true)
		}

		start := time.Now()
		out, err := e.Solve(bodies, np)
		cobra.CheckErr(err)
		elapsed := time.Since(start)

		var potEnergy float64
		for _, b := range out {
			potEnergy += real(b.SRC) * real(b.TRG[0])
		}
		fmt.Printf("n=%d np=%d elapsed=%v energy=%g\n", n, np, elapsed, 0.5*potEnergy)
	},
}

func randomBodies(n int, seed int64) []body.Body {
	r := rand.New(rand.NewSource(seed))
	bodies := make([]body.Body, n)
	for i := range bodies {
		bodies[i] = body.Body{
			X:     body.Vec3{r.Float64(), r.Float64(), r.Float64()},
			SRC:   complex(r.Float64()/math.Sqrt(float64(n))-0.5/math.Sqrt(float64(n)), 0),
			IBody: i,
		}
	}
	return bodies
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	SolveCmd.Flags().String("cfgFile", "", "optional YAML configuration file (overrides defaults, overridden by explicit flags)")
	SolveCmd.Flags().String("equation", "", "laplace or helmholtz")
	SolveCmd.Flags().Float64("theta", 0, "multipole acceptance criterion")
	SolveCmd.Flags().Int("p", 0, "expansion order")
	SolveCmd.Flags().Int("ncrit", 0, "max bodies per leaf before subdivision")
	SolveCmd.Flags().Int("images", 0, "number of periodic image shells")
	SolveCmd.Flags().Bool("mutual", true, "stored in the solver config; the traversal does not read it, so it has no effect")
	SolveCmd.Flags().Bool("graft", false, "use the grafted coarse tree for inter-rank interactions")
	SolveCmd.Flags().Int("nspawn", 0, "goroutine-spawn threshold during traversal")
	SolveCmd.Flags().Int("n", 10000, "number of bodies")
	SolveCmd.Flags().Int("np", 1, "number of simulated ranks")
	SolveCmd.Flags().Int64("seed", 1, "random seed for the generated body cloud")
	SolveCmd.Flags().Bool("cpuprofile", false, "write a CPU profile for the duration of the solve")
	SolveCmd.Flags().Bool("verbose", false, "log per-phase timing")
}
