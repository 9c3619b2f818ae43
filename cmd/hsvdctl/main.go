// hsvdctl drives the hsvd library over the in-process SPMD simulator:
// it generates (or loads) a dense matrix, splits it across a configured
// number of simulated ranks, runs the hierarchical reduction, and
// reports the retained rank and the a-posteriori error estimate.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hsvdctl",
	Short: "Distributed hierarchical truncated SVD over a simulated communicator",
	Long: `hsvdctl runs the hsvd library's tree-structured SVD reduction on a
single host, hosting every simulated rank as a goroutine. Use it to
explore how rank caps, tolerances, merge widths, and safety shifts
shape the reduction tree and the resulting error estimate.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "emit per-level reduction reports")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
