package main

import (
	"fmt"
	"time"

	"github.com/katalvlaran/hsvd"
	"github.com/katalvlaran/hsvd/comm"
	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/spf13/cobra"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Args:  cobra.NoArgs,
	Short: "Time repeated reductions across a range of simulated rank counts",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().Int("rows", 1024, "rows of the synthetic matrix")
	benchCmd.Flags().Int("cols", 512, "columns of the synthetic matrix")
	benchCmd.Flags().Int("gen-rank", 20, "exact rank of the synthetic matrix")
	benchCmd.Flags().Int64("seed", 1, "seed for the synthetic matrix")
	benchCmd.Flags().Int("maxrank", 20, "target rank for every timed run")
	benchCmd.Flags().Int("reps", 3, "repetitions per rank count")
	benchCmd.Flags().IntSlice("rank-counts", []int{1, 2, 4, 8}, "simulated rank counts to sweep")
}

func runBench(cmd *cobra.Command, args []string) error {
	rows, _ := cmd.Flags().GetInt("rows")
	cols, _ := cmd.Flags().GetInt("cols")
	genRank, _ := cmd.Flags().GetInt("gen-rank")
	seed, _ := cmd.Flags().GetInt64("seed")
	maxrank, _ := cmd.Flags().GetInt("maxrank")
	reps, _ := cmd.Flags().GetInt("reps")
	rankCounts, _ := cmd.Flags().GetIntSlice("rank-counts")

	global := lowRankMatrix(rows, cols, genRank, seed)
	fmt.Printf("matrix %dx%d, target rank %d, %d reps per rank count\n", rows, cols, maxrank, reps)

	for _, p := range rankCounts {
		var total time.Duration
		var relErr float64
		for rep := 0; rep < reps; rep++ {
			start := time.Now()
			err := comm.RunWorld(p, func(c comm.Communicator) error {
				a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
				res, err := hsvd.HSVDRank(a, maxrank)
				if err != nil {
					return err
				}
				if c.Rank() == 0 {
					relErr = res.RelErr
				}
				return nil
			})
			if err != nil {
				return err
			}
			total += time.Since(start)
		}
		fmt.Printf("ranks=%-3d avg=%-12v rel_err=%.3e\n", p, total/time.Duration(reps), relErr)
	}
	return nil
}
