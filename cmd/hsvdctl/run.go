package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/katalvlaran/hsvd"
	"github.com/katalvlaran/hsvd/comm"
	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/katalvlaran/hsvd/logsink"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run one hierarchical SVD reduction and report the result",
	RunE:  runReduction,
}

func init() {
	runCmd.Flags().Int("ranks", 4, "number of simulated SPMD ranks")
	runCmd.Flags().Int("rows", 512, "rows of the synthetic matrix")
	runCmd.Flags().Int("cols", 256, "columns of the synthetic matrix")
	runCmd.Flags().Int("gen-rank", 20, "exact rank of the synthetic matrix")
	runCmd.Flags().Int64("seed", 1, "seed for the synthetic matrix")
	runCmd.Flags().String("csv", "", "load the matrix from a CSV file instead of generating one")
	runCmd.Flags().Int("maxrank", 0, "target rank (rank-truncated mode when > 0)")
	runCmd.Flags().Float64("rtol", 0, "relative tolerance (tolerance-truncated mode when > 0)")
	runCmd.Flags().Int("maxmergedim", 0, "merge-width cap (derived by the parameter gate when 0)")
	runCmd.Flags().Int("safetyshift", 5, "extra columns retained beyond the base rank per merge")
	runCmd.Flags().Int("merges", 0, "children per merge group, parent included (--rtol only; when 0: pairs if --maxmergedim is also 0, otherwise unbounded)")
	runCmd.Flags().Bool("full", false, "also reconstruct sigma and V")
}

func runReduction(cmd *cobra.Command, args []string) error {
	ranks, _ := cmd.Flags().GetInt("ranks")
	maxrank, _ := cmd.Flags().GetInt("maxrank")
	rtol, _ := cmd.Flags().GetFloat64("rtol")
	full, _ := cmd.Flags().GetBool("full")

	if (maxrank > 0) == (rtol > 0) {
		return fmt.Errorf("exactly one of --maxrank and --rtol must be set")
	}

	global, err := loadOrGenerate(cmd)
	if err != nil {
		return err
	}
	m, n := global.Dims()
	fmt.Printf("matrix %dx%d over %d simulated ranks\n", m, n, ranks)

	opts := gatherOptions(cmd, full)
	return comm.RunWorld(ranks, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)

		var res hsvd.Result
		var err error
		if maxrank > 0 {
			res, err = hsvd.HSVDRank(a, maxrank, opts...)
		} else {
			res, err = hsvd.HSVDRtol(a, rtol, opts...)
		}
		if err != nil {
			return err
		}

		if c.Rank() == 0 {
			report(res, full)
		}
		return nil
	})
}

func gatherOptions(cmd *cobra.Command, full bool) []hsvd.Option {
	opts := []hsvd.Option{}
	if full {
		opts = append(opts, hsvd.WithFull())
	}
	if v, _ := cmd.Flags().GetInt("maxmergedim"); v > 0 {
		opts = append(opts, hsvd.WithMaxMergeDim(v))
	}
	if v, _ := cmd.Flags().GetInt("safetyshift"); v >= 0 {
		opts = append(opts, hsvd.WithSafetyShift(v))
	}
	if v, _ := cmd.Flags().GetInt("merges"); v > 0 {
		opts = append(opts, hsvd.WithNoOfMerges(v))
	}
	if verbose {
		opts = append(opts, hsvd.WithSilent(false), hsvd.WithSink(logsink.NewZerolog()))
	}
	return opts
}

func report(res hsvd.Result, full bool) {
	_, k := res.U.Local().Dims()
	fmt.Printf("retained rank: %d\n", k)
	fmt.Printf("relative error estimate: %.6e\n", res.RelErr)
	if full {
		fmt.Printf("sigma: %v\n", res.Sigma)
	}
}

// loadOrGenerate returns the CSV matrix when --csv is given, otherwise a
// synthetic matrix of exact rank --gen-rank built as the product of two
// seeded Gaussian factors.
func loadOrGenerate(cmd *cobra.Command) (*mat.Dense, error) {
	if path, _ := cmd.Flags().GetString("csv"); path != "" {
		return loadCSV(path)
	}

	rows, _ := cmd.Flags().GetInt("rows")
	cols, _ := cmd.Flags().GetInt("cols")
	genRank, _ := cmd.Flags().GetInt("gen-rank")
	seed, _ := cmd.Flags().GetInt64("seed")
	return lowRankMatrix(rows, cols, genRank, seed), nil
}

func lowRankMatrix(rows, cols, rank int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	left := mat.NewDense(rows, rank, nil)
	right := mat.NewDense(rank, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < rank; j++ {
			left.Set(i, j, rng.NormFloat64())
		}
	}
	for i := 0; i < rank; i++ {
		for j := 0; j < cols; j++ {
			right.Set(i, j, rng.NormFloat64())
		}
	}
	out := mat.NewDense(rows, cols, nil)
	out.Mul(left, right)
	return out
}

func loadCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("%s: empty matrix", path)
	}

	rows, cols := len(records), len(records[0])
	out := mat.NewDense(rows, cols, nil)
	for i, rec := range records {
		if len(rec) != cols {
			return nil, fmt.Errorf("%s: row %d has %d fields, want %d", path, i, len(rec), cols)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d col %d: %w", path, i, j, err)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}
