package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teester/teester/internal/faker"
	"github.com/teester/teester/internal/types"
)

var fakeFlags struct {
	count int
	seed  int64
}

var fakeCmd = &cobra.Command{
	Use:   "fake <project> <faker>",
	Short: "Insert generated rows with a project's faker",
	Long: fmt.Sprintf(`Insert generated rows into the table described by a faker of a project,
using the project's database settings. Field types: %v.`, faker.Types()),
	Args: cobra.ExactArgs(2),
	RunE: runFake,
}

func init() {
	rootCmd.AddCommand(fakeCmd)

	fakeCmd.Flags().IntVarP(&fakeFlags.count, "count", "n", 1, "number of rows to insert")
	fakeCmd.Flags().Int64Var(&fakeFlags.seed, "seed", 0, "random seed (0 = random)")
}

func runFake(cmd *cobra.Command, args []string) error {
	idx, err := indexArgs([]string{"project", "faker"}, args)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	resp, err := c.RunFaker(cmd.Context(), idx[0], idx[1], types.FakerRunRequest{Count: fakeFlags.count, Seed: fakeFlags.seed})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d rows.\n", resp.Inserted)
	return nil
}
