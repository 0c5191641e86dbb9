package main

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/mempool"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPoolsCmd())
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Show the memory pool table",
		Long: `The pools command prints every memory pool with its size, range and
kernel/user permissions. The last column is the pool class:
N (not mappable), S (SRAM), A (AHB SRAM), D (devices), M (whole pool).

Example:
  mpumemctl pools
  mpumemctl pools --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPools()
		},
	}
}

func runPools() error {
	manager, err := newManager()
	if err != nil {
		return err
	}
	pools := manager.Pools()

	if jsonOut {
		return printJSON(func(writer *jwriter.Writer) {
			pools.WriteJSON(writer)
		})
	}

	printInfo("%8s %8s [%10s:%10s] %10s\n", "NAME", "SIZE", "START", "END", "FLAGS")
	for i := 0; i < pools.Len(); i++ {
		printInfo("%s\n", pools.Get(mempool.ID(i)).String())
	}
	return nil
}
